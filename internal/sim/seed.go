package sim

import (
	"strconv"
	"time"

	"github.com/stagepass/seatsync/internal/model"
)

// Seed fills the store with two fixture concerts: one with named
// blocks and mixed categories, one open-floor venue without blocks so
// the default-block grouping path gets exercised too.
func Seed(st *Store) {
	st.AddConcert(model.Concert{
		ID:          "c1",
		Name:        "Midnight Orchestra",
		StartsAt:    time.Now().Add(14 * 24 * time.Hour).Truncate(time.Hour),
		Venue:       "Grand Hall",
		Description: "An evening of symphonic works.",
	}, blockSeats())

	st.AddConcert(model.Concert{
		ID:       "c2",
		Name:     "Riverside Sessions",
		StartsAt: time.Now().Add(30 * 24 * time.Hour).Truncate(time.Hour),
		Venue:    "Open Air Stage",
	}, floorSeats())
}

// blockSeats lays out two blocks of three rows with four seats each.
// Block A is premium, block B standard; a few seats start out HELD or
// SOLD so fresh clients see every status.
func blockSeats() []model.Seat {
	var seats []model.Seat
	rows := []string{"1", "2", "3"}
	for _, block := range []string{"A", "B"} {
		category := "Standard"
		price := uint32(4500)
		if block == "A" {
			category = "Premium"
			price = 8900
		}
		for _, row := range rows {
			for n := 1; n <= 4; n++ {
				seats = append(seats, model.Seat{
					ID:         block + row + "-" + itoa(n),
					Block:      block,
					Category:   category,
					Row:        row,
					Number:     itoa(n),
					PriceCents: price,
					Status:     model.SeatAvailable,
				})
			}
		}
	}
	seats[1].Status = model.SeatSold
	seats[13].Status = model.SeatHeld
	return seats
}

// floorSeats is a single unblocked row of ten seats.
func floorSeats() []model.Seat {
	var seats []model.Seat
	for n := 1; n <= 10; n++ {
		seats = append(seats, model.Seat{
			ID:         "f-" + itoa(n),
			Row:        "Floor",
			Number:     itoa(n),
			PriceCents: 3200,
			Status:     model.SeatAvailable,
		})
	}
	return seats
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
