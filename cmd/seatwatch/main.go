// Command seatwatch is a terminal client for the seat-hold core: it
// loads one concert, follows live seat updates over the event stream
// and can optionally place a hold on a seat and count it down.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/stagepass/seatsync/internal/apiclient"
	"github.com/stagepass/seatsync/internal/cart"
	"github.com/stagepass/seatsync/internal/config"
	"github.com/stagepass/seatsync/internal/controller"
	"github.com/stagepass/seatsync/internal/logger"
	"github.com/stagepass/seatsync/internal/session"
	"github.com/stagepass/seatsync/internal/stream"
)

func main() {
	concertID := flag.String("concert", "c1", "concert to watch")
	holdSeat := flag.String("hold", "", "optionally place a hold on this seat id")
	userID := flag.String("user", "dev-user", "user id for hold creation")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.Env)
	defer func() { _ = logger.Sync() }()

	sess := session.NewStore(cfg.SessionToken)
	api := apiclient.New(cfg.APIBaseURL, sess.Token)
	basket := cart.New()

	ctrl := controller.NewSeatDetail(api, basket, controller.Options{
		DefaultTTL: cfg.HoldTTL,
		Streams: controller.NewStreamFactory(cfg.APIBaseURL, stream.Options{
			BaseWait:   cfg.StreamBaseWait,
			MaxWait:    cfg.StreamMaxWait,
			MaxRetries: cfg.StreamRetries,
			Token:      sess.Token,
		}),
	})
	defer ctrl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ctrl.Load(ctx, *concertID); err != nil {
		logger.Fatal("load failed", zap.String("concert_id", *concertID), zap.Error(err))
	}
	printSnapshot(ctrl)

	// Re-render whenever stream events or reconciliation change state.
	ctrl.SetOnChange(func() { printSnapshot(ctrl) })

	if *holdSeat != "" {
		if err := placeHold(ctx, ctrl, *holdSeat, *userID); err != nil {
			logger.Error("hold failed", zap.String("seat_id", *holdSeat), zap.Error(err))
		}
	}

	<-ctx.Done()
	fmt.Println("bye")
}

// printSnapshot renders one availability line from the view model.
func printSnapshot(ctrl *controller.SeatDetail) {
	vm := ctrl.ViewModel()
	if vm.Err != nil {
		fmt.Printf("error: %v\n", vm.Err)
		return
	}
	if vm.Loading || vm.Concert == nil {
		fmt.Println("loading...")
		return
	}
	a := vm.Availability
	fmt.Printf("%s @ %s | seats: %d available, %d held, %d sold of %d | stream: %s\n",
		vm.Concert.Name, vm.Concert.Venue,
		a.Available, a.Held, a.Sold, a.Total,
		vm.ConnectionStatus,
	)
}

// placeHold selects a seat, confirms a hold on it and prints the
// countdown until it expires or the program is interrupted.
func placeHold(ctx context.Context, ctrl *controller.SeatDetail, seatID, userID string) error {
	vm := ctrl.ViewModel()
	for _, seat := range vm.Seats {
		if seat.ID == seatID {
			ctrl.HandleSeatSelect(seat)
			break
		}
	}
	hold, err := ctrl.ConfirmHold(ctx, userID)
	if err != nil {
		if errors.Is(err, apiclient.ErrSeatConflict) {
			return fmt.Errorf("seat %s is already reserved by someone else", seatID)
		}
		return err
	}
	fmt.Printf("hold %s on seat %s for %ds\n", hold.ID, seatID, hold.TTLSeconds)

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t := ctrl.HoldTimer()
				if t == nil {
					return
				}
				fmt.Printf("hold expires in %s (%.0f%%)\n", t.FormattedTime(), t.ProgressPercentage())
				if t.IsExpired() {
					return
				}
			}
		}
	}()
	return nil
}
