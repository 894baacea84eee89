package model

// SeatStatus enumerates the availability states a seat can be in.  The
// values mirror what the backend emits on the wire; unknown strings are
// carried through untouched because the server owns the vocabulary, but
// they are never treated as available.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE" // free to select and hold
	SeatHeld      SeatStatus = "HELD"      // temporarily reserved by someone
	SeatSold      SeatStatus = "SOLD"      // finalized into a sale
)

// IsAvailable reports whether a seat in this status may be selected.
func (s SeatStatus) IsAvailable() bool { return s == SeatAvailable }

// DefaultCategory is assigned to seats the backend sends without a
// category field.
const DefaultCategory = "Standard"

// DefaultBlock is the grouping key used for seats that do not belong to
// a named block.
const DefaultBlock = "General"

// Seat is one sellable seat of a concert as the backend reports it.
// Seats are fetched in bulk per concert and mutated in place by ID when
// a stream event or a local optimistic update arrives; a refresh
// replaces the whole list.
//
// Fields:
//
//	ID         - opaque identifier issued by the backend.
//	Block      - named seating block, empty when the venue has none.
//	Category   - pricing category, defaults to "Standard".
//	Row        - row label within the block.
//	Number     - seat number within the row.
//	PriceCents - price in cents, never negative.
//	Status     - current availability status.
type Seat struct {
	ID         string     `json:"id"`
	Block      string     `json:"block,omitempty"`
	Category   string     `json:"category,omitempty"`
	Row        string     `json:"row"`
	Number     string     `json:"number"`
	PriceCents uint32     `json:"price_cents"`
	Status     SeatStatus `json:"status"`
}

// Normalize fills in defaulted fields after decoding a seat from the
// wire.  The backend omits the category for standard seats.
func (s *Seat) Normalize() {
	if s.Category == "" {
		s.Category = DefaultCategory
	}
}

// BlockKey returns the grouping key for SeatsByBlock aggregation.
func (s *Seat) BlockKey() string {
	if s.Block == "" {
		return DefaultBlock
	}
	return s.Block
}

// Availability summarizes the seat list by status.  Total is always
// len(seats); seats with an unknown status are counted in Total only,
// so the three named counts may sum to less than it.
type Availability struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Held      int `json:"held"`
	Sold      int `json:"sold"`
}

// AvailabilityOf recomputes the availability counts from scratch.  It
// is called whenever the seat list changes so the aggregate can never
// go stale.
func AvailabilityOf(seats []Seat) Availability {
	a := Availability{Total: len(seats)}
	for _, s := range seats {
		switch s.Status {
		case SeatAvailable:
			a.Available++
		case SeatHeld:
			a.Held++
		case SeatSold:
			a.Sold++
		}
	}
	return a
}

// GroupByBlock buckets seats by their block, using DefaultBlock for
// seats without one.  The seat values are copies; callers must not use
// the result to mutate controller state.
func GroupByBlock(seats []Seat) map[string][]Seat {
	out := make(map[string][]Seat)
	for _, s := range seats {
		key := s.BlockKey()
		out[key] = append(out[key], s)
	}
	return out
}
