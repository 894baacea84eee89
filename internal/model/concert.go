package model

import "time"

// Concert describes one event as returned by the backend.  The record
// is immutable on the client after fetch; only a refresh replaces it.
//
// Fields:
//
//	ID             - opaque identifier issued by the backend.
//	Name           - display name of the concert.
//	StartsAt       - scheduled start time.
//	Venue          - venue name.
//	Description    - optional free-form description.
//	MinPriceCents  - cheapest seat price in cents.
//	MaxPriceCents  - most expensive seat price in cents.
//	TotalSeats     - total number of seats on sale.
//	AvailableSeats - seats still available at fetch time.
type Concert struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	StartsAt       time.Time `json:"starts_at"`
	Venue          string    `json:"venue"`
	Description    string    `json:"description,omitempty"`
	MinPriceCents  uint32    `json:"min_price_cents"`
	MaxPriceCents  uint32    `json:"max_price_cents"`
	TotalSeats     int       `json:"total_seats"`
	AvailableSeats int       `json:"available_seats"`
}
