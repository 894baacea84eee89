package model

import "time"

// DefaultHoldTTLSeconds applies when the backend confirms a hold
// without declaring its time-to-live.
const DefaultHoldTTLSeconds = 600

// Hold is the client-side projection of a server-issued seat hold.  It
// exists only after the backend confirmed the hold; expiry enforcement
// stays server-side, the client merely counts down against TTLSeconds
// and reconciles with a refresh when the countdown ends.
//
// Fields:
//
//	ID         - server-issued opaque hold token.
//	Seat       - the seat being held.
//	Concert    - the concert the seat belongs to.
//	TTLSeconds - server-declared lifetime, DefaultHoldTTLSeconds if absent.
//	CreatedAt  - when the client learned about the hold.
type Hold struct {
	ID         string    `json:"hold_id"`
	Seat       Seat      `json:"seat"`
	Concert    Concert   `json:"concert"`
	TTLSeconds int       `json:"ttl_seconds"`
	CreatedAt  time.Time `json:"created_at"`
}
