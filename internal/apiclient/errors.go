// Package apiclient implements the REST collaborator of the seat-hold
// core.  This file defines sentinel error values that let higher
// layers distinguish failure scenarios with errors.Is: a missing
// concert renders a "not found" screen, a hold conflict renders an
// "already reserved" dialog message, and everything else falls back to
// a generic load-failure message.
package apiclient

import "errors"

// ErrConcertNotFound is returned when the backend answers 404 for a
// concert or its seat list.
var ErrConcertNotFound = errors.New("concert not found")

// ErrSeatConflict is returned when hold creation fails with 409
// because another party already holds or bought the seat.  The caller
// must not mutate local seat state in this case.
var ErrSeatConflict = errors.New("seat already held")

// ErrHoldNotFound is returned when releasing a hold the backend no
// longer knows about, typically because it already expired.
var ErrHoldNotFound = errors.New("hold not found")
