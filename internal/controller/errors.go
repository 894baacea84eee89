// Package controller orchestrates the concert-detail view: it merges
// the initial REST fetch, live stream updates and the hold countdown
// into one consistent view model.  This file defines the sentinel
// errors the view distinguishes.
package controller

import "errors"

// ErrNoConcertID is returned by Load when no concert identifier was
// supplied.  No request is issued in that case.
var ErrNoConcertID = errors.New("no concert id provided")

// ErrNoSeatSelected is returned by ConfirmHold when no seat is
// currently selected.
var ErrNoSeatSelected = errors.New("no seat selected")

// ErrNoActiveHold is returned by CancelHold when there is no live
// hold to cancel.
var ErrNoActiveHold = errors.New("no active hold")
