package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stagepass/seatsync/internal/apiclient"
	"github.com/stagepass/seatsync/internal/holdtimer"
	"github.com/stagepass/seatsync/internal/logger"
	"github.com/stagepass/seatsync/internal/model"
	"github.com/stagepass/seatsync/internal/stream"
)

// API is the narrow interface the controller needs from the ticketing
// backend.  *apiclient.Client satisfies it.
type API interface {
	FetchConcertByID(ctx context.Context, id string) (*model.Concert, error)
	FetchConcertSeats(ctx context.Context, concertID string) ([]model.Seat, error)
	CreateSeatHold(ctx context.Context, seatID, userID string) (*apiclient.HoldReceipt, error)
	ReleaseSeatHold(ctx context.Context, holdID string) error
}

// Cart receives confirmed holds for later checkout.
type Cart interface {
	AddItem(model.Hold)
}

// Conn is the slice of the stream client the controller drives.
type Conn interface {
	Connect()
	Reconnect()
	Close()
	State() stream.State
}

// StreamFactory builds the live subscription for a concert.  The
// controller injects its own callbacks; tests inject fake connections.
type StreamFactory func(concertID string, cb stream.Callbacks) Conn

// NewStreamFactory returns the production factory, wiring stream
// clients to the given backend base URL.
func NewStreamFactory(baseURL string, opts stream.Options) StreamFactory {
	return func(concertID string, cb stream.Callbacks) Conn {
		return stream.New(baseURL, concertID, cb, opts)
	}
}

// ViewModel is a consistent snapshot of everything the concert-detail
// view renders.  Derived fields (SeatsByBlock, Availability) are
// recomputed from the seat list at snapshot time, never cached.
type ViewModel struct {
	Concert          *model.Concert
	Seats            []model.Seat
	SeatsByBlock     map[string][]model.Seat
	Availability     model.Availability
	Loading          bool
	Err              error
	SelectedSeat     *model.Seat
	ConnectionStatus stream.State
}

// Options configure a SeatDetail controller.
type Options struct {
	DefaultTTL int           // hold TTL when the backend declares none
	Streams    StreamFactory // required
	OnChange   func()        // optional view invalidation hook
}

// SeatDetail owns the state of one mounted concert-detail view: the
// fetched concert and seats, the selection, the live subscription and
// at most one active hold.  Each view instance owns its own
// controller; there is no cross-instance sharing.
type SeatDetail struct {
	api  API
	cart Cart
	opts Options

	mu        sync.Mutex
	concertID string
	gen       int // load generation, guards stale fetch results
	concert   *model.Concert
	seats     []model.Seat
	loading   bool
	err       error
	selected  *model.Seat
	connState stream.State
	conn      Conn
	timer     *holdtimer.Timer
	hold      *model.Hold
	closed    bool

	log *zap.Logger
}

// NewSeatDetail builds a controller.  Load must be called before the
// view model carries data.
func NewSeatDetail(api API, cart Cart, opts Options) *SeatDetail {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = model.DefaultHoldTTLSeconds
	}
	return &SeatDetail{
		api:       api,
		cart:      cart,
		opts:      opts,
		connState: stream.StateClosed,
		log:       logger.Get(),
	}
}

// Load fetches concert details and the seat list concurrently and, on
// success, opens the live subscription.  An empty id fails fast with
// ErrNoConcertID without issuing any request.  Both fetches must
// succeed for the view to be usable; the first failure surfaces.
func (s *SeatDetail) Load(ctx context.Context, concertID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if concertID == "" {
		s.err = ErrNoConcertID
		s.loading = false
		s.mu.Unlock()
		s.notify()
		return ErrNoConcertID
	}
	var old Conn
	if s.concertID != concertID {
		// Identifier change: the old subscription must die before any
		// new state is built so stale events can never land here.
		old = s.detachStreamLocked()
		s.concertID = concertID
	}
	s.gen++
	gen := s.gen
	s.loading = true
	s.err = nil
	s.mu.Unlock()
	if old != nil {
		// Closed outside the lock: the connection's state hook calls
		// back into this controller.
		old.Close()
	}
	s.notify()

	concert, seats, err := s.fetch(ctx, concertID)

	s.mu.Lock()
	if s.closed || gen != s.gen {
		// A newer Load superseded this one; drop the results.
		s.mu.Unlock()
		return nil
	}
	s.loading = false
	if err != nil {
		s.err = err
		s.mu.Unlock()
		s.notify()
		return err
	}
	s.concert = concert
	s.seats = seats
	s.err = nil
	conn := s.openStreamLocked()
	s.mu.Unlock()
	if conn != nil {
		conn.Connect()
	}
	s.notify()
	return nil
}

// fetch issues both initial requests at once and waits for both.
func (s *SeatDetail) fetch(ctx context.Context, concertID string) (*model.Concert, []model.Seat, error) {
	var (
		concert *model.Concert
		seats   []model.Seat
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.api.FetchConcertByID(gctx, concertID)
		if err != nil {
			return err
		}
		concert = c
		return nil
	})
	g.Go(func() error {
		list, err := s.api.FetchConcertSeats(gctx, concertID)
		if err != nil {
			return err
		}
		seats = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return concert, seats, nil
}

// Refresh re-runs the initial fetch sequence for the current concert
// and clears any previous error on success.  It is the reconciliation
// mechanism after optimistic updates or missed stream events.
func (s *SeatDetail) Refresh(ctx context.Context) error {
	s.mu.Lock()
	id := s.concertID
	s.mu.Unlock()
	if id == "" {
		return ErrNoConcertID
	}
	return s.Load(ctx, id)
}

// ChangeConcert switches the view to another concert.  The current
// subscription is torn down synchronously before the new load starts.
func (s *SeatDetail) ChangeConcert(ctx context.Context, concertID string) error {
	s.mu.Lock()
	old := s.detachStreamLocked()
	s.stopTimerLocked()
	s.concert = nil
	s.seats = nil
	s.selected = nil
	s.hold = nil
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return s.Load(ctx, concertID)
}

// ViewModel returns a consistent snapshot for rendering.  The seat
// slice is copied so the caller can never mutate controller state.
func (s *SeatDetail) ViewModel() ViewModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	seats := make([]model.Seat, len(s.seats))
	copy(seats, s.seats)
	var selected *model.Seat
	if s.selected != nil {
		cp := *s.selected
		selected = &cp
	}
	var concert *model.Concert
	if s.concert != nil {
		cp := *s.concert
		concert = &cp
	}
	return ViewModel{
		Concert:          concert,
		Seats:            seats,
		SeatsByBlock:     model.GroupByBlock(seats),
		Availability:     model.AvailabilityOf(seats),
		Loading:          s.loading,
		Err:              s.err,
		SelectedSeat:     selected,
		ConnectionStatus: s.connState,
	}
}

// HandleSeatSelect records the seat the user tapped.  Selecting a seat
// that is not AVAILABLE has no observable effect.
func (s *SeatDetail) HandleSeatSelect(seat model.Seat) {
	if !seat.Status.IsAvailable() {
		return
	}
	s.mu.Lock()
	cp := seat
	s.selected = &cp
	s.mu.Unlock()
	s.notify()
}

// ClearSelection drops the current selection.
func (s *SeatDetail) ClearSelection() {
	s.mu.Lock()
	s.selected = nil
	s.mu.Unlock()
	s.notify()
}

// UpdateSeatStatus replaces exactly one seat's status in place,
// leaving every other seat untouched.  It serves both local
// optimistic updates and incoming stream notifications; last write
// wins, and the next refresh reconciles against server truth.
func (s *SeatDetail) UpdateSeatStatus(seatID string, status model.SeatStatus) {
	s.mu.Lock()
	changed := false
	for i := range s.seats {
		if s.seats[i].ID == seatID {
			if s.seats[i].Status != status {
				s.seats[i].Status = status
				changed = true
			}
			break
		}
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// ConfirmHold runs the hold workflow for the selected seat: it asks
// the backend for a hold, optimistically marks the seat HELD, starts
// the countdown and mirrors the hold into the cart.  On failure the
// local seat state is left untouched; a conflict surfaces as
// apiclient.ErrSeatConflict so the dialog can tell "already reserved"
// apart from a generic failure.
func (s *SeatDetail) ConfirmHold(ctx context.Context, userID string) (*model.Hold, error) {
	s.mu.Lock()
	if s.selected == nil {
		s.mu.Unlock()
		return nil, ErrNoSeatSelected
	}
	seat := *s.selected
	var concert model.Concert
	if s.concert != nil {
		concert = *s.concert
	}
	s.mu.Unlock()

	receipt, err := s.api.CreateSeatHold(ctx, seat.ID, userID)
	if err != nil {
		return nil, err
	}

	ttl := receipt.TTLSeconds
	if ttl <= 0 {
		ttl = s.opts.DefaultTTL
	}
	seat.Status = model.SeatHeld
	hold := model.Hold{
		ID:         receipt.HoldID,
		Seat:       seat,
		Concert:    concert,
		TTLSeconds: ttl,
		CreatedAt:  time.Now(),
	}

	s.UpdateSeatStatus(seat.ID, model.SeatHeld)

	s.mu.Lock()
	s.stopTimerLocked()
	s.hold = &hold
	timer := holdtimer.New(ttl, func() { s.onHoldExpired(hold.ID) })
	s.timer = timer
	s.mu.Unlock()
	timer.Start()

	if s.cart != nil {
		s.cart.AddItem(hold)
	}
	s.log.Info("seat hold confirmed",
		zap.String("hold_id", hold.ID),
		zap.String("seat_id", seat.ID),
		zap.Int("ttl_seconds", ttl),
	)
	s.notify()
	return &hold, nil
}

// Hold returns the live hold, if any.
func (s *SeatDetail) Hold() *model.Hold {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hold == nil {
		return nil
	}
	cp := *s.hold
	return &cp
}

// HoldTimer exposes the countdown of the live hold for rendering, or
// nil when no hold is active.
func (s *SeatDetail) HoldTimer() *holdtimer.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer
}

// CancelHold releases the live hold with the backend and reconciles
// local state with a refresh.  A hold the backend already expired is
// treated as released.
func (s *SeatDetail) CancelHold(ctx context.Context) error {
	s.mu.Lock()
	if s.hold == nil {
		s.mu.Unlock()
		return ErrNoActiveHold
	}
	holdID := s.hold.ID
	s.stopTimerLocked()
	s.hold = nil
	s.selected = nil
	s.mu.Unlock()

	if err := s.api.ReleaseSeatHold(ctx, holdID); err != nil && !errors.Is(err, apiclient.ErrHoldNotFound) {
		s.log.Warn("hold release failed", zap.String("hold_id", holdID), zap.Error(err))
	}
	return s.Refresh(ctx)
}

// CloseDialog is called whenever the seat-selection dialog goes away,
// regardless of how.  The client never reverts a HELD seat on its
// own, so a refresh reconciles any optimistic state against server
// truth.
func (s *SeatDetail) CloseDialog(ctx context.Context) error {
	s.mu.Lock()
	s.stopTimerLocked()
	s.hold = nil
	s.selected = nil
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// ReconnectStream manually re-opens the live subscription, e.g. from
// the "offline" badge after retries were exhausted.
func (s *SeatDetail) ReconnectStream() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Reconnect()
	}
}

// Close tears the controller down: subscription closed, timer
// cancelled.  No callbacks of either fire afterwards.
func (s *SeatDetail) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	old := s.detachStreamLocked()
	timer := s.timer
	s.timer = nil
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
	if timer != nil {
		timer.Close()
	}
}

// onHoldExpired runs when the countdown for holdID hits zero.  The
// seat is not flipped back to AVAILABLE locally; the refresh fetches
// what the server decided.  An expiry racing a newer hold is ignored.
func (s *SeatDetail) onHoldExpired(holdID string) {
	s.mu.Lock()
	if s.closed || s.hold == nil || s.hold.ID != holdID {
		s.mu.Unlock()
		return
	}
	s.hold = nil
	s.selected = nil
	s.mu.Unlock()

	s.log.Info("seat hold expired", zap.String("hold_id", holdID))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = s.Refresh(ctx)
}

// openStreamLocked creates the subscription for the current concert
// and returns it so the caller can Connect outside the lock.  Callers
// must hold s.mu.  An existing subscription is reused.
func (s *SeatDetail) openStreamLocked() Conn {
	if s.conn != nil || s.opts.Streams == nil {
		return nil
	}
	id := s.concertID
	conn := s.opts.Streams(id, stream.Callbacks{
		OnSeatUpdate: func(seatID string, status model.SeatStatus) {
			s.UpdateSeatStatus(seatID, status)
		},
		OnConnectionChange: func(st stream.State) {
			s.mu.Lock()
			s.connState = st
			s.mu.Unlock()
			s.notify()
		},
		OnError: func(err error) {
			// Stream exhaustion degrades to the status badge; seat
			// data already on screen stays visible.
			s.log.Warn("seat stream gave up", zap.String("concert_id", id), zap.Error(err))
		},
	})
	s.conn = conn
	return conn
}

// detachStreamLocked unhooks the subscription and returns it for the
// caller to Close outside the lock; the connection's hooks re-enter
// this controller, so closing under s.mu would deadlock.  Callers must
// hold s.mu.
func (s *SeatDetail) detachStreamLocked() Conn {
	conn := s.conn
	s.conn = nil
	s.connState = stream.StateClosed
	return conn
}

// stopTimerLocked cancels the hold countdown.  Callers must hold s.mu.
func (s *SeatDetail) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Close()
		s.timer = nil
	}
}

// SetOnChange swaps the view invalidation hook.  Like the stream and
// timer callbacks it is dereferenced at call time, so the most
// recently supplied hook always wins.
func (s *SeatDetail) SetOnChange(fn func()) {
	s.mu.Lock()
	s.opts.OnChange = fn
	s.mu.Unlock()
}

// notify pokes the optional view invalidation hook.
func (s *SeatDetail) notify() {
	s.mu.Lock()
	fn := s.opts.OnChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}
