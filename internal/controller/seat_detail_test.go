package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagepass/seatsync/internal/apiclient"
	"github.com/stagepass/seatsync/internal/model"
	"github.com/stagepass/seatsync/internal/stream"
)

// fakeAPI is an in-memory stand-in for the REST collaborator.
type fakeAPI struct {
	mu          sync.Mutex
	concert     model.Concert
	seats       []model.Seat
	concertErr  error
	seatsErr    error
	receipt     apiclient.HoldReceipt
	holdErr     error
	fetches     int
	released    []string
	releasedErr error
}

func (f *fakeAPI) FetchConcertByID(ctx context.Context, id string) (*model.Concert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.concertErr != nil {
		return nil, f.concertErr
	}
	c := f.concert
	return &c, nil
}

func (f *fakeAPI) FetchConcertSeats(ctx context.Context, concertID string) ([]model.Seat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seatsErr != nil {
		return nil, f.seatsErr
	}
	out := make([]model.Seat, len(f.seats))
	copy(out, f.seats)
	return out, nil
}

func (f *fakeAPI) CreateSeatHold(ctx context.Context, seatID, userID string) (*apiclient.HoldReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.holdErr != nil {
		return nil, f.holdErr
	}
	r := f.receipt
	return &r, nil
}

func (f *fakeAPI) ReleaseSeatHold(ctx context.Context, holdID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, holdID)
	return f.releasedErr
}

func (f *fakeAPI) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// fakeCart records added holds.
type fakeCart struct {
	mu    sync.Mutex
	items []model.Hold
}

func (f *fakeCart) AddItem(h model.Hold) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, h)
}

func (f *fakeCart) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// fakeConn is a stream connection the test drives by hand.  events
// records lifecycle calls across connections so ordering can be
// asserted.
type fakeConn struct {
	id     string
	cb     stream.Callbacks
	events *eventLog
}

type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, s)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

func (f *fakeConn) Connect()            { f.events.add("connect:" + f.id) }
func (f *fakeConn) Reconnect()          { f.events.add("reconnect:" + f.id) }
func (f *fakeConn) Close()              { f.events.add("close:" + f.id) }
func (f *fakeConn) State() stream.State { return stream.StateConnected }

// fixture wires a controller with fakes.
type fixture struct {
	api   *fakeAPI
	cart  *fakeCart
	log   *eventLog
	conns map[string]*fakeConn
	ctrl  *SeatDetail
}

func testSeats() []model.Seat {
	return []model.Seat{
		{ID: "s1", Block: "A", Row: "1", Number: "1", PriceCents: 4500, Status: model.SeatAvailable, Category: "Standard"},
		{ID: "s2", Block: "A", Row: "1", Number: "2", PriceCents: 4500, Status: model.SeatHeld, Category: "Standard"},
		{ID: "s3", Block: "B", Row: "1", Number: "1", PriceCents: 8900, Status: model.SeatSold, Category: "Premium"},
		{ID: "s4", Row: "Floor", Number: "1", PriceCents: 3200, Status: model.SeatAvailable, Category: "Standard"},
	}
}

func newFixture() *fixture {
	f := &fixture{
		api: &fakeAPI{
			concert: model.Concert{ID: "c1", Name: "Midnight Orchestra", Venue: "Grand Hall"},
			seats:   testSeats(),
			receipt: apiclient.HoldReceipt{HoldID: "h1", TTLSeconds: 300},
		},
		cart:  &fakeCart{},
		log:   &eventLog{},
		conns: make(map[string]*fakeConn),
	}
	f.ctrl = NewSeatDetail(f.api, f.cart, Options{
		DefaultTTL: 600,
		Streams: func(concertID string, cb stream.Callbacks) Conn {
			conn := &fakeConn{id: concertID, cb: cb, events: f.log}
			f.conns[concertID] = conn
			return conn
		},
	})
	return f
}

func TestLoad_MissingID(t *testing.T) {
	f := newFixture()
	err := f.ctrl.Load(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoConcertID)
	assert.Zero(t, f.api.fetchCount(), "no request may be issued")
	assert.ErrorIs(t, f.ctrl.ViewModel().Err, ErrNoConcertID)
}

func TestLoad_Success(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.ctrl.Load(context.Background(), "c1"))

	vm := f.ctrl.ViewModel()
	assert.False(t, vm.Loading)
	assert.NoError(t, vm.Err)
	require.NotNil(t, vm.Concert)
	assert.Equal(t, "Midnight Orchestra", vm.Concert.Name)
	assert.Len(t, vm.Seats, 4)

	assert.Equal(t, model.Availability{Total: 4, Available: 2, Held: 1, Sold: 1}, vm.Availability)
	assert.Len(t, vm.SeatsByBlock["A"], 2)
	assert.Len(t, vm.SeatsByBlock["B"], 1)
	assert.Len(t, vm.SeatsByBlock[model.DefaultBlock], 1)

	assert.Equal(t, []string{"connect:c1"}, f.log.list())
}

func TestLoad_ConcertNotFound(t *testing.T) {
	f := newFixture()
	f.api.concertErr = apiclient.ErrConcertNotFound

	err := f.ctrl.Load(context.Background(), "c1")
	assert.ErrorIs(t, err, apiclient.ErrConcertNotFound)
	assert.ErrorIs(t, f.ctrl.ViewModel().Err, apiclient.ErrConcertNotFound)
}

func TestLoad_SeatFetchFailureSurfaces(t *testing.T) {
	f := newFixture()
	f.api.seatsErr = context.DeadlineExceeded // any transport failure

	err := f.ctrl.Load(context.Background(), "c1")
	assert.Error(t, err)
	vm := f.ctrl.ViewModel()
	assert.Error(t, vm.Err)
	assert.Empty(t, vm.Seats, "seat content must not render on a partial load")
}

func TestViewModel_ConcertIsACopy(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.ctrl.Load(context.Background(), "c1"))

	vm := f.ctrl.ViewModel()
	require.NotNil(t, vm.Concert)
	vm.Concert.Name = "mutated"

	assert.Equal(t, "Midnight Orchestra", f.ctrl.ViewModel().Concert.Name,
		"snapshot mutation must not reach controller state")
}

func TestUpdateSeatStatus_TouchesExactlyOneSeat(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.ctrl.Load(context.Background(), "c1"))
	before := f.ctrl.ViewModel().Seats

	f.ctrl.UpdateSeatStatus("s1", model.SeatSold)

	after := f.ctrl.ViewModel().Seats
	for i := range after {
		if after[i].ID == "s1" {
			assert.Equal(t, model.SeatSold, after[i].Status)
			expected := before[i]
			expected.Status = model.SeatSold
			assert.Equal(t, expected, after[i], "only the status may differ")
		} else {
			assert.Equal(t, before[i], after[i], "seat %s must be untouched", after[i].ID)
		}
	}
	assert.Equal(t, model.Availability{Total: 4, Available: 1, Held: 1, Sold: 2},
		f.ctrl.ViewModel().Availability)
}

func TestUpdateSeatStatus_UnknownSeatIsNoop(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.ctrl.Load(context.Background(), "c1"))
	before := f.ctrl.ViewModel().Seats

	f.ctrl.UpdateSeatStatus("missing", model.SeatSold)
	assert.Equal(t, before, f.ctrl.ViewModel().Seats)
}

func TestHandleSeatSelect(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.ctrl.Load(context.Background(), "c1"))
	seats := f.ctrl.ViewModel().Seats

	t.Run("available seat is selected", func(t *testing.T) {
		f.ctrl.HandleSeatSelect(seats[0]) // s1 AVAILABLE
		sel := f.ctrl.ViewModel().SelectedSeat
		require.NotNil(t, sel)
		assert.Equal(t, seats[0], *sel)
	})

	t.Run("held seat is a no-op", func(t *testing.T) {
		f.ctrl.ClearSelection()
		f.ctrl.HandleSeatSelect(seats[1]) // s2 HELD
		assert.Nil(t, f.ctrl.ViewModel().SelectedSeat)
	})

	t.Run("sold seat is a no-op", func(t *testing.T) {
		f.ctrl.HandleSeatSelect(seats[2]) // s3 SOLD
		assert.Nil(t, f.ctrl.ViewModel().SelectedSeat)
	})
}

func TestConfirmHold_Success(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.ctrl.Load(context.Background(), "c1"))
	f.ctrl.HandleSeatSelect(f.ctrl.ViewModel().Seats[0]) // s1
	defer f.ctrl.Close()

	hold, err := f.ctrl.ConfirmHold(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "h1", hold.ID)
	assert.Equal(t, 300, hold.TTLSeconds)
	assert.Equal(t, "s1", hold.Seat.ID)
	assert.Equal(t, model.SeatHeld, hold.Seat.Status)
	assert.Equal(t, "c1", hold.Concert.ID)

	// Optimistic local mutation.
	vm := f.ctrl.ViewModel()
	for _, s := range vm.Seats {
		if s.ID == "s1" {
			assert.Equal(t, model.SeatHeld, s.Status)
		}
	}

	// Mirrored into the cart, countdown running.
	assert.Equal(t, 1, f.cart.len())
	timer := f.ctrl.HoldTimer()
	require.NotNil(t, timer)
	assert.True(t, timer.IsActive())
	assert.Equal(t, 300, timer.TTL())
	require.NotNil(t, f.ctrl.Hold())
}

func TestConfirmHold_DefaultTTLWhenBackendSilent(t *testing.T) {
	f := newFixture()
	f.api.receipt = apiclient.HoldReceipt{HoldID: "h2"}
	require.NoError(t, f.ctrl.Load(context.Background(), "c1"))
	f.ctrl.HandleSeatSelect(f.ctrl.ViewModel().Seats[0])
	defer f.ctrl.Close()

	hold, err := f.ctrl.ConfirmHold(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 600, hold.TTLSeconds)
}

func TestConfirmHold_ConflictLeavesStateAlone(t *testing.T) {
	f := newFixture()
	f.api.holdErr = apiclient.ErrSeatConflict
	require.NoError(t, f.ctrl.Load(context.Background(), "c1"))
	f.ctrl.HandleSeatSelect(f.ctrl.ViewModel().Seats[0])

	_, err := f.ctrl.ConfirmHold(context.Background(), "u1")
	assert.ErrorIs(t, err, apiclient.ErrSeatConflict)

	// Seat s1 stays AVAILABLE: no optimistic flip on failure.
	for _, s := range f.ctrl.ViewModel().Seats {
		if s.ID == "s1" {
			assert.Equal(t, model.SeatAvailable, s.Status)
		}
	}
	assert.Zero(t, f.cart.len())
	assert.Nil(t, f.ctrl.Hold())
	assert.Nil(t, f.ctrl.HoldTimer())
}

func TestConfirmHold_NoSelection(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.ctrl.Load(context.Background(), "c1"))

	_, err := f.ctrl.ConfirmHold(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNoSeatSelected)
}

func TestStreamEvents_AreAppliedToSeats(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.ctrl.Load(context.Background(), "c1"))

	conn := f.conns["c1"]
	require.NotNil(t, conn)
	conn.cb.OnSeatUpdate("s1", model.SeatSold)

	vm := f.ctrl.ViewModel()
	assert.Equal(t, model.Availability{Total: 4, Available: 1, Held: 1, Sold: 2}, vm.Availability)

	conn.cb.OnConnectionChange(stream.StateReconnecting)
	assert.Equal(t, stream.StateReconnecting, f.ctrl.ViewModel().ConnectionStatus)
}

func TestChangeConcert_ClosesOldStreamBeforeOpeningNew(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.ctrl.Load(context.Background(), "c1"))

	f.api.mu.Lock()
	f.api.concert = model.Concert{ID: "c2", Name: "Riverside Sessions"}
	f.api.mu.Unlock()

	require.NoError(t, f.ctrl.ChangeConcert(context.Background(), "c2"))

	assert.Equal(t, []string{"connect:c1", "close:c1", "connect:c2"}, f.log.list())
	assert.Equal(t, "c2", f.ctrl.ViewModel().Concert.ID)
}

func TestRefresh_ClearsErrorOnSuccess(t *testing.T) {
	f := newFixture()
	f.api.seatsErr = context.DeadlineExceeded
	require.Error(t, f.ctrl.Load(context.Background(), "c1"))
	require.Error(t, f.ctrl.ViewModel().Err)

	f.api.mu.Lock()
	f.api.seatsErr = nil
	f.api.mu.Unlock()

	require.NoError(t, f.ctrl.Refresh(context.Background()))
	vm := f.ctrl.ViewModel()
	assert.NoError(t, vm.Err)
	assert.Len(t, vm.Seats, 4)
}

func TestRefresh_WithoutLoadFails(t *testing.T) {
	f := newFixture()
	assert.ErrorIs(t, f.ctrl.Refresh(context.Background()), ErrNoConcertID)
}

func TestCancelHold_ReleasesAndRefreshes(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.ctrl.Load(context.Background(), "c1"))
	f.ctrl.HandleSeatSelect(f.ctrl.ViewModel().Seats[0])
	_, err := f.ctrl.ConfirmHold(context.Background(), "u1")
	require.NoError(t, err)

	before := f.api.fetchCount()
	require.NoError(t, f.ctrl.CancelHold(context.Background()))

	f.api.mu.Lock()
	released := append([]string(nil), f.api.released...)
	f.api.mu.Unlock()
	assert.Equal(t, []string{"h1"}, released)
	assert.Nil(t, f.ctrl.Hold())
	assert.Nil(t, f.ctrl.ViewModel().SelectedSeat)
	assert.Greater(t, f.api.fetchCount(), before, "cancel must reconcile with a refresh")

	assert.ErrorIs(t, f.ctrl.CancelHold(context.Background()), ErrNoActiveHold)
}

func TestCloseDialog_Reconciles(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.ctrl.Load(context.Background(), "c1"))
	f.ctrl.HandleSeatSelect(f.ctrl.ViewModel().Seats[0])

	before := f.api.fetchCount()
	require.NoError(t, f.ctrl.CloseDialog(context.Background()))
	assert.Greater(t, f.api.fetchCount(), before)
	assert.Nil(t, f.ctrl.ViewModel().SelectedSeat)
}

func TestClose_TearsDownStreamAndTimer(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.ctrl.Load(context.Background(), "c1"))
	f.ctrl.HandleSeatSelect(f.ctrl.ViewModel().Seats[0])
	_, err := f.ctrl.ConfirmHold(context.Background(), "u1")
	require.NoError(t, err)
	timer := f.ctrl.HoldTimer()

	f.ctrl.Close()
	f.ctrl.Close() // idempotent

	assert.Contains(t, f.log.list(), "close:c1")
	assert.False(t, timer.IsActive())
	assert.Nil(t, f.ctrl.HoldTimer())

	// Load after Close is a no-op.
	require.NoError(t, f.ctrl.Load(context.Background(), "c1"))
}

func TestHoldExpiry_ClearsHoldAndRefreshes(t *testing.T) {
	f := newFixture()
	f.api.receipt = apiclient.HoldReceipt{HoldID: "h1", TTLSeconds: 1}
	require.NoError(t, f.ctrl.Load(context.Background(), "c1"))
	f.ctrl.HandleSeatSelect(f.ctrl.ViewModel().Seats[0])
	defer f.ctrl.Close()

	_, err := f.ctrl.ConfirmHold(context.Background(), "u1")
	require.NoError(t, err)
	before := f.api.fetchCount()

	// The one-second TTL runs out on the real clock.
	require.Eventually(t, func() bool { return f.ctrl.Hold() == nil },
		5*time.Second, 50*time.Millisecond)
	require.Eventually(t, func() bool { return f.api.fetchCount() > before },
		5*time.Second, 50*time.Millisecond)
}
