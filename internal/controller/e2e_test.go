package controller

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagepass/seatsync/internal/apiclient"
	"github.com/stagepass/seatsync/internal/cart"
	"github.com/stagepass/seatsync/internal/model"
	"github.com/stagepass/seatsync/internal/sim"
	"github.com/stagepass/seatsync/internal/stream"
)

// startBackend runs the full simulator over httptest.
func startBackend(t *testing.T) (string, *sim.Store) {
	t.Helper()
	store := sim.NewStore(600, nil)
	sim.Seed(store)
	e := echo.New()
	e.HideBanner = true
	sim.NewServer(store).Register(e)
	ts := httptest.NewServer(e)
	t.Cleanup(ts.Close)
	return ts.URL, store
}

// TestEndToEnd_LiveUpdatesReachTheViewModel wires the real REST
// client, the real stream client and the controller against the
// simulator: a hold placed by another party must show up in the view
// model without a refresh.
func TestEndToEnd_LiveUpdatesReachTheViewModel(t *testing.T) {
	baseURL, store := startBackend(t)

	api := apiclient.New(baseURL, nil)
	basket := cart.New()
	ctrl := NewSeatDetail(api, basket, Options{
		DefaultTTL: 600,
		Streams: NewStreamFactory(baseURL, stream.Options{
			BaseWait:   10 * time.Millisecond,
			MaxWait:    50 * time.Millisecond,
			MaxRetries: 3,
		}),
	})
	defer ctrl.Close()

	require.NoError(t, ctrl.Load(context.Background(), "c1"))
	vm := ctrl.ViewModel()
	require.Equal(t, 22, vm.Availability.Available)

	require.Eventually(t, func() bool {
		return ctrl.ViewModel().ConnectionStatus == stream.StateConnected
	}, 3*time.Second, 10*time.Millisecond)

	// Another party grabs a seat; the stream must deliver it.
	_, _, err := store.CreateHold("A3-4", "someone-else")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return ctrl.ViewModel().Availability.Held == 2
	}, 3*time.Second, 10*time.Millisecond)

	for _, s := range ctrl.ViewModel().Seats {
		if s.ID == "A3-4" {
			assert.Equal(t, model.SeatHeld, s.Status)
		}
	}
}

// TestEndToEnd_HoldWorkflow exercises the full hold confirmation path
// against the simulator, including the cart mirror and the conflict
// answer for a second taker.
func TestEndToEnd_HoldWorkflow(t *testing.T) {
	baseURL, _ := startBackend(t)

	api := apiclient.New(baseURL, nil)
	basket := cart.New()
	ctrl := NewSeatDetail(api, basket, Options{
		DefaultTTL: 600,
		Streams: NewStreamFactory(baseURL, stream.Options{
			BaseWait:   10 * time.Millisecond,
			MaxWait:    50 * time.Millisecond,
			MaxRetries: 3,
		}),
	})
	defer ctrl.Close()

	require.NoError(t, ctrl.Load(context.Background(), "c1"))

	var target model.Seat
	for _, s := range ctrl.ViewModel().Seats {
		if s.ID == "B2-2" {
			target = s
			break
		}
	}
	require.Equal(t, model.SeatAvailable, target.Status)

	ctrl.HandleSeatSelect(target)
	hold, err := ctrl.ConfirmHold(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, hold.ID)
	assert.Equal(t, 600, hold.TTLSeconds)
	assert.Len(t, basket.Items(), 1)

	// A second client cannot take the same seat.
	_, err = api.CreateSeatHold(context.Background(), "B2-2", "u2")
	assert.ErrorIs(t, err, apiclient.ErrSeatConflict)

	// Cancelling releases the seat and reconciles local state.
	require.NoError(t, ctrl.CancelHold(context.Background()))
	require.Eventually(t, func() bool {
		for _, s := range ctrl.ViewModel().Seats {
			if s.ID == "B2-2" {
				return s.Status == model.SeatAvailable
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)
}
