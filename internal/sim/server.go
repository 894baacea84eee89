package sim

// This file exposes the store over HTTP with echo: the REST endpoints
// the client core consumes, the per-concert SSE stream, and a dev-only
// token endpoint so the token-passing paths can be exercised locally.

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/stagepass/seatsync/internal/model"
)

// devTokenSecret signs dev tokens.  The simulator never verifies
// them; real token enforcement is the production backend's concern.
const devTokenSecret = "seatsync-dev-secret"

// heartbeatInterval paces SSE comment lines so idle connections are
// not reaped by intermediaries.
const heartbeatInterval = 15 * time.Second

// Server wires a Store into echo handlers.
type Server struct {
	store *Store
}

// NewServer builds a Server around the given store.
func NewServer(store *Store) *Server {
	return &Server{store: store}
}

// Register attaches all simulator routes to an echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/concerts", s.listConcerts)
	e.GET("/v1/concerts/:id", s.getConcert)
	e.GET("/v1/concerts/:id/seats", s.getSeats)
	e.GET("/v1/concerts/:id/stream", s.streamSeats)
	e.POST("/v1/holds", s.createHold)
	e.DELETE("/v1/holds/:id", s.releaseHold)
	e.POST("/v1/holds/:id/purchase", s.purchaseHold)
	e.POST("/v1/auth/dev-token", s.devToken)
}

// listConcerts returns every registered concert.
func (s *Server) listConcerts(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"items": s.store.Concerts()})
}

// getConcert returns one concert or 404.
func (s *Server) getConcert(c echo.Context) error {
	concert, err := s.store.Concert(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "concert not found"})
	}
	return c.JSON(http.StatusOK, concert)
}

// getSeats returns the seat list of a concert.
func (s *Server) getSeats(c echo.Context) error {
	seats, err := s.store.Seats(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "concert not found"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": seats})
}

// createHold places a hold on a seat.  An unavailable seat yields 409
// so clients can distinguish "grabbed by someone else" from other
// failures.
func (s *Server) createHold(c echo.Context) error {
	var body struct {
		SeatID string `json:"seat_id"`
		UserID string `json:"user_id"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.SeatID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat_id is required"})
	}
	holdID, ttl, err := s.store.CreateHold(body.SeatID, body.UserID)
	switch {
	case errors.Is(err, ErrSeatNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "seat not found"})
	case errors.Is(err, ErrSeatTaken):
		return c.JSON(http.StatusConflict, echo.Map{"error": "seat is already held or sold"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hold failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"hold_id": holdID, "ttl_seconds": ttl})
}

// releaseHold cancels a hold before it expires.
func (s *Server) releaseHold(c echo.Context) error {
	if err := s.store.ReleaseHold(c.Param("id")); err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "hold not found"})
	}
	return c.NoContent(http.StatusNoContent)
}

// purchaseHold finalizes a hold into a sale.
func (s *Server) purchaseHold(c echo.Context) error {
	if err := s.store.PurchaseHold(c.Param("id")); err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "hold not found"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": string(model.SeatSold)})
}

// streamSeats serves the per-concert SSE stream.  The session token
// arrives as a query parameter because the browser EventSource API
// cannot set headers; the simulator accepts it without verification.
func (s *Server) streamSeats(c echo.Context) error {
	updates, cancel, err := s.store.Subscribe(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "concert not found"})
	}
	defer cancel()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set(echo.HeaderConnection, "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	enc := func(u SeatUpdate) error {
		body, err := marshalUpdate(u)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(resp, "event: seat-update\ndata: %s\n\n", body); err != nil {
			return err
		}
		resp.Flush()
		return nil
	}

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(resp, ": heartbeat\n\n"); err != nil {
				return nil
			}
			resp.Flush()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if err := enc(u); err != nil {
				return nil
			}
		}
	}
}

// marshalUpdate renders one update as the SSE data payload.
func marshalUpdate(u SeatUpdate) ([]byte, error) {
	return json.Marshal(u)
}

// devToken issues an unverified HS256 session token for local use.
// It carries sub and a one hour exp, enough for the client's
// expiry-aware token provider to exercise its paths.
func (s *Server) devToken(c echo.Context) error {
	var body struct {
		UserID string `json:"user_id"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.UserID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id is required"})
	}
	exp := time.Now().UTC().Add(time.Hour)
	claims := jwt.MapClaims{
		"sub": body.UserID,
		"exp": exp.Unix(),
		"iat": time.Now().UTC().Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(devTokenSecret))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token signing failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"token": signed, "expires_at": exp})
}
