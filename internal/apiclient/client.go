package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stagepass/seatsync/internal/model"
)

// TokenProvider yields the current session token, or "" when the
// session is anonymous or expired.  It is consulted per request so a
// refreshed token is picked up without rebuilding the client.
type TokenProvider func() string

// Client talks to the ticketing backend over REST.  It owns no state
// beyond the connection pool; all ticketing state lives server-side.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenProvider
}

// New constructs a Client for the given base URL.  token may be nil
// for anonymous access.
func New(baseURL string, token TokenProvider) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		token:   token,
	}
}

// HoldReceipt is the backend's confirmation of a created hold.  A
// zero TTLSeconds means the backend declared none and the client
// default applies.
type HoldReceipt struct {
	HoldID     string `json:"hold_id"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// errorBody matches the backend's error envelope {"error": "..."}.
type errorBody struct {
	Error string `json:"error"`
}

// FetchConcertByID retrieves one concert.  A 404 maps to
// ErrConcertNotFound; other failures surface the backend message when
// one is present.
func (c *Client) FetchConcertByID(ctx context.Context, id string) (*model.Concert, error) {
	var concert model.Concert
	if err := c.getJSON(ctx, "/v1/concerts/"+id, &concert); err != nil {
		return nil, err
	}
	return &concert, nil
}

// FetchConcertSeats retrieves the full seat list of a concert.  Seats
// are normalized (category default applied) before being returned.
func (c *Client) FetchConcertSeats(ctx context.Context, concertID string) ([]model.Seat, error) {
	var body struct {
		Items []model.Seat `json:"items"`
	}
	if err := c.getJSON(ctx, "/v1/concerts/"+concertID+"/seats", &body); err != nil {
		return nil, err
	}
	for i := range body.Items {
		body.Items[i].Normalize()
	}
	return body.Items, nil
}

// CreateSeatHold asks the backend to hold a seat for the given user.
// A 409 maps to ErrSeatConflict and means the seat was grabbed by
// someone else first.
func (c *Client) CreateSeatHold(ctx context.Context, seatID, userID string) (*HoldReceipt, error) {
	payload, err := json.Marshal(map[string]string{
		"seat_id": seatID,
		"user_id": userID,
	})
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/holds", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create hold: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, c.mapError(resp)
	}
	var receipt HoldReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, fmt.Errorf("decode hold receipt: %w", err)
	}
	return &receipt, nil
}

// ReleaseSeatHold cancels a hold before it expires.  Releasing a hold
// the backend already expired returns ErrHoldNotFound, which callers
// normally ignore.
func (c *Client) ReleaseSeatHold(ctx context.Context, holdID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/v1/holds/"+holdID, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("release hold: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		return nil
	}
	return c.mapError(resp)
}

// getJSON performs a GET and decodes a JSON body into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.mapError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// newRequest builds a request with the session token, when one is
// available, in the Authorization header.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != nil {
		if t := c.token(); t != "" {
			req.Header.Set("Authorization", "Bearer "+t)
		}
	}
	return req, nil
}

// mapError converts a non-success response into the package's error
// taxonomy.  The backend message, when present, is preserved in the
// wrapped error text.
func (c *Client) mapError(resp *http.Response) error {
	var body errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)

	switch resp.StatusCode {
	case http.StatusNotFound:
		if strings.Contains(resp.Request.URL.Path, "/holds/") {
			return ErrHoldNotFound
		}
		return ErrConcertNotFound
	case http.StatusConflict:
		if body.Error != "" {
			return fmt.Errorf("%w: %s", ErrSeatConflict, body.Error)
		}
		return ErrSeatConflict
	}
	if body.Error != "" {
		return fmt.Errorf("backend error (%d): %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("backend error (%d)", resp.StatusCode)
}
