// Package sim is the in-memory development backend the client core
// runs against: it serves the same REST endpoints and seat-event
// stream as the production ticketing service, enforces hold TTLs and
// broadcasts seat updates to subscribers.  It is a fixture for tests
// and local development, not the production server.
package sim

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stagepass/seatsync/internal/logger"
	"github.com/stagepass/seatsync/internal/model"
)

// Sentinel errors the HTTP layer maps to status codes.
var (
	ErrConcertNotFound = errors.New("concert not found")
	ErrSeatNotFound    = errors.New("seat not found")
	ErrSeatTaken       = errors.New("seat is not available")
	ErrHoldNotFound    = errors.New("hold not found")
)

// SeatUpdate is one broadcast notification, also the SSE payload.
type SeatUpdate struct {
	SeatID    string           `json:"seat_id"`
	Status    model.SeatStatus `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
}

// holdRecord tracks one live hold and its expiry timer.
type holdRecord struct {
	ID        string `json:"id"`
	ConcertID string `json:"concert_id"`
	SeatID    string `json:"seat_id"`
	UserID    string `json:"user_id"`
	expire    *time.Timer
}

// Store owns all simulator state: concerts, seats, live holds and the
// per-concert subscriber sets.  When a Redis client is supplied, hold
// records are mirrored there with their TTL so a simulator restart
// picks live holds back up; a nil client keeps everything in memory.
type Store struct {
	mu        sync.Mutex
	concerts  map[string]*model.Concert
	seats     map[string]map[string]*model.Seat
	seatOwner map[string]string // seat ID -> concert ID
	order     []string          // concert insertion order for listings
	holds     map[string]*holdRecord
	subs      map[string]map[chan SeatUpdate]struct{}
	ttl       int
	rdb       *redis.Client
	log       *zap.Logger
}

// NewStore builds an empty store with the given hold TTL in seconds.
// rdb may be nil.
func NewStore(ttlSeconds int, rdb *redis.Client) *Store {
	if ttlSeconds <= 0 {
		ttlSeconds = model.DefaultHoldTTLSeconds
	}
	return &Store{
		concerts:  make(map[string]*model.Concert),
		seats:     make(map[string]map[string]*model.Seat),
		seatOwner: make(map[string]string),
		holds:     make(map[string]*holdRecord),
		subs:      make(map[string]map[chan SeatUpdate]struct{}),
		ttl:       ttlSeconds,
		rdb:       rdb,
		log:       logger.Get(),
	}
}

// AddConcert registers a concert and its seats.  Derived counts and
// price bounds on the concert are filled in from the seat list.
func (st *Store) AddConcert(c model.Concert, seats []model.Seat) {
	st.mu.Lock()
	defer st.mu.Unlock()

	c.TotalSeats = len(seats)
	c.AvailableSeats = 0
	for i, s := range seats {
		if s.Status == "" {
			seats[i].Status = model.SeatAvailable
		}
		seats[i].Normalize()
		if seats[i].Status == model.SeatAvailable {
			c.AvailableSeats++
		}
		if i == 0 || seats[i].PriceCents < c.MinPriceCents {
			c.MinPriceCents = seats[i].PriceCents
		}
		if seats[i].PriceCents > c.MaxPriceCents {
			c.MaxPriceCents = seats[i].PriceCents
		}
	}

	st.concerts[c.ID] = &c
	st.order = append(st.order, c.ID)
	byID := make(map[string]*model.Seat, len(seats))
	for i := range seats {
		seat := seats[i]
		byID[seat.ID] = &seat
		st.seatOwner[seat.ID] = c.ID
	}
	st.seats[c.ID] = byID
}

// Concerts lists all registered concerts in insertion order.
func (st *Store) Concerts() []model.Concert {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]model.Concert, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, *st.concerts[id])
	}
	return out
}

// Concert returns one concert by ID.
func (st *Store) Concert(id string) (model.Concert, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	c, ok := st.concerts[id]
	if !ok {
		return model.Concert{}, ErrConcertNotFound
	}
	return *c, nil
}

// Seats returns the seat list of a concert, ordered by block, row and
// number for stable output.
func (st *Store) Seats(concertID string) ([]model.Seat, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	byID, ok := st.seats[concertID]
	if !ok {
		return nil, ErrConcertNotFound
	}
	out := make([]model.Seat, 0, len(byID))
	for _, s := range byID {
		out = append(out, *s)
	}
	sortSeats(out)
	return out, nil
}

// CreateHold places a TTL-limited hold on a seat.  It fails with
// ErrSeatTaken when the seat is not AVAILABLE, which the HTTP layer
// reports as a conflict.
func (st *Store) CreateHold(seatID, userID string) (holdID string, ttl int, err error) {
	st.mu.Lock()
	concertID, ok := st.seatOwner[seatID]
	if !ok {
		st.mu.Unlock()
		return "", 0, ErrSeatNotFound
	}
	seat := st.seats[concertID][seatID]
	if seat.Status != model.SeatAvailable {
		st.mu.Unlock()
		return "", 0, ErrSeatTaken
	}

	rec := &holdRecord{
		ID:        uuid.NewString(),
		ConcertID: concertID,
		SeatID:    seatID,
		UserID:    userID,
	}
	st.holds[rec.ID] = rec
	st.setSeatStatusLocked(concertID, seatID, model.SeatHeld)
	rec.expire = time.AfterFunc(time.Duration(st.ttl)*time.Second, func() {
		st.expireHold(rec.ID)
	})
	ttl = st.ttl
	st.mu.Unlock()

	st.persistHold(rec, ttl)
	return rec.ID, ttl, nil
}

// ReleaseHold cancels a hold before expiry and frees the seat.
func (st *Store) ReleaseHold(holdID string) error {
	st.mu.Lock()
	rec, ok := st.holds[holdID]
	if !ok {
		st.mu.Unlock()
		return ErrHoldNotFound
	}
	rec.expire.Stop()
	delete(st.holds, holdID)
	st.setSeatStatusLocked(rec.ConcertID, rec.SeatID, model.SeatAvailable)
	st.mu.Unlock()

	st.forgetHold(holdID)
	return nil
}

// PurchaseHold finalizes a hold into a sale: the seat goes SOLD and
// the hold is consumed.
func (st *Store) PurchaseHold(holdID string) error {
	st.mu.Lock()
	rec, ok := st.holds[holdID]
	if !ok {
		st.mu.Unlock()
		return ErrHoldNotFound
	}
	rec.expire.Stop()
	delete(st.holds, holdID)
	st.setSeatStatusLocked(rec.ConcertID, rec.SeatID, model.SeatSold)
	st.mu.Unlock()

	st.forgetHold(holdID)
	return nil
}

// expireHold is the TTL timer callback: the seat goes back on sale.
func (st *Store) expireHold(holdID string) {
	st.mu.Lock()
	rec, ok := st.holds[holdID]
	if !ok {
		st.mu.Unlock()
		return
	}
	delete(st.holds, holdID)
	st.setSeatStatusLocked(rec.ConcertID, rec.SeatID, model.SeatAvailable)
	st.mu.Unlock()

	st.log.Info("hold expired", zap.String("hold_id", holdID), zap.String("seat_id", rec.SeatID))
	st.forgetHold(holdID)
}

// Subscribe registers a listener for one concert's seat updates.  The
// returned cancel function must be called when the subscriber goes
// away; it closes the channel.
func (st *Store) Subscribe(concertID string) (<-chan SeatUpdate, func(), error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.concerts[concertID]; !ok {
		return nil, nil, ErrConcertNotFound
	}
	ch := make(chan SeatUpdate, 16)
	set, ok := st.subs[concertID]
	if !ok {
		set = make(map[chan SeatUpdate]struct{})
		st.subs[concertID] = set
	}
	set[ch] = struct{}{}

	cancel := func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// setSeatStatusLocked mutates one seat, keeps the concert's available
// count in sync and fans the update out to subscribers.  Slow
// subscribers lose updates rather than blocking the store; the
// client's refresh path covers the gap.  Callers must hold st.mu.
func (st *Store) setSeatStatusLocked(concertID, seatID string, status model.SeatStatus) {
	seat := st.seats[concertID][seatID]
	if seat == nil || seat.Status == status {
		return
	}
	wasAvailable := seat.Status == model.SeatAvailable
	seat.Status = status
	c := st.concerts[concertID]
	if wasAvailable && status != model.SeatAvailable {
		c.AvailableSeats--
	} else if !wasAvailable && status == model.SeatAvailable {
		c.AvailableSeats++
	}

	update := SeatUpdate{SeatID: seatID, Status: status, Timestamp: time.Now().UTC()}
	for ch := range st.subs[concertID] {
		select {
		case ch <- update:
		default:
		}
	}
}

// persistHold mirrors a hold into Redis with its TTL, best effort.
func (st *Store) persistHold(rec *holdRecord, ttl int) {
	if st.rdb == nil {
		return
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := st.rdb.Set(ctx, "sim:hold:"+rec.ID, body, time.Duration(ttl)*time.Second).Err(); err != nil {
		st.log.Warn("redis hold persist failed", zap.Error(err))
	}
}

// forgetHold removes a hold's Redis mirror, best effort.
func (st *Store) forgetHold(holdID string) {
	if st.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = st.rdb.Del(ctx, "sim:hold:"+holdID).Err()
}

// RestoreHolds re-applies holds mirrored in Redis, typically right
// after seeding on startup.  Each restored hold resumes with the TTL
// remaining on its Redis key.
func (st *Store) RestoreHolds(ctx context.Context) {
	if st.rdb == nil {
		return
	}
	iter := st.rdb.Scan(ctx, 0, "sim:hold:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		body, err := st.rdb.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		remaining, err := st.rdb.TTL(ctx, key).Result()
		if err != nil || remaining <= 0 {
			continue
		}
		var rec holdRecord
		if err := json.Unmarshal(body, &rec); err != nil {
			continue
		}

		st.mu.Lock()
		if owner, ok := st.seatOwner[rec.SeatID]; ok && owner == rec.ConcertID {
			if seat := st.seats[rec.ConcertID][rec.SeatID]; seat != nil && seat.Status == model.SeatAvailable {
				restored := rec
				st.holds[restored.ID] = &restored
				st.setSeatStatusLocked(rec.ConcertID, rec.SeatID, model.SeatHeld)
				restored.expire = time.AfterFunc(remaining, func() {
					st.expireHold(restored.ID)
				})
				st.log.Info("restored hold from redis",
					zap.String("hold_id", restored.ID),
					zap.String("seat_id", restored.SeatID),
					zap.Duration("remaining", remaining),
				)
			}
		}
		st.mu.Unlock()
	}
}

// HoldTTL returns the TTL in seconds the store applies to new holds.
func (st *Store) HoldTTL() int { return st.ttl }

// sortSeats orders seats by block, row and number so seat listings
// are stable across requests.  Numbers compare numerically when both
// parse.
func sortSeats(seats []model.Seat) {
	sort.Slice(seats, func(i, j int) bool {
		a, b := seats[i], seats[j]
		if a.BlockKey() != b.BlockKey() {
			return a.BlockKey() < b.BlockKey()
		}
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		an, aerr := strconv.Atoi(a.Number)
		bn, berr := strconv.Atoi(b.Number)
		if aerr == nil && berr == nil {
			return an < bn
		}
		return a.Number < b.Number
	})
}
