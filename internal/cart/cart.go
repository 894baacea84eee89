// Package cart records held seats for later checkout.  It is the
// collaborator the seat-hold workflow mirrors confirmed holds into;
// checkout itself lives elsewhere.
package cart

import (
	"sync"

	"github.com/stagepass/seatsync/internal/model"
)

// Cart is an in-memory, concurrency-safe list of held seats.
type Cart struct {
	mu    sync.Mutex
	items []model.Hold
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{}
}

// AddItem records a confirmed hold.  A hold that is already present
// (same hold ID) is replaced rather than duplicated.
func (c *Cart) AddItem(h model.Hold) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == h.ID {
			c.items[i] = h
			return
		}
	}
	c.items = append(c.items, h)
}

// Remove drops the hold with the given ID, if present, and reports
// whether anything was removed.
func (c *Cart) Remove(holdID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == holdID {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

// Items returns a copy of the recorded holds in insertion order.
func (c *Cart) Items() []model.Hold {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Hold, len(c.items))
	copy(out, c.items)
	return out
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
}
