// Package quote holds the latest quote of every subscribed instrument.
package quote

import (
	"slices"
	"sync"

	"github.com/rickgao/tradesim/internal/model"
)

// Cache maps symbols to their latest quote. A symbol's slot exists from its
// first subscription; updates for unsubscribed symbols are ignored.
type Cache struct {
	mu     sync.RWMutex
	quotes map[string]*slot
}

type slot struct {
	quote model.Quote
	ready bool
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{quotes: make(map[string]*slot)}
}

// Subscribe creates the symbol's slot. It reports whether the slot is new.
func (c *Cache) Subscribe(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.quotes[symbol]; ok {
		return false
	}
	c.quotes[symbol] = &slot{quote: model.Quote{Symbol: symbol}}
	return true
}

// Subscribed reports whether the symbol has a slot.
func (c *Cache) Subscribed(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.quotes[symbol]
	return ok
}

// Update replaces the symbol's quote wholesale. It returns false when the
// symbol is not subscribed.
func (c *Cache) Update(q model.Quote) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.quotes[q.Symbol]
	if !ok {
		return false
	}
	s.quote = q
	s.ready = true
	return true
}

// Get returns a copy of the latest quote and whether one has arrived yet.
func (c *Cache) Get(symbol string) (model.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.quotes[symbol]
	if !ok || !s.ready {
		return model.Quote{}, false
	}
	return s.quote, true
}

// Symbols returns the subscribed symbols in sorted order.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.quotes))
	for s := range c.quotes {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}
