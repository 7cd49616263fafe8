// Package activity counts guild activity between price updates and periodically feeds
// it to the exchange engine.
package activity

import (
	"sync"

	"github.com/guildex/guildex/pkg/app/core/market"
	"github.com/guildex/guildex/pkg/app/core/orderbook"
)

type guildCounts struct {
	members  int64
	messages int64
	authors  map[orderbook.UserID]struct{}
}

// Tracker accumulates per-guild message counts, distinct authors and member counts.
// It is safe for concurrent use; chat events arrive on many goroutines.
type Tracker struct {
	mu     sync.Mutex
	guilds map[orderbook.SecurityID]*guildCounts
}

func NewTracker() *Tracker {
	return &Tracker{guilds: make(map[orderbook.SecurityID]*guildCounts)}
}

func (t *Tracker) get(guild orderbook.SecurityID) *guildCounts {
	c, ok := t.guilds[guild]
	if !ok {
		c = &guildCounts{authors: make(map[orderbook.UserID]struct{})}
		t.guilds[guild] = c
	}
	return c
}

func (t *Tracker) RecordMessage(guild orderbook.SecurityID, author orderbook.UserID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.get(guild)
	c.messages++
	c.authors[author] = struct{}{}
}

// SetMembers records the guild's current member count. It survives Drain.
func (t *Tracker) SetMembers(guild orderbook.SecurityID, members int64) {
	if members < 0 {
		members = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.get(guild).members = members
}

// Drain returns the activity since the previous drain and resets the message and
// author counters.
func (t *Tracker) Drain() map[orderbook.SecurityID]market.Activity {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[orderbook.SecurityID]market.Activity, len(t.guilds))
	for id, c := range t.guilds {
		out[id] = market.Activity{
			Members:  c.members,
			Messages: c.messages,
			Authors:  int64(len(c.authors)),
		}
		c.messages = 0
		c.authors = make(map[orderbook.UserID]struct{})
	}
	return out
}
