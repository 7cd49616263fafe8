package storage

import (
	"encoding/json"
	"sync"

	"github.com/guildex/guildex/pkg/app/core/orderbook"
	"github.com/guildex/guildex/pkg/app/exchange"
)

// MemStore keeps the committed state in memory. It is used when no data directory is
// configured and in tests. Every commit is stored encoded, so later engine
// mutations never leak into the stored state.
type MemStore struct {
	mu     sync.Mutex
	state  []byte
	trades map[orderbook.SecurityID][]exchange.Trade
}

func NewMemStore() *MemStore {
	return &MemStore{trades: make(map[orderbook.SecurityID][]exchange.Trade)}
}

func (s *MemStore) Commit(st *exchange.State, trades []exchange.Trade) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = data
	for _, t := range trades {
		s.trades[t.Security] = append(s.trades[t.Security], t)
	}
	return nil
}

func (s *MemStore) LoadState() (*exchange.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, nil
	}
	var st exchange.State
	if err := json.Unmarshal(s.state, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// LoadRecentTrades returns up to limit trades of sec, newest first.
func (s *MemStore) LoadRecentTrades(sec orderbook.SecurityID, limit int) ([]exchange.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.trades[sec]
	var out []exchange.Trade
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

var _ exchange.Store = (*MemStore)(nil)
