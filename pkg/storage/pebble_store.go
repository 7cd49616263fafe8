package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/guildex/guildex/pkg/app/core/ledger"
	"github.com/guildex/guildex/pkg/app/core/market"
	"github.com/guildex/guildex/pkg/app/core/orderbook"
	"github.com/guildex/guildex/pkg/app/exchange"
)

// PebbleStore persists the exchange state and its trade log in a pebble database.
type PebbleStore struct {
	db *pebble.DB

	mu sync.Mutex
	// security -> number of history points already on disk. History is append-only, so
	// a commit only writes the tail.
	histLen map[orderbook.SecurityID]int
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db, histLen: make(map[orderbook.SecurityID]int)}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// Commit replaces the stored state with st and appends trades, in one synced batch.
func (s *PebbleStore) Commit(st *exchange.State, trades []exchange.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.db.NewBatch()
	defer b.Close()

	m, err := encodeGob(meta{NextOrderID: st.NextOrderID, Halted: st.Halted})
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	if err := b.Set([]byte(keyMeta), m, nil); err != nil {
		return err
	}

	for _, prefix := range []string{prefixAccount, prefixSecurity, prefixOrder} {
		p := []byte(prefix)
		if err := b.DeleteRange(p, keyUpperBound(p), nil); err != nil {
			return fmt.Errorf("clear %s: %w", prefix, err)
		}
	}

	for _, acc := range st.Accounts {
		if err := setJSON(b, accountKey(acc.ID), acc); err != nil {
			return fmt.Errorf("save account %s: %w", acc.ID, err)
		}
	}

	written := make(map[orderbook.SecurityID]int, len(st.Securities))
	for _, ss := range st.Securities {
		head := ss
		head.History = nil
		head.Orders = nil
		if err := setJSON(b, securityKey(ss.ID), head); err != nil {
			return fmt.Errorf("save security %s: %w", ss.ID, err)
		}
		for _, o := range ss.Orders {
			if err := setJSON(b, orderKey(ss.ID, o.ID), o); err != nil {
				return fmt.Errorf("save order %d: %w", o.ID, err)
			}
		}

		from := s.histLen[ss.ID]
		if from > len(ss.History) {
			if err := b.DeleteRange(historyKey(ss.ID, len(ss.History)), keyUpperBound(historyPrefix(ss.ID)), nil); err != nil {
				return err
			}
			from = len(ss.History)
		}
		for i := from; i < len(ss.History); i++ {
			if err := setJSON(b, historyKey(ss.ID, i), ss.History[i]); err != nil {
				return fmt.Errorf("save history %s/%d: %w", ss.ID, i, err)
			}
		}
		written[ss.ID] = len(ss.History)
	}

	for _, t := range trades {
		if err := setJSON(b, tradeKey(t.Security, t.Time, t.ID), t); err != nil {
			return fmt.Errorf("save trade %s: %w", t.ID, err)
		}
	}

	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	for id, n := range written {
		s.histLen[id] = n
	}
	return nil
}

func setJSON(b *pebble.Batch, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Set(key, data, nil)
}

// LoadState reads the last committed state. It returns nil, nil for an empty database.
func (s *PebbleStore) LoadState() (*exchange.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	val, closer, err := s.db.Get([]byte(keyMeta))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get meta: %w", err)
	}
	var m meta
	err = decodeGob(val, &m)
	closer.Close()
	if err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}
	st := &exchange.State{NextOrderID: m.NextOrderID, Halted: m.Halted}

	err = s.scan([]byte(prefixAccount), func(v []byte) error {
		var acc ledger.Account
		if err := json.Unmarshal(v, &acc); err != nil {
			return err
		}
		st.Accounts = append(st.Accounts, &acc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	byID := make(map[orderbook.SecurityID]*exchange.SecurityState)
	var secs []exchange.SecurityState
	err = s.scan([]byte(prefixSecurity), func(v []byte) error {
		var ss exchange.SecurityState
		if err := json.Unmarshal(v, &ss); err != nil {
			return err
		}
		secs = append(secs, ss)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load securities: %w", err)
	}
	for i := range secs {
		byID[secs[i].ID] = &secs[i]
	}

	err = s.scan([]byte(prefixOrder), func(v []byte) error {
		var o orderbook.Order
		if err := json.Unmarshal(v, &o); err != nil {
			return err
		}
		ss, ok := byID[o.Security]
		if !ok {
			return fmt.Errorf("order %d of unknown security %s", o.ID, o.Security)
		}
		ss.Orders = append(ss.Orders, o)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}

	for i := range secs {
		ss := &secs[i]
		sort.Slice(ss.Orders, func(a, b int) bool { return ss.Orders[a].ID < ss.Orders[b].ID })
		err := s.scan(historyPrefix(ss.ID), func(v []byte) error {
			var p market.PricePoint
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			ss.History = append(ss.History, p)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("load history of %s: %w", ss.ID, err)
		}
		s.histLen[ss.ID] = len(ss.History)
	}
	st.Securities = secs
	return st, nil
}

func (s *PebbleStore) scan(prefix []byte, fn func(v []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// LoadRecentTrades returns up to limit trades of sec, newest first.
func (s *PebbleStore) LoadRecentTrades(sec orderbook.SecurityID, limit int) ([]exchange.Trade, error) {
	prefix := tradePrefix(sec)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var trades []exchange.Trade
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var t exchange.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			continue
		}
		trades = append(trades, t)
	}
	return trades, iter.Error()
}

var _ exchange.Store = (*PebbleStore)(nil)
