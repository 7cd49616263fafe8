package market

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/guildex/guildex/pkg/app/core/orderbook"
)

// MaxTickerLen is the longest ticker accepted.
const MaxTickerLen = 8

var (
	ErrTickerConflict  = errors.New("ticker already in use")
	ErrTickerInvalid   = errors.New("invalid ticker")
	ErrUnknownSecurity = errors.New("unknown security")
	ErrAlreadyListed   = errors.New("security already listed")
)

// Registry holds every listed security and keeps the ticker <-> security id mapping a
// bijection. Tickers compare case-insensitively and are stored upper case.
// Registry does no locking; the exchange engine serializes access.
type Registry struct {
	securities map[orderbook.SecurityID]*Security
	tickers    map[string]orderbook.SecurityID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		securities: make(map[orderbook.SecurityID]*Security),
		tickers:    make(map[string]orderbook.SecurityID),
	}
}

// NormalizeTicker validates a ticker (1-8 ASCII letters or digits) and upper-cases it.
func NormalizeTicker(ticker string) (string, error) {
	if ticker == "" || len(ticker) > MaxTickerLen {
		return "", fmt.Errorf("%w: %q must be 1-%d characters", ErrTickerInvalid, ticker, MaxTickerLen)
	}
	for _, r := range ticker {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !isAlnum {
			return "", fmt.Errorf("%w: %q must be alphanumeric", ErrTickerInvalid, ticker)
		}
	}
	return strings.ToUpper(ticker), nil
}

// Register lists a new security under its ticker.
func (r *Registry) Register(sec *Security) error {
	if sec == nil {
		return fmt.Errorf("cannot register nil security")
	}
	ticker, err := NormalizeTicker(sec.Ticker)
	if err != nil {
		return err
	}
	if _, exists := r.securities[sec.ID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyListed, sec.ID)
	}
	if owner, taken := r.tickers[ticker]; taken {
		return fmt.Errorf("%w: %s is held by %s", ErrTickerConflict, ticker, owner)
	}

	sec.Ticker = ticker
	r.securities[sec.ID] = sec
	r.tickers[ticker] = sec.ID
	return nil
}

// Get returns the security with the given id.
func (r *Registry) Get(id orderbook.SecurityID) (*Security, error) {
	sec, ok := r.securities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSecurity, id)
	}
	return sec, nil
}

// Lookup resolves a ticker, in any case, to its security.
func (r *Registry) Lookup(ticker string) (*Security, error) {
	norm, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	id, ok := r.tickers[norm]
	if !ok {
		return nil, fmt.Errorf("%w: ticker %s", ErrUnknownSecurity, norm)
	}
	return r.securities[id], nil
}

// SetTicker renames a security. The old mapping is removed before the new one is
// installed; on error nothing changes.
func (r *Registry) SetTicker(id orderbook.SecurityID, ticker string) error {
	sec, ok := r.securities[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSecurity, id)
	}
	norm, err := NormalizeTicker(ticker)
	if err != nil {
		return err
	}
	if owner, taken := r.tickers[norm]; taken {
		if owner == id {
			return nil
		}
		return fmt.Errorf("%w: %s is held by %s", ErrTickerConflict, norm, owner)
	}

	delete(r.tickers, sec.Ticker)
	sec.Ticker = norm
	r.tickers[norm] = id
	return nil
}

// List returns every security ordered by ticker.
func (r *Registry) List() []*Security {
	out := make([]*Security, 0, len(r.securities))
	for _, sec := range r.securities {
		out = append(out, sec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// Count returns the number of listed securities.
func (r *Registry) Count() int { return len(r.securities) }
