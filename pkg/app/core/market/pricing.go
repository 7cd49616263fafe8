package market

import "github.com/shopspring/decimal"

// Activity is what the periodic job observed in a guild since its previous run.
type Activity struct {
	Members  int64 `json:"members"`
	Messages int64 `json:"messages"`
	Authors  int64 `json:"authors"` // distinct message authors
}

// Pricing turns guild activity into true-price samples and drifts the traded price
// toward the true price.
type Pricing struct {
	Base          decimal.Decimal
	MemberWeight  decimal.Decimal
	MessageWeight decimal.Decimal
	AuthorWeight  decimal.Decimal

	// Fraction of the gap between traded and true price closed per drift step.
	DriftWeight decimal.Decimal

	// Number of samples averaged into the true price.
	Window int
}

// DefaultPricing returns the weights used when nothing is configured.
func DefaultPricing() Pricing {
	return Pricing{
		Base:          decimal.NewFromInt(1),
		MemberWeight:  decimal.RequireFromString("0.05"),
		MessageWeight: decimal.RequireFromString("0.2"),
		AuthorWeight:  decimal.NewFromInt(1),
		DriftWeight:   decimal.RequireFromString("0.1"),
		Window:        24,
	}
}

// Sample computes one true-price sample. Never below 1.
func (p Pricing) Sample(a Activity) int64 {
	v := p.Base.
		Add(p.MemberWeight.Mul(decimal.NewFromInt(a.Members))).
		Add(p.MessageWeight.Mul(decimal.NewFromInt(a.Messages))).
		Add(p.AuthorWeight.Mul(decimal.NewFromInt(a.Authors)))
	return floor1(v.Round(0).IntPart())
}

// Drift moves actual toward truePrice by DriftWeight of the gap. When rounding would
// leave a non-zero gap untouched the price still moves one coin. Never below 1.
func (p Pricing) Drift(actual, truePrice int64) int64 {
	gap := truePrice - actual
	if gap == 0 {
		return floor1(actual)
	}
	step := p.DriftWeight.Mul(decimal.NewFromInt(gap)).Round(0).IntPart()
	if step == 0 {
		if gap > 0 {
			step = 1
		} else {
			step = -1
		}
	}
	return floor1(actual + step)
}

func floor1(v int64) int64 {
	if v < 1 {
		return 1
	}
	return v
}
