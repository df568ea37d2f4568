package domain

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// PricingRule selects the price paid by the winning bidder.
type PricingRule int

const (
	// PricingRuleFirstPrice makes the winner pay its own bid.
	PricingRuleFirstPrice PricingRule = iota
	// PricingRuleSecondPrice makes the winner pay the highest losing bid.
	PricingRuleSecondPrice
)

// ErrNoBids ...
var ErrNoBids = errors.New("at least one bid is needed to clear an auction")

// ClearingPrice returns the price the winner pays under the given rule for
// the given set of bids. This is the single place where the pricing rule of
// the marketplace is encoded.
func ClearingPrice(rule PricingRule, bids []decimal.Decimal) (decimal.Decimal, error) {
	if len(bids) <= 0 {
		return decimal.Zero, ErrNoBids
	}

	sorted := make([]decimal.Decimal, len(bids))
	copy(sorted, bids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].GreaterThan(sorted[j])
	})

	if rule == PricingRuleSecondPrice && len(sorted) > 1 {
		return sorted[1], nil
	}
	return sorted[0], nil
}
