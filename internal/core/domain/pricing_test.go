package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
)

func TestClearingPrice(t *testing.T) {
	bids := []decimal.Decimal{
		decimal.RequireFromString("101.25"),
		decimal.RequireFromString("200.75"),
		decimal.RequireFromString("150.5"),
	}

	tests := []struct {
		name     string
		rule     domain.PricingRule
		bids     []decimal.Decimal
		expected string
	}{
		{
			name:     "first price pays the winning bid",
			rule:     domain.PricingRuleFirstPrice,
			bids:     bids,
			expected: "200.75",
		},
		{
			name:     "second price pays the highest losing bid",
			rule:     domain.PricingRuleSecondPrice,
			bids:     bids,
			expected: "150.5",
		},
		{
			name:     "second price with a single bid pays the bid",
			rule:     domain.PricingRuleSecondPrice,
			bids:     bids[:1],
			expected: "101.25",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, err := domain.ClearingPrice(tt.rule, tt.bids)
			require.NoError(t, err)
			require.Equal(t, tt.expected, price.String())
		})
	}

	t.Run("no bids", func(t *testing.T) {
		_, err := domain.ClearingPrice(domain.PricingRuleFirstPrice, nil)
		require.ErrorIs(t, err, domain.ErrNoBids)
	})
}
