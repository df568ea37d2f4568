package commitment_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sealbid-network/sealbid-daemon/pkg/commitment"
)

func TestCommitAndVerify(t *testing.T) {
	amount := decimal.NewFromInt(200)
	nonce := commitment.NewNonce()

	digest, err := commitment.Commit(amount, nonce)
	require.NoError(t, err)
	require.Len(t, digest, 64)

	err = commitment.Verify(digest, amount, nonce)
	require.NoError(t, err)
}

func TestCommitIsCanonical(t *testing.T) {
	nonce := commitment.NewNonce()

	fromInt := decimal.NewFromInt(150)
	fromString, err := decimal.NewFromString("150")
	require.NoError(t, err)

	d1, err := commitment.Commit(fromInt, nonce)
	require.NoError(t, err)
	d2, err := commitment.Commit(fromString, nonce)
	require.NoError(t, err)
	require.Equal(t, d1, d2)
}

func TestFailingCommit(t *testing.T) {
	tests := []struct {
		name        string
		amount      decimal.Decimal
		nonce       string
		expectedErr error
	}{
		{
			name:        "with_null_amount",
			amount:      decimal.Zero,
			nonce:       commitment.NewNonce(),
			expectedErr: commitment.ErrNullAmount,
		},
		{
			name:        "with_negative_amount",
			amount:      decimal.NewFromInt(-10),
			nonce:       commitment.NewNonce(),
			expectedErr: commitment.ErrNegativeAmount,
		},
		{
			name:        "with_null_nonce",
			amount:      decimal.NewFromInt(10),
			nonce:       "",
			expectedErr: commitment.ErrNullNonce,
		},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			_, err := commitment.Commit(tt.amount, tt.nonce)
			require.EqualError(t, err, tt.expectedErr.Error())
		})
	}
}

func TestFailingVerify(t *testing.T) {
	amount := decimal.NewFromInt(200)
	nonce := commitment.NewNonce()
	digest, err := commitment.Commit(amount, nonce)
	require.NoError(t, err)

	tests := []struct {
		name   string
		amount decimal.Decimal
		nonce  string
	}{
		{
			name:   "with_wrong_amount",
			amount: decimal.NewFromInt(150),
			nonce:  nonce,
		},
		{
			name:   "with_wrong_nonce",
			amount: amount,
			nonce:  commitment.NewNonce(),
		},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			err := commitment.Verify(digest, tt.amount, tt.nonce)
			require.EqualError(t, err, commitment.ErrDigestMismatch.Error())
		})
	}
}

func TestAmountDigestIsCanonical(t *testing.T) {
	fromInt := commitment.AmountDigest(decimal.NewFromInt(200))
	fromString, err := decimal.NewFromString("200")
	require.NoError(t, err)
	require.Equal(t, fromInt, commitment.AmountDigest(fromString))
}
