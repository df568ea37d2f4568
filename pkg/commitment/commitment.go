package commitment

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/thanhpk/randstr"
)

const nonceLength = 32

var (
	// ErrNullAmount ...
	ErrNullAmount = errors.New("amount must not be null")
	// ErrNegativeAmount ...
	ErrNegativeAmount = errors.New("amount must be strictly positive")
	// ErrNullNonce ...
	ErrNullNonce = errors.New("nonce must not be null")
	// ErrDigestMismatch is returned when an opened commitment does not match
	// its published digest.
	ErrDigestMismatch = errors.New("commitment digest mismatch")
)

// NewNonce returns a fresh random nonce to be kept secret by the bidder until
// the reveal phase.
func NewNonce() string {
	return randstr.Hex(nonceLength)
}

// Commit returns the hex-encoded digest binding the given amount and nonce.
// The amount is serialized in its canonical decimal form so that the same
// value always yields the same digest, regardless of how it was parsed.
func Commit(amount decimal.Decimal, nonce string) (string, error) {
	if amount.IsZero() {
		return "", ErrNullAmount
	}
	if amount.IsNegative() {
		return "", ErrNegativeAmount
	}
	if len(nonce) <= 0 {
		return "", ErrNullNonce
	}

	digest := sha256.Sum256(preimage(amount, nonce))
	return hex.EncodeToString(digest[:]), nil
}

// Verify checks that the given amount and nonce open the given commitment
// digest. It returns ErrDigestMismatch if they do not.
func Verify(digest string, amount decimal.Decimal, nonce string) error {
	computed, err := Commit(amount, nonce)
	if err != nil {
		return err
	}
	if computed != digest {
		return ErrDigestMismatch
	}
	return nil
}

// AmountDigest returns the hex-encoded digest of the canonical form of the
// given amount alone. The secure computation attests the digest of the
// winning input with this very construction, which is what lets a reveal be
// checked against the computation instead of only against the bidder's own
// commitment.
func AmountDigest(amount decimal.Decimal) string {
	digest := sha256.Sum256([]byte(amount.String()))
	return hex.EncodeToString(digest[:])
}

func preimage(amount decimal.Decimal, nonce string) []byte {
	return []byte(fmt.Sprintf("%s|%s", amount.String(), nonce))
}
