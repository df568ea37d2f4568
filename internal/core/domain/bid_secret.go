package domain

import (
	"github.com/shopspring/decimal"
)

// BidSecret is the local, never-published side of an own bid: the amount and
// the nonce that open the commitment at reveal time. It never leaves the
// bidder's datadir until the winner challenge.
type BidSecret struct {
	ListingId string
	Amount    decimal.Decimal
	Nonce     string
	Digest    string
}
