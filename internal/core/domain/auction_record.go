package domain

import (
	"github.com/shopspring/decimal"
)

// Attestation is the signed report of one party confirming the result digest
// it independently observed from its own engine run.
type Attestation struct {
	ListingId    string
	Party        string
	ResultDigest string
	Signature    []byte
}

// ComputedResult is a computation outcome that already gathered an
// attestation quorum. It is a distinct type from the raw engine output on
// purpose: an unattested result can never reach the settlement gate.
type ComputedResult struct {
	WinnerPartyIndex int
	Winner           string
	ClearedPrice     decimal.Decimal
	// ResultDigest is the digest of the winning input the computation itself
	// attests to. The winner's reveal is checked against it, not only against
	// the winner's own commitment.
	ResultDigest string
	Attestations []Attestation
}

// AuctionRecord is the immutable final outcome of a settled auction.
type AuctionRecord struct {
	Id             string
	ListingId      string
	Winner         string
	ClearedPrice   decimal.Decimal
	ResultDigest   string
	Attestations   []Attestation
	SettlementTime int64
}
