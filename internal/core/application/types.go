package application

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/shopspring/decimal"

	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
)

// DHT key layout. Every record of the marketplace lives under one of these
// prefixes, keyed by listing id.
const (
	listingKeyPrefix  = "sealbid/listing/"
	bidsKeyPrefix     = "sealbid/bids/"
	orderingKeyPrefix = "sealbid/ordering/"
	recordKeyPrefix   = "sealbid/record/"
)

// ListingKey returns the DHT key of the listing descriptor record.
func ListingKey(listingId string) string { return listingKeyPrefix + listingId }

// BidsKey returns the DHT key of the bid commitment set record.
func BidsKey(listingId string) string { return bidsKeyPrefix + listingId }

// OrderingKey returns the DHT key of the canonical party ordering record.
func OrderingKey(listingId string) string { return orderingKeyPrefix + listingId }

// RecordKey returns the DHT key of the settled auction record.
func RecordKey(listingId string) string { return recordKeyPrefix + listingId }

// listingPayload is the CBOR shape of a listing descriptor in the DHT.
type listingPayload struct {
	Id               string `cbor:"1,keyasint"`
	Seller           string `cbor:"2,keyasint"`
	Title            string `cbor:"3,keyasint"`
	Description      string `cbor:"4,keyasint,omitempty"`
	BiddingCloseTime int64  `cbor:"5,keyasint"`
	RevealDeadline   int64  `cbor:"6,keyasint"`
	StatusCode       int    `cbor:"7,keyasint"`
	Reason           string `cbor:"8,keyasint,omitempty"`
}

// bidEntry is one sealed bid inside the bid set record.
type bidEntry struct {
	Bidder      string `cbor:"1,keyasint"`
	Digest      string `cbor:"2,keyasint"`
	PublishTime int64  `cbor:"3,keyasint"`
}

// bidSetPayload is the CBOR shape of the commitment set of a listing. All
// bidders merge their own entry into the same record with CAS writes.
type bidSetPayload struct {
	ListingId   string     `cbor:"1,keyasint"`
	Commitments []bidEntry `cbor:"2,keyasint"`
}

// partyEntry is one party of the ordering record.
type partyEntry struct {
	Index    int    `cbor:"1,keyasint"`
	Identity string `cbor:"2,keyasint"`
	Digest   string `cbor:"3,keyasint"`
}

// orderingPayload is the CBOR shape of the canonical party ordering.
type orderingPayload struct {
	ListingId string       `cbor:"1,keyasint"`
	Publisher string       `cbor:"2,keyasint"`
	Parties   []partyEntry `cbor:"3,keyasint"`
	Signature []byte       `cbor:"4,keyasint"`
}

// attestationEntry is one attestation inside the auction record.
type attestationEntry struct {
	Party        string `cbor:"1,keyasint"`
	ResultDigest string `cbor:"2,keyasint"`
	Signature    []byte `cbor:"3,keyasint"`
}

// recordPayload is the CBOR shape of the final auction record in the DHT.
// It never contains any losing bid amount.
type recordPayload struct {
	ListingId    string             `cbor:"1,keyasint"`
	Winner       string             `cbor:"2,keyasint"`
	ClearedPrice string             `cbor:"3,keyasint"`
	ResultDigest string             `cbor:"4,keyasint"`
	Attestations []attestationEntry `cbor:"5,keyasint"`
	SettledAt    int64              `cbor:"6,keyasint"`
}

// parsePrice parses an amount in its canonical decimal string form,
// rejecting anything non-positive.
func parsePrice(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed amount: %w", err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive")
	}
	return price, nil
}

func encodeOrdering(a *domain.PartyAssignment) ([]byte, error) {
	parties := make([]partyEntry, 0, len(a.Parties))
	for _, p := range a.Parties {
		parties = append(parties, partyEntry{p.Index, p.Identity, p.CommitmentDigest})
	}
	return cbor.Marshal(orderingPayload{
		ListingId: a.ListingId,
		Publisher: a.Publisher,
		Parties:   parties,
		Signature: a.Signature,
	})
}

func decodeOrdering(raw []byte) (*domain.PartyAssignment, error) {
	payload := &orderingPayload{}
	if err := cbor.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("malformed ordering record: %w", err)
	}
	parties := make([]domain.Party, 0, len(payload.Parties))
	for _, p := range payload.Parties {
		parties = append(parties, domain.Party{
			Index:            p.Index,
			Identity:         p.Identity,
			CommitmentDigest: p.Digest,
		})
	}
	return &domain.PartyAssignment{
		ListingId: payload.ListingId,
		Parties:   parties,
		Publisher: payload.Publisher,
		Signature: payload.Signature,
	}, nil
}

func encodeRecord(r *domain.AuctionRecord) ([]byte, error) {
	attestations := make([]attestationEntry, 0, len(r.Attestations))
	for _, a := range r.Attestations {
		attestations = append(attestations, attestationEntry{
			Party:        a.Party,
			ResultDigest: a.ResultDigest,
			Signature:    a.Signature,
		})
	}
	return cbor.Marshal(recordPayload{
		ListingId:    r.ListingId,
		Winner:       r.Winner,
		ClearedPrice: r.ClearedPrice.String(),
		ResultDigest: r.ResultDigest,
		Attestations: attestations,
		SettledAt:    r.SettlementTime,
	})
}

func decodeRecord(raw []byte) (*domain.AuctionRecord, error) {
	payload := &recordPayload{}
	if err := cbor.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("malformed auction record: %w", err)
	}
	price, err := decimal.NewFromString(payload.ClearedPrice)
	if err != nil {
		return nil, fmt.Errorf("malformed cleared price: %w", err)
	}
	attestations := make([]domain.Attestation, 0, len(payload.Attestations))
	for _, a := range payload.Attestations {
		attestations = append(attestations, domain.Attestation{
			ListingId:    payload.ListingId,
			Party:        a.Party,
			ResultDigest: a.ResultDigest,
			Signature:    a.Signature,
		})
	}
	return &domain.AuctionRecord{
		ListingId:      payload.ListingId,
		Winner:         payload.Winner,
		ClearedPrice:   price,
		ResultDigest:   payload.ResultDigest,
		Attestations:   attestations,
		SettlementTime: payload.SettledAt,
	}, nil
}
