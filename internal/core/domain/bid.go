package domain

// BidCommitment is the sealed bid of a bidder for a listing: the digest binds
// the bid amount and a secret nonce without revealing either. Commitments are
// immutable once published.
type BidCommitment struct {
	ListingId   string
	Bidder      string
	Digest      string
	PublishTime int64
}
