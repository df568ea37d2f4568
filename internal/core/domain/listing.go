package domain

import (
	"time"

	"github.com/google/uuid"
)

// ListingStatus represents the different statuses that a listing can assume.
// The code only ever moves forward; a terminal code is never left once
// reached. The failure reason is set on every terminal non-Settled status.
type ListingStatus struct {
	Code   int
	Reason FailureReason
}

func (s ListingStatus) String() string {
	if label, ok := statusLabels[s.Code]; ok {
		return label
	}
	return "unknown"
}

// Listing is the data structure representing an auctioned item and the whole
// lifecycle of its sealed-bid auction. Transitions are driven by the
// coordinator, one event at a time, so methods don't need to be safe for
// concurrent use.
type Listing struct {
	Id               string
	Seller           string
	ItemTitle        string
	ItemDescription  string
	BiddingCloseTime int64
	RevealDeadline   int64
	Status           ListingStatus
	// StateDeadline is the wall-clock deadline of the current non-terminal
	// status. Expiry never results in an indefinite wait: the coordinator
	// forces a terminal transition with a specific cause.
	StateDeadline int64
	// Commitments mirrors the bid commitments observed in the DHT for audit.
	Commitments []BidCommitment
	// Assignment is immutable once accepted.
	Assignment *PartyAssignment
	// Result is the attested outcome of the secure computation.
	Result *ComputedResult
	// Record is the final auction record, set on settlement.
	Record         *AuctionRecord
	SettlementTime int64
	// Stalled parks the listing while an expected peer is unresponsive; the
	// status code is left untouched so the forward-only property holds.
	Stalled       bool
	StallDeadline int64
}

// NewListing returns a listing with a new id in Created status.
func NewListing(seller, title, description string) *Listing {
	return &Listing{
		Id:              uuid.New().String(),
		Seller:          seller,
		ItemTitle:       title,
		ItemDescription: description,
		Status:          ListingStatus{Code: ListingStatusCodeCreated},
	}
}

// Open brings the listing from Created to Open and sets the bidding close
// time and the reveal deadline.
func (l *Listing) Open(closeTime, revealDeadline int64) (bool, error) {
	if l.Status.Code >= ListingStatusCodeOpen {
		return true, nil
	}

	now := time.Now().Unix()
	if closeTime <= now || revealDeadline <= closeTime {
		return false, ErrListingInvalidDeadline
	}

	l.BiddingCloseTime = closeTime
	l.RevealDeadline = revealDeadline
	l.StateDeadline = closeTime
	l.Status.Code = ListingStatusCodeOpen
	return true, nil
}

// AddCommitment records a bid commitment observed for this listing. The
// commitment set is append-only and duplicates by bidder are rejected.
func (l *Listing) AddCommitment(c BidCommitment) error {
	if !l.IsOpen() {
		return ErrListingMustBeOpen
	}
	if len(c.Digest) <= 0 {
		return ErrBidNullDigest
	}
	for _, cc := range l.Commitments {
		if cc.Bidder == c.Bidder {
			if cc.Digest == c.Digest {
				return nil
			}
			return ErrBidDuplicated
		}
	}
	l.Commitments = append(l.Commitments, c)
	return nil
}

// CloseBidding brings the listing from Open to BiddingClosed once the close
// time has passed. The given deadline bounds the party assignment phase.
func (l *Listing) CloseBidding(assignDeadline int64) (bool, error) {
	if l.Status.Code >= ListingStatusCodeBiddingClosed {
		return true, nil
	}
	if l.Status.Code != ListingStatusCodeOpen {
		return false, ErrListingMustBeOpen
	}
	if time.Now().Unix() < l.BiddingCloseTime {
		return false, ErrListingDeadlineNotReached
	}

	l.StateDeadline = assignDeadline
	l.Status.Code = ListingStatusCodeBiddingClosed
	return true, nil
}

// StartAssigning brings the listing from BiddingClosed to PartyAssigning.
func (l *Listing) StartAssigning(deadline int64) (bool, error) {
	if l.Status.Code >= ListingStatusCodePartyAssigning {
		return true, nil
	}
	if l.Status.Code != ListingStatusCodeBiddingClosed {
		return false, ErrListingMustBeClosed
	}

	l.StateDeadline = deadline
	l.Status.Code = ListingStatusCodePartyAssigning
	return true, nil
}

// AcceptAssignment stores the canonical party assignment. The assignment is
// immutable: accepting a different one for the same listing is an error.
func (l *Listing) AcceptAssignment(a *PartyAssignment) error {
	if l.Status.Code != ListingStatusCodePartyAssigning {
		return ErrListingMustBeAssigning
	}
	if a == nil || len(a.Parties) <= 0 {
		return ErrAssignmentEmpty
	}
	if l.Assignment != nil {
		if l.Assignment.Fingerprint() == a.Fingerprint() {
			return nil
		}
		return ErrAssignmentAlreadyAccepted
	}
	l.Assignment = a
	return nil
}

// StartComputation brings the listing from PartyAssigning to
// ComputationRunning. An accepted party assignment is mandatory.
func (l *Listing) StartComputation(deadline int64) (bool, error) {
	if l.Status.Code >= ListingStatusCodeComputationRunning {
		return true, nil
	}
	if l.Status.Code != ListingStatusCodePartyAssigning {
		return false, ErrListingMustBeAssigning
	}
	if l.Assignment == nil {
		return false, ErrListingNullAssignment
	}

	l.StateDeadline = deadline
	l.Status.Code = ListingStatusCodeComputationRunning
	return true, nil
}

// AttestResult brings the listing from ComputationRunning to ResultAttested
// by storing the quorum-attested computation result.
func (l *Listing) AttestResult(result *ComputedResult, challengeDeadline int64) (bool, error) {
	if l.Status.Code >= ListingStatusCodeResultAttested {
		return true, nil
	}
	if l.Status.Code != ListingStatusCodeComputationRunning {
		return false, ErrListingMustBeComputing
	}
	if result == nil {
		return false, ErrListingNullResult
	}

	l.Result = result
	l.StateDeadline = challengeDeadline
	l.Status.Code = ListingStatusCodeResultAttested
	return true, nil
}

// OpenChallenge brings the listing from ResultAttested to WinnerChallenge,
// the window within which the winner must reveal its bid.
func (l *Listing) OpenChallenge() (bool, error) {
	if l.Status.Code >= ListingStatusCodeWinnerChallenge {
		return true, nil
	}
	if l.Status.Code != ListingStatusCodeResultAttested {
		return false, ErrListingMustBeAttested
	}

	l.StateDeadline = l.RevealDeadline
	l.Status.Code = ListingStatusCodeWinnerChallenge
	return true, nil
}

// Settle brings the listing from WinnerChallenge to Settled. The auction
// record must match the attested result: the settlement gate never trusts a
// record that the computation did not attest to.
func (l *Listing) Settle(record *AuctionRecord, settlementTime int64) (bool, error) {
	if l.Status.Code == ListingStatusCodeSettled {
		return true, nil
	}
	if l.Status.Code != ListingStatusCodeWinnerChallenge {
		return false, ErrListingMustBeChallenge
	}
	if l.Result == nil {
		return false, ErrListingNullResult
	}
	if record == nil ||
		record.ResultDigest != l.Result.ResultDigest ||
		!record.ClearedPrice.Equal(l.Result.ClearedPrice) {
		return false, ErrListingResultMismatch
	}

	l.Record = record
	l.SettlementTime = settlementTime
	l.StateDeadline = 0
	l.Stalled = false
	l.Status.Code = ListingStatusCodeSettled
	return true, nil
}

// Fail marks the listing as terminally failed with the given reason. Once a
// terminal status is reached the listing never leaves it.
func (l *Listing) Fail(reason FailureReason) bool {
	if l.IsTerminal() {
		return false
	}
	l.Status.Code = ListingStatusCodeFailed
	l.Status.Reason = reason
	l.StateDeadline = 0
	l.Stalled = false
	return true
}

// Expire marks the listing as terminally expired once the deadline of its
// current status has passed.
func (l *Listing) Expire() (bool, error) {
	if l.Status.Code == ListingStatusCodeExpired {
		return true, nil
	}
	if l.IsTerminal() {
		return false, ErrListingIsTerminal
	}
	if l.StateDeadline <= 0 || time.Now().Unix() < l.StateDeadline {
		return false, ErrListingDeadlineNotReached
	}

	l.Status.Code = ListingStatusCodeExpired
	l.Status.Reason = FailureReasonDeadlineExceeded
	l.StateDeadline = 0
	l.Stalled = false
	return true, nil
}

// Cancel marks the listing as terminally cancelled.
func (l *Listing) Cancel(reason FailureReason) (bool, error) {
	if l.Status.Code == ListingStatusCodeCancelled {
		return true, nil
	}
	if l.IsTerminal() {
		return false, ErrListingIsTerminal
	}

	l.Status.Code = ListingStatusCodeCancelled
	l.Status.Reason = reason
	l.StateDeadline = 0
	l.Stalled = false
	return true, nil
}

// Stall parks the listing until the given TTL while an expected peer is
// unresponsive. The status code is untouched so a later resume doesn't
// reverse any transition.
func (l *Listing) Stall(ttl int64) {
	if l.IsTerminal() || l.Stalled {
		return
	}
	l.Stalled = true
	l.StallDeadline = ttl
}

// Resume unparks a stalled listing after a successful reconciliation.
func (l *Listing) Resume() {
	l.Stalled = false
	l.StallDeadline = 0
}

// IsOpen returns whether the listing is in Open status.
func (l *Listing) IsOpen() bool {
	return l.Status.Code == ListingStatusCodeOpen
}

// IsSettled returns whether the listing is in Settled status.
func (l *Listing) IsSettled() bool {
	return l.Status.Code == ListingStatusCodeSettled
}

// IsTerminal returns whether the listing reached any terminal status.
func (l *Listing) IsTerminal() bool {
	return l.Status.Code >= ListingStatusCodeSettled
}

// IsStalled returns whether the listing is parked waiting for a peer.
func (l *Listing) IsStalled() bool {
	return l.Stalled
}

// IsStallExpired returns whether the stall TTL of a parked listing passed.
func (l *Listing) IsStallExpired() bool {
	return l.Stalled && l.StallDeadline > 0 &&
		time.Now().Unix() >= l.StallDeadline
}

// IsDeadlineExceeded returns whether the deadline of the current non-terminal
// status has passed.
func (l *Listing) IsDeadlineExceeded() bool {
	return !l.IsTerminal() && l.StateDeadline > 0 &&
		time.Now().Unix() >= l.StateDeadline
}

// CommitmentOf returns the commitment published by the given bidder, if any.
func (l *Listing) CommitmentOf(bidder string) (BidCommitment, bool) {
	for _, c := range l.Commitments {
		if c.Bidder == bidder {
			return c, true
		}
	}
	return BidCommitment{}, false
}
