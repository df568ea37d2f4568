package domain

const (
	ListingStatusCodeCreated = iota
	ListingStatusCodeOpen
	ListingStatusCodeBiddingClosed
	ListingStatusCodePartyAssigning
	ListingStatusCodeComputationRunning
	ListingStatusCodeResultAttested
	ListingStatusCodeWinnerChallenge
	ListingStatusCodeSettled
	ListingStatusCodeFailed
	ListingStatusCodeExpired
	ListingStatusCodeCancelled
)

// FailureReason is the machine-readable cause attached to every terminal
// non-Settled listing status.
type FailureReason int

const (
	FailureReasonNone FailureReason = iota
	FailureReasonPartyOrderingMismatch
	FailureReasonBidMismatch
	FailureReasonWriteConflict
	FailureReasonSessionTimeout
	FailureReasonProcessFailure
	FailureReasonPartitionStall
	FailureReasonResourceInvariant
	FailureReasonDeadlineExceeded
)

var failureReasonLabels = map[FailureReason]string{
	FailureReasonNone:                  "none",
	FailureReasonPartyOrderingMismatch: "party_ordering_mismatch",
	FailureReasonBidMismatch:           "bid_mismatch",
	FailureReasonWriteConflict:         "write_conflict",
	FailureReasonSessionTimeout:        "session_timeout",
	FailureReasonProcessFailure:        "process_failure",
	FailureReasonPartitionStall:        "partition_stall",
	FailureReasonResourceInvariant:     "resource_invariant_violation",
	FailureReasonDeadlineExceeded:      "deadline_exceeded",
}

func (r FailureReason) String() string {
	if label, ok := failureReasonLabels[r]; ok {
		return label
	}
	return "unknown"
}

// FailureReasonFromLabel returns the reason matching the given label, or
// FailureReasonNone if unknown.
func FailureReasonFromLabel(label string) FailureReason {
	for reason, l := range failureReasonLabels {
		if l == label {
			return reason
		}
	}
	return FailureReasonNone
}

var statusLabels = map[int]string{
	ListingStatusCodeCreated:            "created",
	ListingStatusCodeOpen:               "open",
	ListingStatusCodeBiddingClosed:      "bidding_closed",
	ListingStatusCodePartyAssigning:     "party_assigning",
	ListingStatusCodeComputationRunning: "computation_running",
	ListingStatusCodeResultAttested:     "result_attested",
	ListingStatusCodeWinnerChallenge:    "winner_challenge",
	ListingStatusCodeSettled:            "settled",
	ListingStatusCodeFailed:             "failed",
	ListingStatusCodeExpired:            "expired",
	ListingStatusCodeCancelled:          "cancelled",
}
