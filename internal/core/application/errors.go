package application

import (
	"errors"

	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
)

var (
	// ErrWriteConflict is returned when the bounded retry budget of a DHT
	// compare-and-swap write is exhausted. The update is never silently
	// dropped: the caller decides whether to retry at a higher level.
	ErrWriteConflict = errors.New("dht write conflict: retry budget exhausted")
	// ErrSessionTimeout is returned when a computation session exceeded one
	// of its hard deadlines and was torn down.
	ErrSessionTimeout = errors.New("computation session timed out")
	// ErrProcessFailure is returned when the engine process exited nonzero
	// or produced an output not matching the result schema.
	ErrProcessFailure = errors.New("engine process failed or produced malformed output")
	// ErrOrderingMismatch is returned when the published party ordering does
	// not verify against the local view. The party abstains from computing.
	ErrOrderingMismatch = errors.New("party ordering verification failed")
	// ErrBidMismatch is returned when a reveal does not match both the
	// commitment and the attested result digest.
	ErrBidMismatch = errors.New("bid reveal does not match commitment or attestation")
	// ErrInboxFull is returned when the bounded per-listing inbox rejects a
	// new event under overflow.
	ErrInboxFull = errors.New("listing inbox is full")
	// ErrPartitionStall ...
	ErrPartitionStall = errors.New("expected peer unresponsive past the grace window")
	// ErrResourceInvariant signals a defect: a session resource was claimed
	// or released twice. It should never be observed.
	ErrResourceInvariant = errors.New("session resource invariant violated")
	// ErrListingNotFound ...
	ErrListingNotFound = errors.New("listing not found")
	// ErrBidSecretNotFound is returned when revealing a bid whose secret was
	// never stored locally.
	ErrBidSecretNotFound = errors.New("no local bid secret for this listing")
	// ErrInvalidSignature ...
	ErrInvalidSignature = errors.New("message signature verification failed")
	// ErrAttestationQuorumNotMet ...
	ErrAttestationQuorumNotMet = errors.New("attestation quorum not met")
)

// failureReasonOf maps a typed failure to the machine-readable reason stored
// on the listing's terminal status.
func failureReasonOf(err error) domain.FailureReason {
	switch {
	case errors.Is(err, ErrOrderingMismatch):
		return domain.FailureReasonPartyOrderingMismatch
	case errors.Is(err, ErrBidMismatch):
		return domain.FailureReasonBidMismatch
	case errors.Is(err, ErrWriteConflict):
		return domain.FailureReasonWriteConflict
	case errors.Is(err, ErrSessionTimeout):
		return domain.FailureReasonSessionTimeout
	case errors.Is(err, ErrProcessFailure):
		return domain.FailureReasonProcessFailure
	case errors.Is(err, ErrPartitionStall):
		return domain.FailureReasonPartitionStall
	case errors.Is(err, ErrResourceInvariant):
		return domain.FailureReasonResourceInvariant
	default:
		return domain.FailureReasonNone
	}
}
