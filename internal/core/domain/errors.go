package domain

import "errors"

var (
	// ErrListingMustBeCreated ...
	ErrListingMustBeCreated = errors.New("listing must be in created status to perform this operation")
	// ErrListingMustBeOpen ...
	ErrListingMustBeOpen = errors.New("listing must be in open status to perform this operation")
	// ErrListingMustBeClosed ...
	ErrListingMustBeClosed = errors.New("listing must be in bidding_closed status to perform this operation")
	// ErrListingMustBeAssigning ...
	ErrListingMustBeAssigning = errors.New("listing must be in party_assigning status to perform this operation")
	// ErrListingMustBeComputing ...
	ErrListingMustBeComputing = errors.New("listing must be in computation_running status to perform this operation")
	// ErrListingMustBeAttested ...
	ErrListingMustBeAttested = errors.New("listing must be in result_attested status to perform this operation")
	// ErrListingMustBeChallenge ...
	ErrListingMustBeChallenge = errors.New("listing must be in winner_challenge status to perform this operation")
	// ErrListingIsTerminal is thrown when trying to advance a listing that
	// already reached a terminal status.
	ErrListingIsTerminal = errors.New("listing already reached a terminal status")
	// ErrListingInvalidDeadline ...
	ErrListingInvalidDeadline = errors.New("deadline must be in the future and reveal deadline must follow the bidding close")
	// ErrListingDeadlineNotReached ...
	ErrListingDeadlineNotReached = errors.New("listing deadline not yet reached")
	// ErrListingNullAssignment is thrown when trying to start a computation
	// without an accepted party assignment.
	ErrListingNullAssignment = errors.New("listing has no accepted party assignment")
	// ErrListingNullResult is thrown when trying to settle a listing without
	// an attested computation result.
	ErrListingNullResult = errors.New("listing has no attested computation result")
	// ErrListingResultMismatch is thrown when the auction record to settle
	// does not match the attested result.
	ErrListingResultMismatch = errors.New("auction record does not match the attested result")
	// ErrBidDuplicated ...
	ErrBidDuplicated = errors.New("bidder already committed a bid for this listing")
	// ErrBidNullDigest ...
	ErrBidNullDigest = errors.New("bid commitment digest must not be null")
	// ErrAssignmentAlreadyAccepted is thrown when trying to replace an
	// already accepted party assignment, which is immutable by contract.
	ErrAssignmentAlreadyAccepted = errors.New("party assignment is immutable once accepted")
	// ErrAssignmentEmpty ...
	ErrAssignmentEmpty = errors.New("party assignment must contain at least one party")
	// ErrAssignmentNotCanonical is thrown when the parties of an assignment
	// are not sorted by commitment digest or their indexes are not contiguous.
	ErrAssignmentNotCanonical = errors.New("party assignment is not in canonical order")
	// ErrAssignmentDuplicateIdentity ...
	ErrAssignmentDuplicateIdentity = errors.New("party assignment contains a duplicated identity")
	// ErrAssignmentMissingSelf is thrown by a party whose own commitment does
	// not appear in the assignment it is asked to accept.
	ErrAssignmentMissingSelf = errors.New("own commitment not found in party assignment")
)
