package domain

import "context"

// BidSecretRepository is the abstraction for the local storage of own bid
// secrets, kept until the reveal phase.
type BidSecretRepository interface {
	// AddSecret persists the secret side of an own bid.
	AddSecret(ctx context.Context, secret *BidSecret) error
	// GetSecret returns the own bid secret for the given listing.
	GetSecret(ctx context.Context, listingId string) (*BidSecret, error)
	// DeleteSecret removes the secret of a listing that reached a terminal
	// status.
	DeleteSecret(ctx context.Context, listingId string) error
}
