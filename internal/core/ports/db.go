package ports

import (
	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
)

// RepoManager gives access to all the domain repositories backed by the same
// store, plus the store lifecycle.
type RepoManager interface {
	// ListingRepository returns the repository of the Listing entities.
	ListingRepository() domain.ListingRepository
	// RecordRepository returns the repository of the AuctionRecord entities.
	RecordRepository() domain.RecordRepository
	// BidSecretRepository returns the repository of the local bid secrets.
	BidSecretRepository() domain.BidSecretRepository
	// Close closes the connection with the store.
	Close()
}
