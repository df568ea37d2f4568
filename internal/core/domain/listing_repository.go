package domain

import "context"

// ListingRepository is the abstraction for any kind of database intended to
// persist Listings.
type ListingRepository interface {
	// AddListing persists a new listing.
	AddListing(ctx context.Context, listing *Listing) error
	// GetListing returns the listing with the given id.
	GetListing(ctx context.Context, listingId string) (*Listing, error)
	// GetAllListings returns all the listings stored in the repository.
	GetAllListings(ctx context.Context) ([]*Listing, error)
	// GetListingsByStatus returns all the listings with the given status code.
	GetListingsByStatus(ctx context.Context, statusCode int) ([]*Listing, error)
	// UpdateListing allows to commit multiple changes to the same listing in
	// a transactional way.
	UpdateListing(
		ctx context.Context,
		listingId string,
		updateFn func(l *Listing) (*Listing, error),
	) error
}
