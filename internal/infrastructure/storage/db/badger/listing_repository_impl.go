package dbbadger

import (
	"context"
	"errors"

	"github.com/timshannon/badgerhold/v4"

	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
)

type listingRepositoryImpl struct {
	store *badgerhold.Store
}

// NewListingRepositoryImpl returns a badger implementation of the
// domain.ListingRepository interface.
func NewListingRepositoryImpl(store *badgerhold.Store) domain.ListingRepository {
	return &listingRepositoryImpl{store}
}

func (r *listingRepositoryImpl) AddListing(
	_ context.Context, listing *domain.Listing,
) error {
	if err := r.store.Insert(listing.Id, *listing); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return ErrListingAlreadyExists
		}
		return err
	}
	return nil
}

func (r *listingRepositoryImpl) GetListing(
	_ context.Context, listingId string,
) (*domain.Listing, error) {
	return r.getListing(listingId)
}

func (r *listingRepositoryImpl) GetAllListings(
	_ context.Context,
) ([]*domain.Listing, error) {
	listings := []domain.Listing{}
	if err := r.store.Find(&listings, nil); err != nil {
		return nil, err
	}

	list := make([]*domain.Listing, 0, len(listings))
	for i := range listings {
		l := listings[i]
		list = append(list, &l)
	}
	return list, nil
}

func (r *listingRepositoryImpl) GetListingsByStatus(
	ctx context.Context, statusCode int,
) ([]*domain.Listing, error) {
	all, err := r.GetAllListings(ctx)
	if err != nil {
		return nil, err
	}

	list := make([]*domain.Listing, 0)
	for _, l := range all {
		if l.Status.Code == statusCode {
			list = append(list, l)
		}
	}
	return list, nil
}

func (r *listingRepositoryImpl) UpdateListing(
	_ context.Context,
	listingId string,
	updateFn func(l *domain.Listing) (*domain.Listing, error),
) error {
	listing, err := r.getListing(listingId)
	if err != nil {
		return err
	}

	updated, err := updateFn(listing)
	if err != nil {
		return err
	}

	return r.store.Update(updated.Id, *updated)
}

func (r *listingRepositoryImpl) getListing(listingId string) (*domain.Listing, error) {
	var listing domain.Listing
	if err := r.store.Get(listingId, &listing); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return &listing, nil
}
