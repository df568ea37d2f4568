package inmemory

import (
	"context"
	"sync"

	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
)

type listingRepositoryImpl struct {
	listings map[string]domain.Listing
	lock     *sync.RWMutex
}

func (r *listingRepositoryImpl) AddListing(
	_ context.Context, listing *domain.Listing,
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.listings[listing.Id]; ok {
		return ErrListingAlreadyExists
	}
	r.listings[listing.Id] = *listing
	return nil
}

func (r *listingRepositoryImpl) GetListing(
	_ context.Context, listingId string,
) (*domain.Listing, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	listing, ok := r.listings[listingId]
	if !ok {
		return nil, ErrListingNotFound
	}
	return &listing, nil
}

func (r *listingRepositoryImpl) GetAllListings(
	_ context.Context,
) ([]*domain.Listing, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]*domain.Listing, 0, len(r.listings))
	for _, l := range r.listings {
		listing := l
		list = append(list, &listing)
	}
	return list, nil
}

func (r *listingRepositoryImpl) GetListingsByStatus(
	_ context.Context, statusCode int,
) ([]*domain.Listing, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]*domain.Listing, 0)
	for _, l := range r.listings {
		if l.Status.Code == statusCode {
			listing := l
			list = append(list, &listing)
		}
	}
	return list, nil
}

func (r *listingRepositoryImpl) UpdateListing(
	_ context.Context,
	listingId string,
	updateFn func(l *domain.Listing) (*domain.Listing, error),
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	listing, ok := r.listings[listingId]
	if !ok {
		return ErrListingNotFound
	}

	updated, err := updateFn(&listing)
	if err != nil {
		return err
	}

	r.listings[listingId] = *updated
	return nil
}
