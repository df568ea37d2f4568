package dbbadger

import (
	"context"
	"errors"

	"github.com/timshannon/badgerhold/v4"

	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
)

type bidSecretRepositoryImpl struct {
	store *badgerhold.Store
}

// NewBidSecretRepositoryImpl returns a badger implementation of the
// domain.BidSecretRepository interface.
func NewBidSecretRepositoryImpl(store *badgerhold.Store) domain.BidSecretRepository {
	return &bidSecretRepositoryImpl{store}
}

func (r *bidSecretRepositoryImpl) AddSecret(
	_ context.Context, secret *domain.BidSecret,
) error {
	return r.store.Upsert(secret.ListingId, *secret)
}

func (r *bidSecretRepositoryImpl) GetSecret(
	_ context.Context, listingId string,
) (*domain.BidSecret, error) {
	var secret domain.BidSecret
	if err := r.store.Get(listingId, &secret); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, ErrSecretNotFound
		}
		return nil, err
	}
	return &secret, nil
}

func (r *bidSecretRepositoryImpl) DeleteSecret(
	_ context.Context, listingId string,
) error {
	err := r.store.Delete(listingId, domain.BidSecret{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil
	}
	return err
}
