package inmemory

import (
	"context"
	"sync"

	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
)

type bidSecretRepositoryImpl struct {
	secrets map[string]domain.BidSecret
	lock    *sync.RWMutex
}

func (r *bidSecretRepositoryImpl) AddSecret(
	_ context.Context, secret *domain.BidSecret,
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.secrets[secret.ListingId] = *secret
	return nil
}

func (r *bidSecretRepositoryImpl) GetSecret(
	_ context.Context, listingId string,
) (*domain.BidSecret, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	secret, ok := r.secrets[listingId]
	if !ok {
		return nil, ErrSecretNotFound
	}
	return &secret, nil
}

func (r *bidSecretRepositoryImpl) DeleteSecret(
	_ context.Context, listingId string,
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.secrets, listingId)
	return nil
}
