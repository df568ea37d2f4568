package inmemory

import (
	"sync"

	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
	"github.com/sealbid-network/sealbid-daemon/internal/core/ports"
)

// repoManager is the in-memory implementation of ports.RepoManager, used by
// tests and by the demo mode of the daemon.
type repoManager struct {
	listingRepository   domain.ListingRepository
	recordRepository    domain.RecordRepository
	bidSecretRepository domain.BidSecretRepository
}

// NewRepoManager returns an in-memory implementation of ports.RepoManager.
func NewRepoManager() ports.RepoManager {
	return &repoManager{
		listingRepository: &listingRepositoryImpl{
			listings: map[string]domain.Listing{},
			lock:     &sync.RWMutex{},
		},
		recordRepository: &recordRepositoryImpl{
			records: map[string]domain.AuctionRecord{},
			lock:    &sync.RWMutex{},
		},
		bidSecretRepository: &bidSecretRepositoryImpl{
			secrets: map[string]domain.BidSecret{},
			lock:    &sync.RWMutex{},
		},
	}
}

func (d *repoManager) ListingRepository() domain.ListingRepository {
	return d.listingRepository
}

func (d *repoManager) RecordRepository() domain.RecordRepository {
	return d.recordRepository
}

func (d *repoManager) BidSecretRepository() domain.BidSecretRepository {
	return d.bidSecretRepository
}

func (d *repoManager) Close() {}
