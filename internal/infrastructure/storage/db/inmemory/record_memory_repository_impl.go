package inmemory

import (
	"context"
	"sync"

	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
)

type recordRepositoryImpl struct {
	records map[string]domain.AuctionRecord
	lock    *sync.RWMutex
}

func (r *recordRepositoryImpl) AddRecord(
	_ context.Context, record *domain.AuctionRecord,
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.records[record.ListingId]; ok {
		return nil
	}
	r.records[record.ListingId] = *record
	return nil
}

func (r *recordRepositoryImpl) GetRecord(
	_ context.Context, listingId string,
) (*domain.AuctionRecord, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	record, ok := r.records[listingId]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &record, nil
}

func (r *recordRepositoryImpl) GetAllRecords(
	_ context.Context,
) ([]*domain.AuctionRecord, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]*domain.AuctionRecord, 0, len(r.records))
	for _, rec := range r.records {
		record := rec
		list = append(list, &record)
	}
	return list, nil
}
