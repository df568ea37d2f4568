package dbbadger

import (
	"context"
	"errors"

	"github.com/timshannon/badgerhold/v4"

	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
)

type recordRepositoryImpl struct {
	store *badgerhold.Store
}

// NewRecordRepositoryImpl returns a badger implementation of the
// domain.RecordRepository interface.
func NewRecordRepositoryImpl(store *badgerhold.Store) domain.RecordRepository {
	return &recordRepositoryImpl{store}
}

func (r *recordRepositoryImpl) AddRecord(
	_ context.Context, record *domain.AuctionRecord,
) error {
	if err := r.store.Insert(record.ListingId, *record); err != nil {
		// records are immutable: inserting twice for the same listing is a
		// no-op as long as the settlement is idempotent
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return nil
		}
		return err
	}
	return nil
}

func (r *recordRepositoryImpl) GetRecord(
	_ context.Context, listingId string,
) (*domain.AuctionRecord, error) {
	var record domain.AuctionRecord
	if err := r.store.Get(listingId, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *recordRepositoryImpl) GetAllRecords(
	_ context.Context,
) ([]*domain.AuctionRecord, error) {
	records := []domain.AuctionRecord{}
	if err := r.store.Find(&records, nil); err != nil {
		return nil, err
	}

	list := make([]*domain.AuctionRecord, 0, len(records))
	for i := range records {
		rec := records[i]
		list = append(list, &rec)
	}
	return list, nil
}
