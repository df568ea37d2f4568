package dbbadger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
	"github.com/timshannon/badgerhold/v4"

	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
	"github.com/sealbid-network/sealbid-daemon/internal/core/ports"
)

// repoManager holds all the badgerhold stores in a single data structure.
type repoManager struct {
	listingRepository   domain.ListingRepository
	recordRepository    domain.RecordRepository
	bidSecretRepository domain.BidSecretRepository

	listingStore *badgerhold.Store
	recordStore  *badgerhold.Store
	secretStore  *badgerhold.Store
}

// NewRepoManager opens (or creates if missing) the badger stores on disk
// under the given base data dir, one dedicated directory per store.
func NewRepoManager(baseDbDir string, logger badger.Logger) (ports.RepoManager, error) {
	listingDb, err := createDb(filepath.Join(baseDbDir, "listings"), logger)
	if err != nil {
		return nil, fmt.Errorf("opening listings db: %w", err)
	}

	recordDb, err := createDb(filepath.Join(baseDbDir, "records"), logger)
	if err != nil {
		return nil, fmt.Errorf("opening records db: %w", err)
	}

	secretDb, err := createDb(filepath.Join(baseDbDir, "secrets"), logger)
	if err != nil {
		return nil, fmt.Errorf("opening secrets db: %w", err)
	}

	return &repoManager{
		listingRepository:   NewListingRepositoryImpl(listingDb),
		recordRepository:    NewRecordRepositoryImpl(recordDb),
		bidSecretRepository: NewBidSecretRepositoryImpl(secretDb),
		listingStore:        listingDb,
		recordStore:         recordDb,
		secretStore:         secretDb,
	}, nil
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

func (d *repoManager) Close() {
	d.listingStore.Close()
	d.recordStore.Close()
	d.secretStore.Close()
}

// NewWebhookStore opens (or creates if missing) the dedicated store of the
// registered webhooks.
func NewWebhookStore(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	store, err := createDb(dbDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening webhooks db: %w", err)
	}
	return store, nil
}

// JSONEncode is a custom JSON based encoder for badger
func JSONEncode(value interface{}) ([]byte, error) {
	var buff bytes.Buffer
	en := json.NewEncoder(&buff)
	if err := en.Encode(value); err != nil {
		return nil, err
	}
	return buff.Bytes(), nil
}

// JSONDecode is a custom JSON based decoder for badger
func JSONDecode(data []byte, value interface{}) error {
	var buff bytes.Buffer
	de := json.NewDecoder(&buff)
	if _, err := buff.Write(data); err != nil {
		return err
	}
	return de.Decode(value)
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	return badgerhold.Open(badgerhold.Options{
		Encoder:          JSONEncode,
		Decoder:          JSONDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}
