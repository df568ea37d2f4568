package application

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/fxamacker/cbor/v2"

	log "github.com/sirupsen/logrus"

	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
	"github.com/sealbid-network/sealbid-daemon/internal/core/ports"
	"github.com/sealbid-network/sealbid-daemon/pkg/identity"
)

const (
	defaultWriteAttempts  = 5
	defaultInitialBackoff = 100 * time.Millisecond
	defaultRequestTimeout = 5 * time.Second
)

// RegistryService publishes and resolves the marketplace records stored in
// the DHT: listing descriptors, bid commitment sets, party orderings and
// settled auction records. Concurrent writers of the same record are
// resolved with compare-and-swap on the record sequence, retried with
// exponential backoff and jitter within a bounded attempt budget.
type RegistryService interface {
	PublishListing(ctx context.Context, listing *domain.Listing) error
	FetchListing(ctx context.Context, listingId string) (*domain.Listing, error)
	PublishCommitment(
		ctx context.Context, commitment domain.BidCommitment,
	) error
	// SnapshotCommitments returns the bid commitment set currently visible
	// in the DHT for the given listing.
	SnapshotCommitments(
		ctx context.Context, listingId string,
	) ([]domain.BidCommitment, error)
	PublishOrdering(ctx context.Context, assignment *domain.PartyAssignment) error
	FetchOrdering(
		ctx context.Context, listingId string,
	) (*domain.PartyAssignment, error)
	PublishRecord(ctx context.Context, record *domain.AuctionRecord) error
	FetchRecord(ctx context.Context, listingId string) (*domain.AuctionRecord, error)
}

type registryService struct {
	dht            ports.DHT
	signer         *identity.Identity
	writeAttempts  int
	initialBackoff time.Duration
	requestTimeout time.Duration
}

// NewRegistryService returns a RegistryService writing to the given DHT and
// signing every published payload with the given identity.
func NewRegistryService(
	dht ports.DHT, signer *identity.Identity,
) RegistryService {
	return &registryService{
		dht:            dht,
		signer:         signer,
		writeAttempts:  defaultWriteAttempts,
		initialBackoff: defaultInitialBackoff,
		requestTimeout: defaultRequestTimeout,
	}
}

func (s *registryService) PublishListing(
	ctx context.Context, listing *domain.Listing,
) error {
	return s.casUpdate(ctx, ListingKey(listing.Id), func(_ []byte) ([]byte, error) {
		return cbor.Marshal(listingPayload{
			Id:               listing.Id,
			Seller:           listing.Seller,
			Title:            listing.ItemTitle,
			Description:      listing.ItemDescription,
			BiddingCloseTime: listing.BiddingCloseTime,
			RevealDeadline:   listing.RevealDeadline,
			StatusCode:       listing.Status.Code,
			Reason:           listing.Status.Reason.String(),
		})
	})
}

func (s *registryService) FetchListing(
	ctx context.Context, listingId string,
) (*domain.Listing, error) {
	record, err := s.get(ctx, ListingKey(listingId))
	if err != nil {
		return nil, err
	}

	payload := &listingPayload{}
	if err := cbor.Unmarshal(record.Payload, payload); err != nil {
		return nil, err
	}
	return &domain.Listing{
		Id:               payload.Id,
		Seller:           payload.Seller,
		ItemTitle:        payload.Title,
		ItemDescription:  payload.Description,
		BiddingCloseTime: payload.BiddingCloseTime,
		RevealDeadline:   payload.RevealDeadline,
		Status:           domain.ListingStatus{Code: payload.StatusCode},
	}, nil
}

// PublishCommitment merges the given commitment into the bid set record of
// its listing. Bidders racing on the same record are serialized by the CAS
// write: the loser re-reads the fresh set and re-merges its own entry.
func (s *registryService) PublishCommitment(
	ctx context.Context, commitment domain.BidCommitment,
) error {
	key := BidsKey(commitment.ListingId)
	return s.casUpdate(ctx, key, func(prev []byte) ([]byte, error) {
		set := &bidSetPayload{ListingId: commitment.ListingId}
		if len(prev) > 0 {
			if err := cbor.Unmarshal(prev, set); err != nil {
				return nil, err
			}
		}
		for _, entry := range set.Commitments {
			if entry.Bidder == commitment.Bidder {
				// commitments are immutable once published
				return nil, errSkipWrite
			}
		}
		set.Commitments = append(set.Commitments, bidEntry{
			Bidder:      commitment.Bidder,
			Digest:      commitment.Digest,
			PublishTime: commitment.PublishTime,
		})
		return cbor.Marshal(set)
	})
}

func (s *registryService) SnapshotCommitments(
	ctx context.Context, listingId string,
) ([]domain.BidCommitment, error) {
	record, err := s.get(ctx, BidsKey(listingId))
	if err != nil {
		if errors.Is(err, ports.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	set := &bidSetPayload{}
	if err := cbor.Unmarshal(record.Payload, set); err != nil {
		return nil, err
	}

	commitments := make([]domain.BidCommitment, 0, len(set.Commitments))
	for _, entry := range set.Commitments {
		commitments = append(commitments, domain.BidCommitment{
			ListingId:   listingId,
			Bidder:      entry.Bidder,
			Digest:      entry.Digest,
			PublishTime: entry.PublishTime,
		})
	}
	return commitments, nil
}

func (s *registryService) PublishOrdering(
	ctx context.Context, assignment *domain.PartyAssignment,
) error {
	return s.casUpdate(ctx, OrderingKey(assignment.ListingId),
		func(_ []byte) ([]byte, error) {
			return encodeOrdering(assignment)
		},
	)
}

func (s *registryService) FetchOrdering(
	ctx context.Context, listingId string,
) (*domain.PartyAssignment, error) {
	record, err := s.get(ctx, OrderingKey(listingId))
	if err != nil {
		return nil, err
	}
	return decodeOrdering(record.Payload)
}

func (s *registryService) PublishRecord(
	ctx context.Context, record *domain.AuctionRecord,
) error {
	return s.casUpdate(ctx, RecordKey(record.ListingId),
		func(_ []byte) ([]byte, error) {
			return encodeRecord(record)
		},
	)
}

func (s *registryService) FetchRecord(
	ctx context.Context, listingId string,
) (*domain.AuctionRecord, error) {
	record, err := s.get(ctx, RecordKey(listingId))
	if err != nil {
		return nil, err
	}
	return decodeRecord(record.Payload)
}

// errSkipWrite is returned by a merge function to signal that the current
// record already contains the update and no write is needed.
var errSkipWrite = errors.New("nothing to write")

// casUpdate reads the current record, lets merge build the new payload from
// the previous one and writes it back conditioned on the sequence being
// unchanged. On conflict it re-reads, re-merges and retries with exponential
// backoff and jitter; once the attempt budget is exhausted the caller gets
// ErrWriteConflict instead of a silently dropped update.
func (s *registryService) casUpdate(
	ctx context.Context, key string, merge func(prev []byte) ([]byte, error),
) error {
	backoff := s.initialBackoff
	for attempt := 0; attempt < s.writeAttempts; attempt++ {
		var expectedSeq uint64
		var prev []byte

		record, err := s.get(ctx, key)
		if err != nil && !errors.Is(err, ports.ErrRecordNotFound) {
			return err
		}
		if record != nil {
			expectedSeq = record.Sequence
			prev = record.Payload
		}

		payload, err := merge(prev)
		if err != nil {
			if errors.Is(err, errSkipWrite) {
				return nil
			}
			return err
		}

		opCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
		err = s.dht.Put(opCtx, key, expectedSeq, payload, s.signer.Sign(payload))
		cancel()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ports.ErrSequenceConflict) {
			return err
		}

		log.Debugf("write conflict on %s, retrying (attempt %d)", key, attempt+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered(backoff)):
		}
		backoff *= 2
	}
	return ErrWriteConflict
}

func (s *registryService) get(
	ctx context.Context, key string,
) (*ports.DHTRecord, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()
	return s.dht.Get(opCtx, key)
}

func jittered(backoff time.Duration) time.Duration {
	half := int64(backoff / 2)
	return time.Duration(half + rand.Int63n(half+1))
}
