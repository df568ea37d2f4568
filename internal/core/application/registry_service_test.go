package application_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/sealbid-network/sealbid-daemon/internal/core/application"
	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
	"github.com/sealbid-network/sealbid-daemon/internal/core/ports"
	memorysubstrate "github.com/sealbid-network/sealbid-daemon/internal/infrastructure/substrate/memory"
	"github.com/sealbid-network/sealbid-daemon/pkg/identity"
)

// conflictDHT loses every write: the record is never found and every put
// reports a sequence conflict, as if a faster writer always got in first.
type conflictDHT struct {
	puts int
}

func (d *conflictDHT) Get(context.Context, string) (*ports.DHTRecord, error) {
	return nil, ports.ErrRecordNotFound
}

func (d *conflictDHT) Put(
	context.Context, string, uint64, []byte, []byte,
) error {
	d.puts++
	return ports.ErrSequenceConflict
}

func newTestRegistry(t *testing.T, network *memorysubstrate.Network) (
	application.RegistryService, *identity.Identity,
) {
	t.Helper()
	id, err := identity.New()
	require.NoError(t, err)
	node := network.Join(id.ID())
	return application.NewRegistryService(node, id), id
}

func TestPublishAndFetchListing(t *testing.T) {
	network := memorysubstrate.NewNetwork()
	registry, id := newTestRegistry(t, network)

	listing := domain.NewListing(id.ID(), "vintage synth", "good shape")
	now := time.Now().Unix()
	_, err := listing.Open(now+3600, now+7200)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, registry.PublishListing(ctx, listing))

	fetched, err := registry.FetchListing(ctx, listing.Id)
	require.NoError(t, err)
	require.Equal(t, listing.Id, fetched.Id)
	require.Equal(t, listing.Seller, fetched.Seller)
	require.Equal(t, listing.BiddingCloseTime, fetched.BiddingCloseTime)
	require.Equal(t, listing.Status.Code, fetched.Status.Code)

	// republishing after a transition bumps the record, never forks it
	listing.BiddingCloseTime = now - 1
	_, err = listing.CloseBidding(now + 60)
	require.NoError(t, err)
	require.NoError(t, registry.PublishListing(ctx, listing))

	fetched, err = registry.FetchListing(ctx, listing.Id)
	require.NoError(t, err)
	require.Equal(t, domain.ListingStatusCodeBiddingClosed, fetched.Status.Code)
}

func TestConcurrentCommitmentPublishers(t *testing.T) {
	network := memorysubstrate.NewNetwork()
	ctx := context.Background()
	listingId := "listing-1"

	// many bidders race on the same bid set record; the CAS write makes
	// every loser re-read and re-merge, so no entry is ever lost
	numBidders := 10
	eg := &errgroup.Group{}
	for i := 0; i < numBidders; i++ {
		i := i
		registry, id := newTestRegistry(t, network)
		eg.Go(func() error {
			return registry.PublishCommitment(ctx, domain.BidCommitment{
				ListingId:   listingId,
				Bidder:      id.ID(),
				Digest:      fmt.Sprintf("digest-%02d", i),
				PublishTime: time.Now().Unix(),
			})
		})
	}
	require.NoError(t, eg.Wait())

	registry, _ := newTestRegistry(t, network)
	commitments, err := registry.SnapshotCommitments(ctx, listingId)
	require.NoError(t, err)
	require.Len(t, commitments, numBidders)
}

func TestPublishCommitmentIsImmutable(t *testing.T) {
	network := memorysubstrate.NewNetwork()
	registry, id := newTestRegistry(t, network)
	ctx := context.Background()

	commitment := domain.BidCommitment{
		ListingId:   "listing-1",
		Bidder:      id.ID(),
		Digest:      "aa11",
		PublishTime: time.Now().Unix(),
	}
	require.NoError(t, registry.PublishCommitment(ctx, commitment))

	// publishing a different digest for the same bidder leaves the first one
	commitment.Digest = "bb22"
	require.NoError(t, registry.PublishCommitment(ctx, commitment))

	commitments, err := registry.SnapshotCommitments(ctx, "listing-1")
	require.NoError(t, err)
	require.Len(t, commitments, 1)
	require.Equal(t, "aa11", commitments[0].Digest)
}

func TestSnapshotCommitmentsOfUnknownListing(t *testing.T) {
	network := memorysubstrate.NewNetwork()
	registry, _ := newTestRegistry(t, network)

	commitments, err := registry.SnapshotCommitments(
		context.Background(), "unknown",
	)
	require.NoError(t, err)
	require.Empty(t, commitments)
}

func TestPublishAndFetchRecord(t *testing.T) {
	network := memorysubstrate.NewNetwork()
	registry, id := newTestRegistry(t, network)
	ctx := context.Background()

	record := &domain.AuctionRecord{
		ListingId:    "listing-1",
		Winner:       id.ID(),
		ClearedPrice: mustDecimal(t, "200.75"),
		ResultDigest: "abcd",
		Attestations: []domain.Attestation{
			{ListingId: "listing-1", Party: id.ID(), ResultDigest: "abcd"},
		},
		SettlementTime: time.Now().Unix(),
	}
	require.NoError(t, registry.PublishRecord(ctx, record))

	fetched, err := registry.FetchRecord(ctx, "listing-1")
	require.NoError(t, err)
	require.Equal(t, record.Winner, fetched.Winner)
	require.True(t, record.ClearedPrice.Equal(fetched.ClearedPrice))
	require.Equal(t, record.ResultDigest, fetched.ResultDigest)
	require.Len(t, fetched.Attestations, 1)
}

func TestWriteConflictBudgetExhausts(t *testing.T) {
	id, err := identity.New()
	require.NoError(t, err)
	dht := &conflictDHT{}
	registry := application.NewRegistryService(dht, id)

	// a writer that always loses the CAS race gets a hard error back once
	// the attempt budget runs out, never a silently dropped update
	err = registry.PublishCommitment(context.Background(), domain.BidCommitment{
		ListingId:   "listing-1",
		Bidder:      id.ID(),
		Digest:      "aa11",
		PublishTime: time.Now().Unix(),
	})
	require.ErrorIs(t, err, application.ErrWriteConflict)
	require.Equal(t, 5, dht.puts)
}
