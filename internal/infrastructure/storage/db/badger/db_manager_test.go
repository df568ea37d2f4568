package dbbadger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
	"github.com/sealbid-network/sealbid-daemon/internal/core/ports"
	dbbadger "github.com/sealbid-network/sealbid-daemon/internal/infrastructure/storage/db/badger"
)

func newTestRepoManager(t *testing.T) ports.RepoManager {
	t.Helper()
	repoManager, err := dbbadger.NewRepoManager(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(repoManager.Close)
	return repoManager
}

func newOpenListing(t *testing.T, seller string) *domain.Listing {
	t.Helper()
	listing := domain.NewListing(seller, "vintage synth", "good shape")
	now := time.Now().Unix()
	_, err := listing.Open(now+3600, now+7200)
	require.NoError(t, err)
	return listing
}

func TestListingRepository(t *testing.T) {
	repoManager := newTestRepoManager(t)
	repo := repoManager.ListingRepository()
	ctx := context.Background()

	listing := newOpenListing(t, "seller")
	require.NoError(t, repo.AddListing(ctx, listing))

	t.Run("duplicate insert", func(t *testing.T) {
		err := repo.AddListing(ctx, listing)
		require.ErrorIs(t, err, dbbadger.ErrListingAlreadyExists)
	})

	t.Run("round trip", func(t *testing.T) {
		stored, err := repo.GetListing(ctx, listing.Id)
		require.NoError(t, err)
		require.Equal(t, listing.Id, stored.Id)
		require.Equal(t, listing.Seller, stored.Seller)
		require.Equal(t, listing.Status.Code, stored.Status.Code)
		require.Equal(t, listing.BiddingCloseTime, stored.BiddingCloseTime)
	})

	t.Run("unknown listing", func(t *testing.T) {
		_, err := repo.GetListing(ctx, "unknown")
		require.ErrorIs(t, err, dbbadger.ErrListingNotFound)
	})

	t.Run("update commits the transition", func(t *testing.T) {
		err := repo.UpdateListing(
			ctx, listing.Id, func(l *domain.Listing) (*domain.Listing, error) {
				require.NoError(t, l.AddCommitment(domain.BidCommitment{
					ListingId: l.Id, Bidder: "alice", Digest: "aa11",
				}))
				return l, nil
			},
		)
		require.NoError(t, err)

		stored, err := repo.GetListing(ctx, listing.Id)
		require.NoError(t, err)
		require.Len(t, stored.Commitments, 1)
	})

	t.Run("update rolls back on error", func(t *testing.T) {
		wantErr := domain.ErrListingMustBeOpen
		err := repo.UpdateListing(
			ctx, listing.Id, func(l *domain.Listing) (*domain.Listing, error) {
				l.Commitments = nil
				return nil, wantErr
			},
		)
		require.ErrorIs(t, err, wantErr)

		stored, err := repo.GetListing(ctx, listing.Id)
		require.NoError(t, err)
		require.Len(t, stored.Commitments, 1)
	})

	t.Run("list by status", func(t *testing.T) {
		other := newOpenListing(t, "seller")
		other.BiddingCloseTime = time.Now().Unix() - 1
		_, err := other.CloseBidding(time.Now().Unix() + 60)
		require.NoError(t, err)
		require.NoError(t, repo.AddListing(ctx, other))

		all, err := repo.GetAllListings(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)

		closed, err := repo.GetListingsByStatus(
			ctx, domain.ListingStatusCodeBiddingClosed,
		)
		require.NoError(t, err)
		require.Len(t, closed, 1)
		require.Equal(t, other.Id, closed[0].Id)
	})
}

func TestRecordRepository(t *testing.T) {
	repoManager := newTestRepoManager(t)
	repo := repoManager.RecordRepository()
	ctx := context.Background()

	price, err := decimal.NewFromString("200.75")
	require.NoError(t, err)
	record := &domain.AuctionRecord{
		Id:             "record-1",
		ListingId:      "listing-1",
		Winner:         "bob",
		ClearedPrice:   price,
		ResultDigest:   "abcd",
		SettlementTime: time.Now().Unix(),
	}
	require.NoError(t, repo.AddRecord(ctx, record))

	// settlements are idempotent, re-adding the record of a listing is a no-op
	require.NoError(t, repo.AddRecord(ctx, record))

	stored, err := repo.GetRecord(ctx, "listing-1")
	require.NoError(t, err)
	require.Equal(t, "bob", stored.Winner)
	require.True(t, price.Equal(stored.ClearedPrice))

	_, err = repo.GetRecord(ctx, "unknown")
	require.ErrorIs(t, err, dbbadger.ErrRecordNotFound)

	all, err := repo.GetAllRecords(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestBidSecretRepository(t *testing.T) {
	repoManager := newTestRepoManager(t)
	repo := repoManager.BidSecretRepository()
	ctx := context.Background()

	amount, err := decimal.NewFromString("150.5")
	require.NoError(t, err)
	secret := &domain.BidSecret{
		ListingId: "listing-1",
		Amount:    amount,
		Nonce:     "nonce",
		Digest:    "aa11",
	}
	require.NoError(t, repo.AddSecret(ctx, secret))

	stored, err := repo.GetSecret(ctx, "listing-1")
	require.NoError(t, err)
	require.True(t, amount.Equal(stored.Amount))
	require.Equal(t, "nonce", stored.Nonce)

	_, err = repo.GetSecret(ctx, "unknown")
	require.ErrorIs(t, err, dbbadger.ErrSecretNotFound)

	require.NoError(t, repo.DeleteSecret(ctx, "listing-1"))
	_, err = repo.GetSecret(ctx, "listing-1")
	require.ErrorIs(t, err, dbbadger.ErrSecretNotFound)

	// deleting twice must not fail, the secret is simply gone
	require.NoError(t, repo.DeleteSecret(ctx, "listing-1"))
}
