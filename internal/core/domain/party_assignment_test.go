package domain_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
)

func testCommitments() []domain.BidCommitment {
	return []domain.BidCommitment{
		{ListingId: "l1", Bidder: "carol", Digest: "cc33"},
		{ListingId: "l1", Bidder: "alice", Digest: "aa11"},
		{ListingId: "l1", Bidder: "bob", Digest: "bb22"},
	}
}

func TestNewPartyAssignment(t *testing.T) {
	assignment, err := domain.NewPartyAssignment("l1", sellerId, testCommitments())
	require.NoError(t, err)
	require.Len(t, assignment.Parties, 3)

	// parties are ordered by commitment digest, not by arrival
	require.Equal(t, "alice", assignment.Parties[0].Identity)
	require.Equal(t, "bob", assignment.Parties[1].Identity)
	require.Equal(t, "carol", assignment.Parties[2].Identity)
	for i, p := range assignment.Parties {
		require.Equal(t, i, p.Index)
	}
}

func TestNewPartyAssignmentIsDeterministic(t *testing.T) {
	reference, err := domain.NewPartyAssignment("l1", sellerId, testCommitments())
	require.NoError(t, err)

	// any permutation of the same snapshot yields the same assignment
	for i := 0; i < 20; i++ {
		shuffled := testCommitments()
		rand.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		assignment, err := domain.NewPartyAssignment("l1", sellerId, shuffled)
		require.NoError(t, err)
		require.Equal(t, reference.Fingerprint(), assignment.Fingerprint())
	}
}

func TestNewPartyAssignmentRejections(t *testing.T) {
	t.Run("empty snapshot", func(t *testing.T) {
		_, err := domain.NewPartyAssignment("l1", sellerId, nil)
		require.ErrorIs(t, err, domain.ErrAssignmentEmpty)
	})

	t.Run("duplicated identity", func(t *testing.T) {
		_, err := domain.NewPartyAssignment("l1", sellerId, []domain.BidCommitment{
			{ListingId: "l1", Bidder: "alice", Digest: "aa11"},
			{ListingId: "l1", Bidder: "alice", Digest: "bb22"},
		})
		require.ErrorIs(t, err, domain.ErrAssignmentDuplicateIdentity)
	})
}

func TestVerify(t *testing.T) {
	assignment, err := domain.NewPartyAssignment("l1", sellerId, testCommitments())
	require.NoError(t, err)

	t.Run("canonical assignment", func(t *testing.T) {
		require.NoError(t, assignment.Verify("bb22"))
		// the seller holds no commitment and skips the self check
		require.NoError(t, assignment.Verify(""))
	})

	t.Run("own commitment missing", func(t *testing.T) {
		require.ErrorIs(
			t, assignment.Verify("dd44"), domain.ErrAssignmentMissingSelf,
		)
	})

	t.Run("non contiguous indexes", func(t *testing.T) {
		tampered, err := domain.NewPartyAssignment("l1", sellerId, testCommitments())
		require.NoError(t, err)
		tampered.Parties[1].Index = 5
		require.ErrorIs(
			t, tampered.Verify("aa11"), domain.ErrAssignmentNotCanonical,
		)
	})

	t.Run("digests out of order", func(t *testing.T) {
		tampered, err := domain.NewPartyAssignment("l1", sellerId, testCommitments())
		require.NoError(t, err)
		tampered.Parties[0].CommitmentDigest = "zz99"
		require.ErrorIs(
			t, tampered.Verify(""), domain.ErrAssignmentNotCanonical,
		)
	})

	t.Run("duplicated identity", func(t *testing.T) {
		tampered, err := domain.NewPartyAssignment("l1", sellerId, testCommitments())
		require.NoError(t, err)
		tampered.Parties[2].Identity = tampered.Parties[0].Identity
		require.ErrorIs(
			t, tampered.Verify(""), domain.ErrAssignmentDuplicateIdentity,
		)
	})
}

func TestPartyLookups(t *testing.T) {
	assignment, err := domain.NewPartyAssignment("l1", sellerId, testCommitments())
	require.NoError(t, err)

	index, ok := assignment.PartyOf("bob")
	require.True(t, ok)
	require.Equal(t, 1, index)

	_, ok = assignment.PartyOf("mallory")
	require.False(t, ok)

	id, ok := assignment.IdentityOf(2)
	require.True(t, ok)
	require.Equal(t, "carol", id)

	_, ok = assignment.IdentityOf(3)
	require.False(t, ok)
}
