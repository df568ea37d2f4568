package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Party binds a bidder identity to the index it plays in the secure
// computation run of a listing.
type Party struct {
	Index            int
	Identity         string
	CommitmentDigest string
}

// PartyAssignment is the canonical, signed mapping of bidder identities to
// computation party indexes for one listing. The canonical order is the
// lexicographic order of the commitment digests, never the arrival time of
// the commitments: the same DHT snapshot always yields the same assignment
// no matter who computes it or in which order it observed the bids.
type PartyAssignment struct {
	ListingId string
	Parties   []Party
	Publisher string
	Signature []byte
}

// NewPartyAssignment derives the canonical assignment from a snapshot of bid
// commitments. The signature must be added by the publisher over
// SigningPayload before the assignment is published.
func NewPartyAssignment(
	listingId, publisher string, commitments []BidCommitment,
) (*PartyAssignment, error) {
	if len(commitments) <= 0 {
		return nil, ErrAssignmentEmpty
	}

	sorted := make([]BidCommitment, len(commitments))
	copy(sorted, commitments)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Digest < sorted[j].Digest
	})

	parties := make([]Party, 0, len(sorted))
	seen := map[string]struct{}{}
	for i, c := range sorted {
		if _, ok := seen[c.Bidder]; ok {
			return nil, ErrAssignmentDuplicateIdentity
		}
		seen[c.Bidder] = struct{}{}
		parties = append(parties, Party{
			Index:            i,
			Identity:         c.Bidder,
			CommitmentDigest: c.Digest,
		})
	}

	return &PartyAssignment{
		ListingId: listingId,
		Parties:   parties,
		Publisher: publisher,
	}, nil
}

// Verify checks that the assignment is canonical and, when selfDigest is not
// empty, that the verifying party's own commitment appears exactly once.
// A party that fails this check must abstain from the computation instead of
// guessing an ordering.
func (a *PartyAssignment) Verify(selfDigest string) error {
	if len(a.Parties) <= 0 {
		return ErrAssignmentEmpty
	}

	seenIdentities := map[string]struct{}{}
	selfCount := 0
	for i, p := range a.Parties {
		if p.Index != i {
			return ErrAssignmentNotCanonical
		}
		if i > 0 && a.Parties[i-1].CommitmentDigest >= p.CommitmentDigest {
			return ErrAssignmentNotCanonical
		}
		if _, ok := seenIdentities[p.Identity]; ok {
			return ErrAssignmentDuplicateIdentity
		}
		seenIdentities[p.Identity] = struct{}{}
		if p.CommitmentDigest == selfDigest {
			selfCount++
		}
	}

	if len(selfDigest) > 0 && selfCount != 1 {
		return ErrAssignmentMissingSelf
	}
	return nil
}

// SigningPayload returns the canonical byte serialization of the assignment,
// the message signed by the publisher and verified by every other party.
func (a *PartyAssignment) SigningPayload() []byte {
	b := strings.Builder{}
	b.WriteString(a.ListingId)
	b.WriteString("\n")
	b.WriteString(a.Publisher)
	for _, p := range a.Parties {
		b.WriteString(fmt.Sprintf("\n%d:%s:%s", p.Index, p.Identity, p.CommitmentDigest))
	}
	return []byte(b.String())
}

// Fingerprint returns a compact identifier of the assignment content, used
// to detect attempts at replacing an accepted assignment.
func (a *PartyAssignment) Fingerprint() string {
	return string(a.SigningPayload())
}

// PartyOf returns the index assigned to the given identity.
func (a *PartyAssignment) PartyOf(identity string) (int, bool) {
	for _, p := range a.Parties {
		if p.Identity == identity {
			return p.Index, true
		}
	}
	return -1, false
}

// IdentityOf returns the identity assigned to the given party index.
func (a *PartyAssignment) IdentityOf(index int) (string, bool) {
	if index < 0 || index >= len(a.Parties) {
		return "", false
	}
	return a.Parties[index].Identity, true
}
