package application

import (
	"context"

	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
	"github.com/sealbid-network/sealbid-daemon/pkg/identity"
)

// OrderingService derives and resolves the canonical mapping of bidder
// identities to computation party indexes of a listing. The seller publishes
// one signed assignment derived from its DHT snapshot; every other party
// independently fetches and verifies it, and abstains on any mismatch
// instead of computing with a guessed ordering.
type OrderingService interface {
	// PublishOrdering snapshots the commitments visible in the DHT, derives
	// the canonical assignment, signs it and publishes it. Seller only.
	PublishOrdering(
		ctx context.Context, listingId string,
	) (*domain.PartyAssignment, error)
	// ResolveOrdering fetches the published assignment and verifies it
	// against the local view: valid publisher signature, canonical
	// digest-sorted order, no duplicated identity, own commitment present
	// exactly once. Any failure yields ErrOrderingMismatch.
	ResolveOrdering(
		ctx context.Context, listingId, seller, selfDigest string,
	) (*domain.PartyAssignment, error)
}

type orderingService struct {
	registry RegistryService
	signer   *identity.Identity
}

// NewOrderingService returns an OrderingService backed by the given registry.
func NewOrderingService(
	registry RegistryService, signer *identity.Identity,
) OrderingService {
	return &orderingService{registry: registry, signer: signer}
}

func (s *orderingService) PublishOrdering(
	ctx context.Context, listingId string,
) (*domain.PartyAssignment, error) {
	commitments, err := s.registry.SnapshotCommitments(ctx, listingId)
	if err != nil {
		return nil, err
	}

	assignment, err := domain.NewPartyAssignment(
		listingId, s.signer.ID(), commitments,
	)
	if err != nil {
		return nil, err
	}
	assignment.Signature = s.signer.Sign(assignment.SigningPayload())

	if err := s.registry.PublishOrdering(ctx, assignment); err != nil {
		return nil, err
	}
	return assignment, nil
}

func (s *orderingService) ResolveOrdering(
	ctx context.Context, listingId, seller, selfDigest string,
) (*domain.PartyAssignment, error) {
	assignment, err := s.registry.FetchOrdering(ctx, listingId)
	if err != nil {
		return nil, err
	}

	if assignment.ListingId != listingId || assignment.Publisher != seller {
		return nil, ErrOrderingMismatch
	}
	if err := identity.Verify(
		assignment.Publisher, assignment.SigningPayload(), assignment.Signature,
	); err != nil {
		return nil, ErrOrderingMismatch
	}
	if err := assignment.Verify(selfDigest); err != nil {
		return nil, ErrOrderingMismatch
	}
	return assignment, nil
}
