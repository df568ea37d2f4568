package application

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	log "github.com/sirupsen/logrus"

	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
	"github.com/sealbid-network/sealbid-daemon/internal/core/ports"
	"github.com/sealbid-network/sealbid-daemon/pkg/commitment"
	"github.com/sealbid-network/sealbid-daemon/pkg/identity"
)

// OperatorService is the API the local operator drives the daemon with:
// creating and importing listings, placing sealed bids, inspecting the state
// of the tracked auctions and managing the event webhooks.
type OperatorService interface {
	// CreateListing opens a new listing owned by the local identity and
	// publishes its descriptor in the DHT.
	CreateListing(
		ctx context.Context,
		title, description string,
		biddingCloseTime, revealDeadline int64,
	) (*ListingInfo, error)
	// ImportListing starts tracking a listing published by another seller.
	ImportListing(ctx context.Context, listingId string) (*ListingInfo, error)
	// PlaceBid commits the local identity to the given amount on a listing.
	// The amount and the nonce are stored locally, only their digest is
	// published.
	PlaceBid(
		ctx context.Context, listingId string, amount decimal.Decimal,
	) (*BidReceipt, error)
	GetListing(ctx context.Context, listingId string) (*ListingInfo, error)
	ListListings(ctx context.Context) ([]*ListingInfo, error)
	// GetRecord returns the final record of a settled auction.
	GetRecord(ctx context.Context, listingId string) (*domain.AuctionRecord, error)
	CancelListing(ctx context.Context, listingId string) error

	GetInfo(ctx context.Context) (*DaemonInfo, error)

	AddWebhook(ctx context.Context, topic, endpoint, secret string) (string, error)
	RemoveWebhook(ctx context.Context, id string) error
	ListWebhooks(ctx context.Context) ([]Subscription, error)
}

// ListingInfo is the operator-facing view of a listing.
type ListingInfo struct {
	Id               string
	Seller           string
	Title            string
	Description      string
	BiddingCloseTime int64
	RevealDeadline   int64
	Status           string
	FailureReason    string
	Stalled          bool
	CommitmentCount  int
	Winner           string
	ClearedPrice     string
	SettlementTime   int64
	// HasLocalBid tells whether this daemon placed a bid on the listing.
	HasLocalBid bool
}

// BidReceipt is returned to the operator after placing a bid. The nonce is
// included so the operator can open the commitment independently if needed.
type BidReceipt struct {
	ListingId string
	Digest    string
	Nonce     string
}

// DaemonInfo is the static info of the running daemon.
type DaemonInfo struct {
	Identity string
	Version  string
}

// OperatorOpts groups the collaborators of the operator service.
type OperatorOpts struct {
	RepoManager ports.RepoManager
	Registry    RegistryService
	Coordinator CoordinatorService
	PubSub      PubSubService
	Identity    *identity.Identity
	Version     string
}

type operatorService struct {
	opts OperatorOpts
}

// NewOperatorService returns an OperatorService with the given options.
func NewOperatorService(opts OperatorOpts) OperatorService {
	return &operatorService{opts}
}

func (s *operatorService) CreateListing(
	ctx context.Context,
	title, description string,
	biddingCloseTime, revealDeadline int64,
) (*ListingInfo, error) {
	listing := domain.NewListing(s.opts.Identity.ID(), title, description)
	if _, err := listing.Open(biddingCloseTime, revealDeadline); err != nil {
		return nil, err
	}

	if err := s.opts.RepoManager.ListingRepository().AddListing(
		ctx, listing,
	); err != nil {
		return nil, err
	}
	if err := s.opts.Registry.PublishListing(ctx, listing); err != nil {
		return nil, err
	}
	if err := s.opts.Coordinator.WatchListing(ctx, listing.Id); err != nil {
		return nil, err
	}

	log.Infof("created listing %s closing at %d", listing.Id, biddingCloseTime)
	s.publishEvent(TopicListingOpened, map[string]interface{}{
		"listingId": listing.Id,
		"status":    listing.Status.String(),
	})
	return s.listingInfo(ctx, listing), nil
}

func (s *operatorService) ImportListing(
	ctx context.Context, listingId string,
) (*ListingInfo, error) {
	if listing, err := s.opts.RepoManager.ListingRepository().GetListing(
		ctx, listingId,
	); err == nil {
		return s.listingInfo(ctx, listing), nil
	}

	listing, err := s.opts.Registry.FetchListing(ctx, listingId)
	if err != nil {
		if errors.Is(err, ports.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}

	if err := s.opts.RepoManager.ListingRepository().AddListing(
		ctx, listing,
	); err != nil {
		return nil, err
	}
	if err := s.opts.Coordinator.WatchListing(ctx, listingId); err != nil {
		return nil, err
	}

	log.Infof("imported listing %s of seller %s", listingId, listing.Seller)
	return s.listingInfo(ctx, listing), nil
}

func (s *operatorService) PlaceBid(
	ctx context.Context, listingId string, amount decimal.Decimal,
) (*BidReceipt, error) {
	if _, err := s.ImportListing(ctx, listingId); err != nil {
		return nil, err
	}
	listing, err := s.opts.RepoManager.ListingRepository().GetListing(
		ctx, listingId,
	)
	if err != nil {
		return nil, ErrListingNotFound
	}
	// the seller never bids on its own listing
	if listing.Seller == s.opts.Identity.ID() || !listing.IsOpen() {
		return nil, domain.ErrListingMustBeOpen
	}

	// a second bid on the same listing replays the stored commitment instead
	// of double-committing
	if secret, err := s.opts.RepoManager.BidSecretRepository().GetSecret(
		ctx, listingId,
	); err == nil && secret != nil {
		return &BidReceipt{
			ListingId: listingId,
			Digest:    secret.Digest,
			Nonce:     secret.Nonce,
		}, nil
	}

	nonce := commitment.NewNonce()
	digest, err := commitment.Commit(amount, nonce)
	if err != nil {
		return nil, err
	}

	// the secret is stored before the commitment is published: losing the
	// nonce after publishing would leave an unopenable bid behind
	if err := s.opts.RepoManager.BidSecretRepository().AddSecret(
		ctx, &domain.BidSecret{
			ListingId: listingId,
			Amount:    amount,
			Nonce:     nonce,
			Digest:    digest,
		},
	); err != nil {
		return nil, err
	}

	if err := s.opts.Registry.PublishCommitment(ctx, domain.BidCommitment{
		ListingId:   listingId,
		Bidder:      s.opts.Identity.ID(),
		Digest:      digest,
		PublishTime: time.Now().Unix(),
	}); err != nil {
		return nil, err
	}

	log.Infof("placed sealed bid on listing %s", listingId)
	return &BidReceipt{ListingId: listingId, Digest: digest, Nonce: nonce}, nil
}

func (s *operatorService) GetListing(
	ctx context.Context, listingId string,
) (*ListingInfo, error) {
	listing, err := s.opts.RepoManager.ListingRepository().GetListing(
		ctx, listingId,
	)
	if err != nil {
		return nil, ErrListingNotFound
	}
	return s.listingInfo(ctx, listing), nil
}

func (s *operatorService) ListListings(
	ctx context.Context,
) ([]*ListingInfo, error) {
	listings, err := s.opts.RepoManager.ListingRepository().GetAllListings(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]*ListingInfo, 0, len(listings))
	for _, listing := range listings {
		infos = append(infos, s.listingInfo(ctx, listing))
	}
	return infos, nil
}

func (s *operatorService) GetRecord(
	ctx context.Context, listingId string,
) (*domain.AuctionRecord, error) {
	return s.opts.RepoManager.RecordRepository().GetRecord(ctx, listingId)
}

func (s *operatorService) CancelListing(
	ctx context.Context, listingId string,
) error {
	return s.opts.Coordinator.CancelListing(ctx, listingId)
}

func (s *operatorService) GetInfo(_ context.Context) (*DaemonInfo, error) {
	return &DaemonInfo{
		Identity: s.opts.Identity.ID(),
		Version:  s.opts.Version,
	}, nil
}

func (s *operatorService) AddWebhook(
	_ context.Context, topic, endpoint, secret string,
) (string, error) {
	return s.opts.PubSub.Subscribe(topic, endpoint, secret)
}

func (s *operatorService) RemoveWebhook(_ context.Context, id string) error {
	return s.opts.PubSub.Unsubscribe(id)
}

func (s *operatorService) ListWebhooks(
	_ context.Context,
) ([]Subscription, error) {
	return s.opts.PubSub.ListSubscriptions()
}

func (s *operatorService) publishEvent(
	topic string, payload map[string]interface{},
) {
	if s.opts.PubSub == nil {
		return
	}
	message, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.opts.PubSub.Publish(topic, string(message)); err != nil {
		log.WithError(err).Warnf("failed to publish %s event", topic)
	}
}

func (s *operatorService) listingInfo(
	ctx context.Context, listing *domain.Listing,
) *ListingInfo {
	info := &ListingInfo{
		Id:               listing.Id,
		Seller:           listing.Seller,
		Title:            listing.ItemTitle,
		Description:      listing.ItemDescription,
		BiddingCloseTime: listing.BiddingCloseTime,
		RevealDeadline:   listing.RevealDeadline,
		Status:           listing.Status.String(),
		Stalled:          listing.Stalled,
		CommitmentCount:  len(listing.Commitments),
		SettlementTime:   listing.SettlementTime,
	}
	if listing.Status.Reason != domain.FailureReasonNone {
		info.FailureReason = listing.Status.Reason.String()
	}
	if listing.Record != nil {
		info.Winner = listing.Record.Winner
		info.ClearedPrice = listing.Record.ClearedPrice.String()
	}
	if _, err := s.opts.RepoManager.BidSecretRepository().GetSecret(
		ctx, listing.Id,
	); err == nil {
		info.HasLocalBid = true
	}
	return info
}
