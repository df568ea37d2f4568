package application

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	log "github.com/sirupsen/logrus"

	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
	"github.com/sealbid-network/sealbid-daemon/pkg/auctionmsg"
	"github.com/sealbid-network/sealbid-daemon/pkg/commitment"
	"github.com/sealbid-network/sealbid-daemon/pkg/dhtwatch"
)

type eventKind int

const (
	evtRecordUpdated eventKind = iota
	evtMessage
	evtSessionDone
	evtCancel
)

type actorEvent struct {
	kind     eventKind
	record   *dhtwatch.RecordUpdatedEvent
	envelope *auctionmsg.Envelope
	result   *SessionResult
	err      error
}

// listingActor serializes every transition of one listing: its bounded inbox
// is the only entry point for bid observations, peer messages, session
// outcomes and cancellation requests, processed one at a time by a single
// goroutine together with the periodic tick driving the deadlines.
type listingActor struct {
	svc       *coordinatorService
	listingId string

	inbox    chan actorEvent
	quit     chan struct{}
	stopOnce sync.Once

	// volatile view, rebuilt from the store on restart
	sessionStarted bool
	ownResult      *SessionResult
	attestations   map[string]*auctionmsg.Envelope
	// unreachable maps a peer to the unix time of its first failed delivery
	unreachable map[string]int64
}

func newListingActor(svc *coordinatorService, listingId string) *listingActor {
	return &listingActor{
		svc:          svc,
		listingId:    listingId,
		inbox:        make(chan actorEvent, svc.opts.InboxSize),
		quit:         make(chan struct{}),
		attestations: map[string]*auctionmsg.Envelope{},
		unreachable:  map[string]int64{},
	}
}

// push delivers an event to the actor inbox, rejecting it under overflow.
func (a *listingActor) push(event actorEvent) error {
	select {
	case a.inbox <- event:
		return nil
	default:
		return ErrInboxFull
	}
}

func (a *listingActor) stop() {
	a.stopOnce.Do(func() { close(a.quit) })
}

func (a *listingActor) run() {
	ticker := time.NewTicker(a.svc.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.quit:
			return
		case <-ticker.C:
			a.onTick()
		case event := <-a.inbox:
			a.handle(event)
		}
	}
}

func (a *listingActor) handle(event actorEvent) {
	switch event.kind {
	case evtRecordUpdated:
		a.onRecordUpdated(event.record)
	case evtMessage:
		a.onEnvelope(event.envelope)
	case evtSessionDone:
		a.onSessionDone(event.result, event.err)
	case evtCancel:
		a.cancel(domain.FailureReasonNone)
	}
}

// onTick drives the deadline bookkeeping and the transitions that depend on
// wall-clock time rather than on an incoming event.
func (a *listingActor) onTick() {
	listing := a.getListing()
	if listing == nil {
		return
	}
	if listing.IsTerminal() {
		a.finish(listing)
		return
	}

	if listing.IsStallExpired() {
		a.cancel(domain.FailureReasonPartitionStall)
		return
	}
	if listing.IsStalled() {
		// a parked listing keeps probing its peers: the first reply after
		// the partition heals resumes it
		a.requestStatusSync(listing)
	}

	switch listing.Status.Code {
	case domain.ListingStatusCodeOpen:
		if time.Now().Unix() >= listing.BiddingCloseTime {
			a.closeBidding()
		}
	case domain.ListingStatusCodeBiddingClosed:
		a.startAssigning()
	case domain.ListingStatusCodePartyAssigning:
		a.tryResolveOrdering()
	case domain.ListingStatusCodeComputationRunning:
		if listing.IsDeadlineExceeded() {
			a.fail(domain.FailureReasonSessionTimeout)
			return
		}
		a.maybeStartSession(listing)
		// waiting on remote attestations: delivery is at-most-once, so a
		// lost attestation would otherwise only ever end in a timeout
		if a.ownResult != nil || !a.isComputingParty(listing) {
			a.requestStatusSync(listing)
		}
	case domain.ListingStatusCodeResultAttested:
		a.openChallenge()
	case domain.ListingStatusCodeWinnerChallenge:
		a.maybeSendReveal(listing)
		if listing.Seller != a.self() {
			// the record watcher event may have been dropped by a full
			// inbox; the tick re-derives the settlement
			a.settleFromPublishedRecord()
		}
	}

	// re-read: the handlers above may have advanced the listing
	if listing := a.getListing(); listing != nil &&
		!listing.IsTerminal() && listing.IsDeadlineExceeded() {
		a.expire()
	}
}

func (a *listingActor) onRecordUpdated(event *dhtwatch.RecordUpdatedEvent) {
	switch {
	case strings.HasPrefix(event.Key, bidsKeyPrefix):
		a.mirrorCommitments()
	case strings.HasPrefix(event.Key, orderingKeyPrefix):
		a.tryResolveOrdering()
	case strings.HasPrefix(event.Key, recordKeyPrefix):
		a.settleFromPublishedRecord()
	}
}

func (a *listingActor) onEnvelope(envelope *auctionmsg.Envelope) {
	switch envelope.Type {
	case auctionmsg.TypeAttestation:
		a.onAttestation(envelope)
	case auctionmsg.TypeReveal:
		a.onReveal(envelope)
	case auctionmsg.TypeStatusRequest:
		a.onStatusRequest(envelope)
	case auctionmsg.TypeStatusReply:
		a.onStatusReply(envelope)
	case auctionmsg.TypeCancelNotice:
		a.onCancelNotice(envelope)
	}
}

// mirrorCommitments copies the commitments visible in the DHT into the local
// listing for audit.
func (a *listingActor) mirrorCommitments() {
	ctx := a.ctx()
	commitments, err := a.svc.opts.Registry.SnapshotCommitments(ctx, a.listingId)
	if err != nil {
		log.WithError(err).Debugf("failed to snapshot bids of %s", a.listingId)
		return
	}

	a.updateListing(func(l *domain.Listing) (*domain.Listing, error) {
		if !l.IsOpen() {
			return l, nil
		}
		for _, c := range commitments {
			if err := l.AddCommitment(c); err != nil {
				log.WithError(err).Warnf(
					"skipping commitment of %s on %s", c.Bidder, a.listingId,
				)
			}
		}
		return l, nil
	})
}

func (a *listingActor) closeBidding() {
	now := time.Now().Unix()
	assignDeadline := now + int64(a.svc.opts.AssignWindow.Seconds())

	a.mirrorCommitments()
	advanced := false
	a.updateListing(func(l *domain.Listing) (*domain.Listing, error) {
		done, err := l.CloseBidding(assignDeadline)
		if err != nil {
			return nil, err
		}
		advanced = done
		return l, nil
	})
	if !advanced {
		return
	}

	a.publishStatus()
	a.emitEvent(TopicBiddingClosed, nil)
}

func (a *listingActor) startAssigning() {
	listing := a.getListing()
	if listing == nil {
		return
	}

	a.updateListing(func(l *domain.Listing) (*domain.Listing, error) {
		if _, err := l.StartAssigning(l.StateDeadline); err != nil {
			return nil, err
		}
		return l, nil
	})

	// only the seller derives and publishes the canonical ordering; every
	// other party waits for the record and verifies it independently
	if listing.Seller == a.self() {
		if _, err := a.svc.opts.Ordering.PublishOrdering(a.ctx(), a.listingId); err != nil {
			log.WithError(err).Warnf("failed to publish ordering of %s", a.listingId)
			if reason := failureReasonOf(err); reason != domain.FailureReasonNone {
				a.fail(reason)
			}
			return
		}
	}
	a.tryResolveOrdering()
}

func (a *listingActor) tryResolveOrdering() {
	listing := a.getListing()
	if listing == nil ||
		listing.Status.Code != domain.ListingStatusCodePartyAssigning {
		return
	}

	selfDigest := ""
	if secret := a.getSecret(); secret != nil {
		selfDigest = secret.Digest
	}

	assignment, err := a.svc.opts.Ordering.ResolveOrdering(
		a.ctx(), a.listingId, listing.Seller, selfDigest,
	)
	if err != nil {
		if failureReasonOf(err) == domain.FailureReasonPartyOrderingMismatch {
			log.Warnf("ordering of %s failed verification, abstaining", a.listingId)
			a.fail(domain.FailureReasonPartyOrderingMismatch)
		}
		// not yet published: the next tick or watcher event retries
		return
	}

	computeDeadline := time.Now().Unix() + int64(a.svc.opts.ComputeWindow.Seconds())
	advanced := false
	a.updateListing(func(l *domain.Listing) (*domain.Listing, error) {
		if err := l.AcceptAssignment(assignment); err != nil {
			return nil, err
		}
		done, err := l.StartComputation(computeDeadline)
		if err != nil {
			return nil, err
		}
		advanced = done
		return l, nil
	})
	if !advanced {
		return
	}

	a.publishStatus()
	a.emitEvent(TopicComputationStarted, nil)

	if listing := a.getListing(); listing != nil {
		a.maybeStartSession(listing)
	}
}

// maybeStartSession launches the computation session of the local party, at
// most once per listing. The session runs in its own goroutine and only
// suspends this listing: its outcome comes back as an inbox event.
func (a *listingActor) maybeStartSession(listing *domain.Listing) {
	if a.sessionStarted || listing.Assignment == nil {
		return
	}

	selfIndex, isParty := listing.Assignment.PartyOf(a.self())
	if !isParty {
		// the seller is not a computation party: it waits for the quorum of
		// attestations from the bidders
		return
	}
	secret := a.getSecret()
	if secret == nil {
		log.Warnf("no local bid secret for %s, cannot compute", a.listingId)
		return
	}

	a.sessionStarted = true
	assignment := listing.Assignment
	go func() {
		result, err := a.svc.opts.Sessions.Run(
			context.Background(), listing, assignment, selfIndex, secret,
		)
		if pushErr := a.push(actorEvent{
			kind: evtSessionDone, result: result, err: err,
		}); pushErr != nil {
			log.Warnf("inbox of %s full, dropping session outcome", a.listingId)
		}
	}()
}

func (a *listingActor) onSessionDone(result *SessionResult, err error) {
	if err != nil {
		reason := failureReasonOf(err)
		if reason == domain.FailureReasonNone {
			reason = domain.FailureReasonProcessFailure
		}
		a.fail(reason)
		return
	}

	a.ownResult = result
	a.broadcastAttestation(result)
	a.checkAttestationQuorum()
}

// broadcastAttestation signs the locally observed result and reports it to
// the seller and to every other party.
func (a *listingActor) broadcastAttestation(result *SessionResult) {
	listing := a.getListing()
	if listing == nil || listing.Assignment == nil {
		return
	}

	raw := a.attestationMessage(result)
	if raw == nil {
		return
	}

	// own attestation counts towards the quorum too
	if envelope, err := auctionmsg.Parse(raw); err == nil {
		a.attestations[a.self()] = envelope
	}

	recipients := []string{}
	if listing.Seller != a.self() {
		recipients = append(recipients, listing.Seller)
	}
	for _, party := range listing.Assignment.Parties {
		if party.Identity != a.self() {
			recipients = append(recipients, party.Identity)
		}
	}
	for _, peer := range recipients {
		a.send(peer, raw)
	}
}

// sendAttestation re-sends the locally observed result to one peer, used when
// a status exchange shows the peer never received the original broadcast.
func (a *listingActor) sendAttestation(peer string, result *SessionResult) {
	if raw := a.attestationMessage(result); raw != nil {
		a.send(peer, raw)
	}
}

func (a *listingActor) attestationMessage(result *SessionResult) []byte {
	_, raw, err := auctionmsg.New(
		auctionmsg.TypeAttestation, a.listingId, a.self(),
		auctionmsg.Attestation{
			WinnerPartyIndex: result.WinnerPartyIndex,
			ClearedPrice:     result.ClearedPrice.String(),
			ResultDigest:     result.ResultDigest,
		},
		a.svc.opts.Identity.Sign,
	)
	if err != nil {
		log.WithError(err).Warn("failed to build attestation message")
		return nil
	}
	return raw
}

func (a *listingActor) onAttestation(envelope *auctionmsg.Envelope) {
	listing := a.getListing()
	if listing == nil || listing.Assignment == nil {
		return
	}
	if _, isParty := listing.Assignment.PartyOf(envelope.Sender); !isParty {
		log.Debugf("dropping attestation from non-party %s", envelope.Sender)
		return
	}
	if _, err := auctionmsg.DecodeAttestation(envelope); err != nil {
		log.Debugf("dropping malformed attestation %s", envelope.Id)
		return
	}

	a.attestations[envelope.Sender] = envelope
	a.checkAttestationQuorum()
}

// checkAttestationQuorum promotes the raw result to an attested one once
// enough distinct parties reported the very same outcome. A result that
// never gathers its quorum can only end in a timeout, never in settlement.
func (a *listingActor) checkAttestationQuorum() {
	listing := a.getListing()
	if listing == nil || listing.Assignment == nil ||
		listing.Status.Code != domain.ListingStatusCodeComputationRunning {
		return
	}

	required := a.svc.opts.AttestQuorum
	if required <= 0 || required > len(listing.Assignment.Parties) {
		required = len(listing.Assignment.Parties)
	}

	matching := map[string][]*auctionmsg.Envelope{}
	for _, envelope := range a.attestations {
		body, err := auctionmsg.DecodeAttestation(envelope)
		if err != nil {
			continue
		}
		key := body.ResultDigest + "|" + body.ClearedPrice
		matching[key] = append(matching[key], envelope)
	}

	for _, envelopes := range matching {
		if len(envelopes) < required {
			continue
		}

		body, _ := auctionmsg.DecodeAttestation(envelopes[0])
		result, err := a.buildAttestedResult(listing, body, envelopes)
		if err != nil {
			log.WithError(err).Warnf("rejecting attested outcome of %s", a.listingId)
			a.fail(domain.FailureReasonProcessFailure)
			return
		}

		// a party that computed locally must agree with the quorum,
		// otherwise someone is lying and the outcome cannot be trusted
		if a.ownResult != nil &&
			a.ownResult.ResultDigest != result.ResultDigest {
			a.fail(domain.FailureReasonBidMismatch)
			return
		}

		a.attestResult(result)
		return
	}
}

func (a *listingActor) buildAttestedResult(
	listing *domain.Listing,
	body *auctionmsg.Attestation,
	envelopes []*auctionmsg.Envelope,
) (*domain.ComputedResult, error) {
	winner, ok := listing.Assignment.IdentityOf(body.WinnerPartyIndex)
	if !ok {
		return nil, ErrProcessFailure
	}
	price, err := parsePrice(body.ClearedPrice)
	if err != nil {
		return nil, ErrProcessFailure
	}

	attestations := make([]domain.Attestation, 0, len(envelopes))
	for _, envelope := range envelopes {
		attestations = append(attestations, domain.Attestation{
			ListingId:    a.listingId,
			Party:        envelope.Sender,
			ResultDigest: body.ResultDigest,
			Signature:    envelope.Signature,
		})
	}

	return &domain.ComputedResult{
		WinnerPartyIndex: body.WinnerPartyIndex,
		Winner:           winner,
		ClearedPrice:     price,
		ResultDigest:     body.ResultDigest,
		Attestations:     attestations,
	}, nil
}

func (a *listingActor) attestResult(result *domain.ComputedResult) {
	challengeDeadline := time.Now().Unix() +
		int64(a.svc.opts.ChallengeWindow.Seconds())

	advanced := false
	a.updateListing(func(l *domain.Listing) (*domain.Listing, error) {
		done, err := l.AttestResult(result, challengeDeadline)
		if err != nil {
			return nil, err
		}
		advanced = done
		return l, nil
	})
	if !advanced {
		return
	}

	a.publishStatus()
	a.emitEvent(TopicResultAttested, map[string]interface{}{
		"resultDigest": result.ResultDigest,
	})
	a.openChallenge()
}

func (a *listingActor) openChallenge() {
	a.updateListing(func(l *domain.Listing) (*domain.Listing, error) {
		if _, err := l.OpenChallenge(); err != nil {
			return nil, err
		}
		return l, nil
	})

	if listing := a.getListing(); listing != nil {
		a.maybeSendReveal(listing)
	}
}

// maybeSendReveal makes the winner open its commitment towards the seller.
// Delivery is at-most-once, so the reveal is resent on every tick until the
// listing settles or the challenge deadline expires.
func (a *listingActor) maybeSendReveal(listing *domain.Listing) {
	if listing.Result == nil || listing.Result.Winner != a.self() ||
		listing.Seller == a.self() {
		return
	}
	secret := a.getSecret()
	if secret == nil {
		log.Warnf("won %s but no local bid secret to reveal", a.listingId)
		return
	}

	_, raw, err := auctionmsg.New(
		auctionmsg.TypeReveal, a.listingId, a.self(),
		auctionmsg.Reveal{
			Amount: secret.Amount.String(),
			Nonce:  secret.Nonce,
		},
		a.svc.opts.Identity.Sign,
	)
	if err != nil {
		log.WithError(err).Warn("failed to build reveal message")
		return
	}
	a.send(listing.Seller, raw)
}

// onReveal is the settlement gate, run by the seller: the revealed amount
// must open the winner's published commitment and its digest must equal the
// one the computation attested to. Either check failing alone is a contract
// violation terminating the listing, never retried.
func (a *listingActor) onReveal(envelope *auctionmsg.Envelope) {
	listing := a.getListing()
	if listing == nil || listing.Seller != a.self() ||
		listing.Status.Code != domain.ListingStatusCodeWinnerChallenge ||
		listing.Result == nil {
		return
	}

	body, err := auctionmsg.DecodeReveal(envelope)
	if err != nil {
		log.Debugf("dropping malformed reveal %s", envelope.Id)
		return
	}
	if envelope.Sender != listing.Result.Winner {
		log.Debugf("dropping reveal from non-winner %s", envelope.Sender)
		return
	}

	committed, ok := listing.CommitmentOf(envelope.Sender)
	if !ok {
		a.fail(domain.FailureReasonBidMismatch)
		return
	}
	amount, err := parsePrice(body.Amount)
	if err != nil {
		a.fail(domain.FailureReasonBidMismatch)
		return
	}
	if err := commitment.Verify(committed.Digest, amount, body.Nonce); err != nil {
		a.fail(domain.FailureReasonBidMismatch)
		return
	}
	if commitment.AmountDigest(amount) != listing.Result.ResultDigest {
		a.fail(domain.FailureReasonBidMismatch)
		return
	}

	now := time.Now().Unix()
	record := &domain.AuctionRecord{
		Id:             uuid.New().String(),
		ListingId:      a.listingId,
		Winner:         listing.Result.Winner,
		ClearedPrice:   listing.Result.ClearedPrice,
		ResultDigest:   listing.Result.ResultDigest,
		Attestations:   listing.Result.Attestations,
		SettlementTime: now,
	}

	settled := false
	a.updateListing(func(l *domain.Listing) (*domain.Listing, error) {
		done, err := l.Settle(record, now)
		if err != nil {
			return nil, err
		}
		settled = done
		return l, nil
	})
	if !settled {
		return
	}

	ctx := a.ctx()
	if err := a.svc.opts.RepoManager.RecordRepository().AddRecord(ctx, record); err != nil {
		log.WithError(err).Warnf("failed to store record of %s", a.listingId)
	}
	if err := a.svc.opts.Registry.PublishRecord(ctx, record); err != nil {
		log.WithError(err).Warnf("failed to publish record of %s", a.listingId)
	}
	a.publishStatus()
	a.emitEvent(TopicAuctionSettled, map[string]interface{}{
		"winner":       record.Winner,
		"clearedPrice": record.ClearedPrice.String(),
	})
	a.finish(a.getListing())
}

// settleFromPublishedRecord settles a non-seller listing from the record the
// seller published in the DHT, after checking it against the locally
// attested result.
func (a *listingActor) settleFromPublishedRecord() {
	listing := a.getListing()
	if listing == nil || listing.IsTerminal() || listing.Result == nil {
		return
	}

	record, err := a.svc.opts.Registry.FetchRecord(a.ctx(), a.listingId)
	if err != nil {
		return
	}
	if record.ResultDigest != listing.Result.ResultDigest {
		log.Warnf("published record of %s contradicts the attestation", a.listingId)
		a.fail(domain.FailureReasonBidMismatch)
		return
	}

	settled := false
	a.updateListing(func(l *domain.Listing) (*domain.Listing, error) {
		done, err := l.Settle(record, record.SettlementTime)
		if err != nil {
			return nil, err
		}
		settled = done
		return l, nil
	})
	if !settled {
		return
	}

	if err := a.svc.opts.RepoManager.RecordRepository().AddRecord(
		a.ctx(), record,
	); err != nil {
		log.WithError(err).Warnf("failed to store record of %s", a.listingId)
	}
	a.emitEvent(TopicAuctionSettled, map[string]interface{}{
		"winner":       record.Winner,
		"clearedPrice": record.ClearedPrice.String(),
	})
	a.finish(a.getListing())
}

// requestStatusSync probes the seller and every assigned party for their view
// of the listing, so a peer that missed a message catches up without waiting
// for a deadline.
func (a *listingActor) requestStatusSync(listing *domain.Listing) {
	_, raw, err := auctionmsg.New(
		auctionmsg.TypeStatusRequest, a.listingId, a.self(),
		auctionmsg.StatusRequest{StatusCode: listing.Status.Code},
		a.svc.opts.Identity.Sign,
	)
	if err != nil {
		return
	}

	peers := map[string]struct{}{}
	if listing.Seller != a.self() {
		peers[listing.Seller] = struct{}{}
	}
	if listing.Assignment != nil {
		for _, party := range listing.Assignment.Parties {
			if party.Identity != a.self() {
				peers[party.Identity] = struct{}{}
			}
		}
	}
	for peer := range peers {
		a.send(peer, raw)
	}
}

func (a *listingActor) isComputingParty(listing *domain.Listing) bool {
	if listing.Assignment == nil {
		return false
	}
	_, isParty := listing.Assignment.PartyOf(a.self())
	return isParty
}

func (a *listingActor) onStatusRequest(envelope *auctionmsg.Envelope) {
	listing := a.getListing()
	if listing == nil {
		return
	}

	fingerprint := ""
	if listing.Assignment != nil {
		fingerprint = listing.Assignment.Fingerprint()
	}
	_, raw, err := auctionmsg.New(
		auctionmsg.TypeStatusReply, a.listingId, a.self(),
		auctionmsg.StatusReply{
			StatusCode:            listing.Status.Code,
			Reason:                listing.Status.Reason.String(),
			AssignmentFingerprint: fingerprint,
		},
		a.svc.opts.Identity.Sign,
	)
	if err != nil {
		return
	}
	a.send(envelope.Sender, raw)

	// a requester still computing missed this party's attestation: re-send
	// it so its quorum can complete
	if body, err := auctionmsg.DecodeStatusRequest(envelope); err == nil {
		if body.StatusCode == domain.ListingStatusCodeComputationRunning &&
			a.ownResult != nil {
			a.sendAttestation(envelope.Sender, a.ownResult)
		}
	}
}

// onStatusReply reconciles the local view with the one of a peer reached
// after a partition. Transitions are idempotent: a reply describing an
// already applied transition is a no-op.
func (a *listingActor) onStatusReply(envelope *auctionmsg.Envelope) {
	body, err := auctionmsg.DecodeStatusReply(envelope)
	if err != nil {
		return
	}
	listing := a.getListing()
	if listing == nil || listing.IsTerminal() {
		return
	}

	a.markReachable(envelope.Sender)

	switch {
	case body.StatusCode == domain.ListingStatusCodeSettled:
		a.settleFromPublishedRecord()
	case body.StatusCode == domain.ListingStatusCodeComputationRunning &&
		a.ownResult != nil:
		a.sendAttestation(envelope.Sender, a.ownResult)
	}
}

func (a *listingActor) onCancelNotice(envelope *auctionmsg.Envelope) {
	body, err := auctionmsg.DecodeCancelNotice(envelope)
	if err != nil {
		return
	}
	a.cancel(domain.FailureReasonFromLabel(body.Reason))
}

func (a *listingActor) fail(reason domain.FailureReason) {
	failed := false
	a.updateListing(func(l *domain.Listing) (*domain.Listing, error) {
		failed = l.Fail(reason)
		return l, nil
	})
	if !failed {
		return
	}

	log.Warnf("listing %s failed: %s", a.listingId, reason)
	a.publishStatus()
	a.emitEvent(TopicAuctionFailed, map[string]interface{}{
		"reason": reason.String(),
	})
	a.finish(a.getListing())
}

func (a *listingActor) expire() {
	expired := false
	a.updateListing(func(l *domain.Listing) (*domain.Listing, error) {
		done, err := l.Expire()
		if err != nil {
			return nil, err
		}
		expired = done
		return l, nil
	})
	if !expired {
		return
	}

	a.publishStatus()
	a.emitEvent(TopicAuctionExpired, nil)
	a.finish(a.getListing())
}

func (a *listingActor) cancel(reason domain.FailureReason) {
	listing := a.getListing()
	if listing == nil {
		return
	}

	cancelled := false
	a.updateListing(func(l *domain.Listing) (*domain.Listing, error) {
		done, err := l.Cancel(reason)
		if err != nil {
			return nil, err
		}
		cancelled = done
		return l, nil
	})
	if !cancelled {
		return
	}

	a.notifyCancellation(listing, reason)
	a.publishStatus()
	a.emitEvent(TopicAuctionCancelled, map[string]interface{}{
		"reason": reason.String(),
	})
	a.finish(a.getListing())
}

// notifyCancellation tells the reachable peers that the listing was torn
// down, best effort.
func (a *listingActor) notifyCancellation(
	listing *domain.Listing, reason domain.FailureReason,
) {
	_, raw, err := auctionmsg.New(
		auctionmsg.TypeCancelNotice, a.listingId, a.self(),
		auctionmsg.CancelNotice{Reason: reason.String()},
		a.svc.opts.Identity.Sign,
	)
	if err != nil {
		return
	}

	peers := map[string]struct{}{}
	if listing.Seller != a.self() {
		peers[listing.Seller] = struct{}{}
	}
	if listing.Assignment != nil {
		for _, party := range listing.Assignment.Parties {
			if party.Identity != a.self() {
				peers[party.Identity] = struct{}{}
			}
		}
	}
	for peer := range peers {
		a.send(peer, raw)
	}
}

// finish releases everything the actor holds for a terminal listing.
func (a *listingActor) finish(listing *domain.Listing) {
	if listing != nil && listing.IsTerminal() {
		if err := a.svc.opts.RepoManager.BidSecretRepository().DeleteSecret(
			a.ctx(), a.listingId,
		); err != nil {
			log.WithError(err).Debugf("failed to drop secret of %s", a.listingId)
		}
	}
	go a.svc.dropActor(a.listingId)
}

// send delivers a routed message to a peer and tracks its reachability: a
// peer unresponsive past the grace window parks the listing until either a
// reconciliation or the stall TTL sweep.
func (a *listingActor) send(peer string, raw []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRequestTimeout)
	defer cancel()

	if err := a.svc.opts.Messenger.Send(ctx, peer, raw); err != nil {
		now := time.Now().Unix()
		since, seen := a.unreachable[peer]
		if !seen {
			a.unreachable[peer] = now
			return
		}
		if now-since >= int64(a.svc.opts.StallGrace.Seconds()) {
			a.stall()
		}
		return
	}
	a.markReachable(peer)
}

// markReachable clears the failed-delivery state of a peer. The listing only
// resumes once no tracked peer is left unreachable: hearing back from one
// peer must not unpark a listing still cut off from another.
func (a *listingActor) markReachable(peer string) {
	delete(a.unreachable, peer)
	if len(a.unreachable) > 0 {
		return
	}

	listing := a.getListing()
	if listing == nil || !listing.IsStalled() {
		return
	}
	a.updateListing(func(l *domain.Listing) (*domain.Listing, error) {
		l.Resume()
		return l, nil
	})
	log.Infof("listing %s resumed after reconciliation", a.listingId)
}

func (a *listingActor) stall() {
	ttl := time.Now().Unix() + int64(a.svc.opts.StallTTL.Seconds())
	stalled := false
	a.updateListing(func(l *domain.Listing) (*domain.Listing, error) {
		if !l.IsStalled() && !l.IsTerminal() {
			l.Stall(ttl)
			stalled = true
		}
		return l, nil
	})
	if stalled {
		log.Warnf("listing %s stalled, cancelling at ttl", a.listingId)
		a.emitEvent(TopicAuctionStalled, nil)
	}
}

// publishStatus refreshes the listing descriptor in the DHT. Only the seller
// owns that record.
func (a *listingActor) publishStatus() {
	listing := a.getListing()
	if listing == nil || listing.Seller != a.self() {
		return
	}
	if err := a.svc.opts.Registry.PublishListing(a.ctx(), listing); err != nil {
		log.WithError(err).Debugf("failed to refresh descriptor of %s", a.listingId)
	}
}

func (a *listingActor) emitEvent(topic string, extra map[string]interface{}) {
	payload := map[string]interface{}{"listingId": a.listingId}
	if listing := a.getListing(); listing != nil {
		payload["status"] = listing.Status.String()
	}
	for k, v := range extra {
		payload[k] = v
	}
	message, err := json.Marshal(payload)
	if err != nil {
		return
	}
	a.svc.publishEvent(topic, string(message))
}

func (a *listingActor) getListing() *domain.Listing {
	listing, err := a.svc.opts.RepoManager.ListingRepository().GetListing(
		a.ctx(), a.listingId,
	)
	if err != nil {
		return nil
	}
	return listing
}

func (a *listingActor) getSecret() *domain.BidSecret {
	secret, err := a.svc.opts.RepoManager.BidSecretRepository().GetSecret(
		a.ctx(), a.listingId,
	)
	if err != nil {
		return nil
	}
	return secret
}

func (a *listingActor) updateListing(
	updateFn func(l *domain.Listing) (*domain.Listing, error),
) {
	if err := a.svc.opts.RepoManager.ListingRepository().UpdateListing(
		a.ctx(), a.listingId, updateFn,
	); err != nil {
		log.WithError(err).Debugf("skipped update of %s", a.listingId)
	}
}

func (a *listingActor) self() string {
	return a.svc.opts.Identity.ID()
}

func (a *listingActor) ctx() context.Context {
	return context.Background()
}
