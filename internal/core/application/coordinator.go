package application

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sealbid-network/sealbid-daemon/internal/core/ports"
	"github.com/sealbid-network/sealbid-daemon/pkg/auctionmsg"
	"github.com/sealbid-network/sealbid-daemon/pkg/dhtwatch"
	"github.com/sealbid-network/sealbid-daemon/pkg/identity"
)

const (
	defaultInboxSize    = 64
	defaultTickInterval = time.Second
)

// CoordinatorService hosts one actor per tracked listing. Every actor
// processes its events one at a time out of a bounded inbox, so no two
// transitions of the same listing ever race; listings never share state and
// never block each other.
type CoordinatorService interface {
	// Start loads the non-terminal listings from the local store, spawns
	// their actors and begins consuming substrate events.
	Start() error
	// Stop stops all actors and the event consumption.
	Stop()
	// WatchListing spawns the actor of the given listing if missing.
	WatchListing(ctx context.Context, listingId string) error
	// CancelListing asks the actor of the listing to cancel it.
	CancelListing(ctx context.Context, listingId string) error
}

// CoordinatorOpts groups the collaborators and tuning knobs of the
// coordinator.
type CoordinatorOpts struct {
	RepoManager ports.RepoManager
	Registry    RegistryService
	Ordering    OrderingService
	Sessions    SessionManager
	Messenger   ports.Messenger
	Watcher     dhtwatch.Service
	PubSub      PubSubService
	Identity    *identity.Identity

	// InboxSize bounds every per-listing inbox. Overflow rejects the new
	// event (reject-new policy): the periodic tick re-derives anything a
	// dropped notification would have triggered.
	InboxSize    int
	TickInterval time.Duration

	// Phase windows, applied as deadlines on the non-terminal states.
	AssignWindow    time.Duration
	ComputeWindow   time.Duration
	ChallengeWindow time.Duration

	// StallGrace is how long an expected peer may be unreachable before the
	// listing is parked; StallTTL how long a parked listing survives before
	// the sweep cancels it.
	StallGrace time.Duration
	StallTTL   time.Duration

	// AttestQuorum is the number of distinct parties that must report the
	// same result before it is trusted. Zero means all parties.
	AttestQuorum int
}

type coordinatorService struct {
	opts CoordinatorOpts

	actorsMtx sync.RWMutex
	actors    map[string]*listingActor

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCoordinatorService returns a CoordinatorService with the given options.
func NewCoordinatorService(opts CoordinatorOpts) CoordinatorService {
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaultInboxSize
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	return &coordinatorService{
		opts:   opts,
		actors: map[string]*listingActor{},
		quit:   make(chan struct{}),
	}
}

func (s *coordinatorService) Start() error {
	s.opts.Messenger.RegisterHandler(s.onMessage)

	go s.opts.Watcher.Start()
	s.wg.Add(2)
	go s.consumeWatcherEvents()
	go s.sweep()

	listings, err := s.opts.RepoManager.ListingRepository().GetAllListings(
		context.Background(),
	)
	if err != nil {
		return err
	}
	for _, listing := range listings {
		if listing.IsTerminal() {
			continue
		}
		s.spawnActor(listing.Id)
	}
	return nil
}

func (s *coordinatorService) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		s.actorsMtx.Lock()
		for _, actor := range s.actors {
			actor.stop()
		}
		s.actors = map[string]*listingActor{}
		s.actorsMtx.Unlock()
		s.opts.Watcher.Stop()
		s.wg.Wait()
	})
}

func (s *coordinatorService) WatchListing(
	ctx context.Context, listingId string,
) error {
	if _, err := s.opts.RepoManager.ListingRepository().GetListing(
		ctx, listingId,
	); err != nil {
		return ErrListingNotFound
	}
	s.spawnActor(listingId)
	return nil
}

func (s *coordinatorService) CancelListing(
	_ context.Context, listingId string,
) error {
	actor := s.actorOf(listingId)
	if actor == nil {
		return ErrListingNotFound
	}
	return actor.push(actorEvent{kind: evtCancel})
}

func (s *coordinatorService) spawnActor(listingId string) {
	s.actorsMtx.Lock()
	defer s.actorsMtx.Unlock()

	if _, ok := s.actors[listingId]; ok {
		return
	}

	actor := newListingActor(s, listingId)
	s.actors[listingId] = actor
	go actor.run()

	s.opts.Watcher.AddObservable(dhtwatch.KeyObservable{DHTKey: BidsKey(listingId)})
	s.opts.Watcher.AddObservable(dhtwatch.KeyObservable{DHTKey: OrderingKey(listingId)})
	s.opts.Watcher.AddObservable(dhtwatch.KeyObservable{DHTKey: RecordKey(listingId)})
}

func (s *coordinatorService) dropActor(listingId string) {
	s.actorsMtx.Lock()
	defer s.actorsMtx.Unlock()

	if actor, ok := s.actors[listingId]; ok {
		actor.stop()
		delete(s.actors, listingId)
	}

	s.opts.Watcher.RemoveObservable(dhtwatch.KeyObservable{DHTKey: BidsKey(listingId)})
	s.opts.Watcher.RemoveObservable(dhtwatch.KeyObservable{DHTKey: OrderingKey(listingId)})
	s.opts.Watcher.RemoveObservable(dhtwatch.KeyObservable{DHTKey: RecordKey(listingId)})
}

func (s *coordinatorService) actorOf(listingId string) *listingActor {
	s.actorsMtx.RLock()
	defer s.actorsMtx.RUnlock()
	return s.actors[listingId]
}

// onMessage dispatches every routed message to the inbox of its listing's
// actor. Messages with an invalid signature or for unknown listings are
// dropped here, before touching any actor state.
func (s *coordinatorService) onMessage(sender string, raw []byte) {
	envelope, err := auctionmsg.Parse(raw)
	if err != nil {
		log.WithError(err).Debug("dropping malformed message")
		return
	}
	if envelope.Sender != sender {
		log.Debugf("dropping message with spoofed sender %s", envelope.Sender)
		return
	}
	if err := identity.Verify(
		envelope.Sender, envelope.SigningPayload(), envelope.Signature,
	); err != nil {
		log.Debugf("dropping message %s with invalid signature", envelope.Id)
		return
	}

	actor := s.actorOf(envelope.ListingId)
	if actor == nil {
		return
	}
	if err := actor.push(actorEvent{kind: evtMessage, envelope: envelope}); err != nil {
		log.Warnf(
			"inbox of listing %s full, rejecting message %s",
			envelope.ListingId, envelope.Id,
		)
	}
}

func (s *coordinatorService) consumeWatcherEvents() {
	defer s.wg.Done()

	eventChan := s.opts.Watcher.GetEventChannel()
	for {
		select {
		case <-s.quit:
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			update, isUpdate := event.(dhtwatch.RecordUpdatedEvent)
			if !isUpdate {
				continue
			}
			listingId := listingIdOfKey(update.Key)
			actor := s.actorOf(listingId)
			if actor == nil {
				continue
			}
			if err := actor.push(actorEvent{kind: evtRecordUpdated, record: &update}); err != nil {
				// reject-new: the next poll or tick re-derives the update
				log.Debugf("inbox of listing %s full, rejecting record update", listingId)
			}
		}
	}
}

func (s *coordinatorService) publishEvent(topic string, message string) {
	if s.opts.PubSub == nil {
		return
	}
	if err := s.opts.PubSub.Publish(topic, message); err != nil {
		log.WithError(err).Warnf("failed to publish %s event", topic)
	}
}

func listingIdOfKey(key string) string {
	for _, prefix := range []string{
		listingKeyPrefix, bidsKeyPrefix, orderingKeyPrefix, recordKeyPrefix,
	} {
		if strings.HasPrefix(key, prefix) {
			return strings.TrimPrefix(key, prefix)
		}
	}
	return ""
}
