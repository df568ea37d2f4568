package application

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const defaultSweepInterval = 30 * time.Second

// sweep periodically reconciles the actor registry with the store: every
// non-terminal listing gets an actor even if the one spawned at startup died
// or the listing was imported behind the coordinator's back, and terminal
// listings that somehow still hold an actor are released. The sweep is the
// safety net of the reject-new inbox policy: any notification dropped under
// overflow is re-derived here at the latest.
func (s *coordinatorService) sweep() {
	defer s.wg.Done()

	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.reconcileActors()
		}
	}
}

func (s *coordinatorService) reconcileActors() {
	listings, err := s.opts.RepoManager.ListingRepository().GetAllListings(
		context.Background(),
	)
	if err != nil {
		log.WithError(err).Warn("sweep failed to list the stored listings")
		return
	}

	for _, listing := range listings {
		actor := s.actorOf(listing.Id)
		if listing.IsTerminal() {
			if actor != nil {
				s.dropActor(listing.Id)
			}
			continue
		}
		if actor == nil {
			log.Debugf("sweep respawning actor of listing %s", listing.Id)
			s.spawnActor(listing.Id)
		}
	}
}
