package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sealbid-network/sealbid-daemon/config"
	"github.com/sealbid-network/sealbid-daemon/internal/core/application"
	"github.com/sealbid-network/sealbid-daemon/internal/core/ports"
	"github.com/sealbid-network/sealbid-daemon/internal/infrastructure/mpc"
	webhookpubsub "github.com/sealbid-network/sealbid-daemon/internal/infrastructure/pubsub/webhook"
	dbbadger "github.com/sealbid-network/sealbid-daemon/internal/infrastructure/storage/db/badger"
	substratememory "github.com/sealbid-network/sealbid-daemon/internal/infrastructure/substrate/memory"
	substratenode "github.com/sealbid-network/sealbid-daemon/internal/infrastructure/substrate/node"
	httpinterface "github.com/sealbid-network/sealbid-daemon/internal/interfaces/http"
	"github.com/sealbid-network/sealbid-daemon/pkg/dhtwatch"
	"github.com/sealbid-network/sealbid-daemon/pkg/identity"
	"github.com/sealbid-network/sealbid-daemon/pkg/stats"
)

// version is set at build time.
var version = "dev"

func main() {
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	datadir := config.GetDatadir()

	id, err := identity.LoadOrCreate(datadir)
	if err != nil {
		log.WithError(err).Panic("error while loading the daemon identity")
	}
	log.Infof("daemon identity: %s", id.ID())

	repoManager, err := dbbadger.NewRepoManager(
		filepath.Join(datadir, config.DbLocation), nil,
	)
	if err != nil {
		log.WithError(err).Panic("error while opening the local stores")
	}
	defer repoManager.Close()

	dht, messenger, listenMessages := connectSubstrate(id)

	watcher := dhtwatch.NewService(dhtwatch.Opts{
		DHT:                    dht,
		IntervalInMilliseconds: int(config.GetMillis(config.DHTPollIntervalKey).Milliseconds()),
		RequestsPerSecond:      config.GetInt(config.DHTPollLimitKey),
		ErrorHandler: func(err error) {
			log.WithError(err).Debug("dht watcher error")
		},
	})

	runner, err := mpc.NewEngineRunner(config.GetString(config.EnginePathKey))
	if err != nil {
		log.WithError(err).Panic("error while locating the computation engine")
	}

	registry := application.NewRegistryService(dht, id)
	ordering := application.NewOrderingService(registry, id)
	sessions := application.NewSessionManager(application.SessionManagerOpts{
		Runner:            runner,
		Messenger:         messenger,
		Datadir:           datadir,
		ProgramId:         config.GetString(config.EngineProgramKey),
		ConnectTimeout:    config.GetSeconds(config.ConnectTimeoutKey),
		CompletionTimeout: config.GetSeconds(config.ComputeWindowKey),
	})

	pubsub := buildPubSub(datadir)
	hub := httpinterface.NewEventHub()
	events := application.NewMultiPubSubService(pubsub, hub)

	coordinator := application.NewCoordinatorService(application.CoordinatorOpts{
		RepoManager:     repoManager,
		Registry:        registry,
		Ordering:        ordering,
		Sessions:        sessions,
		Messenger:       messenger,
		Watcher:         watcher,
		PubSub:          events,
		Identity:        id,
		InboxSize:       config.GetInt(config.InboxSizeKey),
		AssignWindow:    config.GetSeconds(config.AssignWindowKey),
		ComputeWindow:   config.GetSeconds(config.ComputeWindowKey),
		ChallengeWindow: config.GetSeconds(config.ChallengeWindowKey),
		StallGrace:      config.GetSeconds(config.StallGraceKey),
		StallTTL:        config.GetSeconds(config.StallTTLKey),
		AttestQuorum:    config.GetInt(config.AttestQuorumKey),
	})

	operator := application.NewOperatorService(application.OperatorOpts{
		RepoManager: repoManager,
		Registry:    registry,
		Coordinator: coordinator,
		PubSub:      events,
		Identity:    id,
		Version:     version,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if listenMessages != nil {
		go listenMessages(ctx)
	}
	if err := coordinator.Start(); err != nil {
		log.WithError(err).Panic("error while starting the coordinator")
	}
	defer coordinator.Stop()

	httpSvc := httpinterface.NewService(httpinterface.ServiceOpts{
		Port:           config.GetInt(config.OperatorListeningPortKey),
		Operator:       operator,
		Hub:            hub,
		EnableProfiler: config.GetBool(config.EnableProfilerKey),
	})
	go func() {
		if err := httpSvc.Start(); err != nil {
			log.WithError(err).Panic("error while serving the operator interface")
		}
	}()
	defer httpSvc.Stop()

	if config.GetBool(config.EnableProfilerKey) {
		dumpDir := filepath.Join(datadir, config.ProfilerLocation)
		if err := os.MkdirAll(dumpDir, 0755); err == nil {
			interval := time.Duration(config.GetInt(config.StatsIntervalKey)) * time.Second
			stats.EnableMemoryStatistics(ctx, interval, dumpDir)
		}
	}

	log.Info("daemon started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down")
}

// connectSubstrate returns the DHT and the messenger of the configured
// substrate node, or of an in-process one for local testing.
func connectSubstrate(
	id *identity.Identity,
) (ports.DHT, ports.Messenger, func(context.Context)) {
	if config.GetBool(config.NoSubstrateKey) {
		log.Warn("running against an in-process substrate, for local testing only")
		node := substratememory.NewNetwork().Join(id.ID())
		return node, node, nil
	}

	client, err := substratenode.NewClient(
		config.GetString(config.SubstrateEndpointKey),
		config.GetMillis(config.SubstrateRequestTimeoutKey),
	)
	if err != nil {
		log.WithError(err).Panic("error while connecting to the substrate node")
	}
	return client, client, client.ListenMessages
}

func buildPubSub(datadir string) application.PubSubService {
	store, err := dbbadger.NewWebhookStore(
		filepath.Join(datadir, config.DbLocation, "webhooks"), nil,
	)
	if err != nil {
		log.WithError(err).Panic("error while opening the webhook store")
	}
	pubsub, err := webhookpubsub.NewWebhookPubSubService(store, 0)
	if err != nil {
		log.WithError(err).Panic("error while setting up the webhook service")
	}
	return pubsub
}
