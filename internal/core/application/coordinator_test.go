package application_test

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sealbid-network/sealbid-daemon/internal/core/application"
	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
	"github.com/sealbid-network/sealbid-daemon/internal/core/ports"
	"github.com/sealbid-network/sealbid-daemon/internal/infrastructure/storage/db/inmemory"
	memorysubstrate "github.com/sealbid-network/sealbid-daemon/internal/infrastructure/substrate/memory"
	"github.com/sealbid-network/sealbid-daemon/pkg/commitment"
	"github.com/sealbid-network/sealbid-daemon/pkg/dhtwatch"
	"github.com/sealbid-network/sealbid-daemon/pkg/identity"
)

// fakeResult is the outcome every fake engine of a computation reports. The
// test fills it in once the canonical ordering is predictable.
type fakeResult struct {
	mtx         sync.Mutex
	winnerIndex int
	price       string
	digest      string
}

func (r *fakeResult) set(winnerIndex int, price, digest string) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.winnerIndex = winnerIndex
	r.price = price
	r.digest = digest
}

func (r *fakeResult) output() []byte {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	raw, _ := json.Marshal(map[string]interface{}{
		"winnerPartyIndex": r.winnerIndex,
		"clearedPrice":     r.price,
		"resultDigest":     r.digest,
	})
	return raw
}

// fakeRunner stands in for the engine binary: it reports the shared result
// after a fixed delay, without any real multi-party exchange.
type fakeRunner struct {
	result *fakeResult
	delay  time.Duration
	// forgedDigest, when set, makes this party report a different digest.
	forgedDigest string
}

func (r *fakeRunner) Start(spec ports.SessionSpec) (ports.EngineProcess, error) {
	proc := &fakeProcess{done: make(chan struct{})}
	go func() {
		time.Sleep(r.delay)
		output := r.result.output()
		if len(r.forgedDigest) > 0 {
			forged := map[string]interface{}{}
			json.Unmarshal(output, &forged)
			forged["resultDigest"] = r.forgedDigest
			output, _ = json.Marshal(forged)
		}
		proc.finish(output)
	}()
	return proc, nil
}

type fakeProcess struct {
	mtx      sync.Mutex
	output   []byte
	done     chan struct{}
	doneOnce sync.Once
}

func (p *fakeProcess) finish(output []byte) {
	p.mtx.Lock()
	p.output = output
	p.mtx.Unlock()
	p.doneOnce.Do(func() { close(p.done) })
}

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) Err() error { return nil }

func (p *fakeProcess) Kill() error {
	p.doneOnce.Do(func() { close(p.done) })
	return nil
}
func (p *fakeProcess) Output() []byte {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.output
}

// daemonHarness is one full participant: identity, local stores, substrate
// node and the whole service stack of the daemon.
type daemonHarness struct {
	id          *identity.Identity
	node        *memorysubstrate.Node
	repoManager ports.RepoManager
	registry    application.RegistryService
	coordinator application.CoordinatorService
	operator    application.OperatorService
	sessions    application.SessionManager
}

func newDaemonHarness(
	t *testing.T, network *memorysubstrate.Network, runner ports.EngineRunner,
) *daemonHarness {
	return newDaemonHarnessWithPollInterval(t, network, runner, 50)
}

func newDaemonHarnessWithPollInterval(
	t *testing.T, network *memorysubstrate.Network, runner ports.EngineRunner,
	pollIntervalMs int,
) *daemonHarness {
	t.Helper()

	id, err := identity.New()
	require.NoError(t, err)
	node := network.Join(id.ID())
	repoManager := inmemory.NewRepoManager()
	registry := application.NewRegistryService(node, id)
	ordering := application.NewOrderingService(registry, id)
	sessions := application.NewSessionManager(application.SessionManagerOpts{
		Runner:            runner,
		Messenger:         node,
		Datadir:           t.TempDir(),
		ProgramId:         "sealed-bid-auction",
		ConnectTimeout:    500 * time.Millisecond,
		CompletionTimeout: 5 * time.Second,
	})
	watcher := dhtwatch.NewService(dhtwatch.Opts{
		DHT:                    node,
		IntervalInMilliseconds: pollIntervalMs,
		RequestsPerSecond:      1000,
		ErrorHandler:           func(error) {},
	})
	coordinator := application.NewCoordinatorService(application.CoordinatorOpts{
		RepoManager:     repoManager,
		Registry:        registry,
		Ordering:        ordering,
		Sessions:        sessions,
		Messenger:       node,
		Watcher:         watcher,
		Identity:        id,
		TickInterval:    50 * time.Millisecond,
		AssignWindow:    10 * time.Second,
		ComputeWindow:   5 * time.Second,
		ChallengeWindow: 10 * time.Second,
		StallGrace:      time.Second,
		StallTTL:        2 * time.Second,
	})
	operator := application.NewOperatorService(application.OperatorOpts{
		RepoManager: repoManager,
		Registry:    registry,
		Coordinator: coordinator,
		Identity:    id,
		Version:     "test",
	})

	require.NoError(t, coordinator.Start())
	t.Cleanup(coordinator.Stop)

	return &daemonHarness{
		id:          id,
		node:        node,
		repoManager: repoManager,
		registry:    registry,
		coordinator: coordinator,
		operator:    operator,
		sessions:    sessions,
	}
}

func (h *daemonHarness) listing(t *testing.T, listingId string) *domain.Listing {
	t.Helper()
	listing, err := h.repoManager.ListingRepository().GetListing(
		context.Background(), listingId,
	)
	require.NoError(t, err)
	return listing
}

// expectedWinnerIndex derives the canonical party index of the given digest
// the same way every participant does: by the lexicographic order of the
// published commitment digests.
func expectedWinnerIndex(
	t *testing.T, registry application.RegistryService, listingId, digest string,
) int {
	t.Helper()
	commitments, err := registry.SnapshotCommitments(
		context.Background(), listingId,
	)
	require.NoError(t, err)
	assignment, err := domain.NewPartyAssignment(listingId, "seller", commitments)
	require.NoError(t, err)
	for _, p := range assignment.Parties {
		if p.CommitmentDigest == digest {
			return p.Index
		}
	}
	t.Fatalf("digest %s not found in the published commitments", digest)
	return -1
}

func TestAuctionSettlesEndToEnd(t *testing.T) {
	network := memorysubstrate.NewNetwork()
	result := &fakeResult{}
	runner := &fakeRunner{result: result, delay: 500 * time.Millisecond}

	seller := newDaemonHarness(t, network, runner)
	bidders := []*daemonHarness{
		newDaemonHarness(t, network, runner),
		newDaemonHarness(t, network, runner),
		newDaemonHarness(t, network, runner),
	}
	amounts := []string{"101.25", "150.5", "200.75"}

	ctx := context.Background()
	now := time.Now().Unix()
	info, err := seller.operator.CreateListing(
		ctx, "vintage synth", "good shape", now+2, now+60,
	)
	require.NoError(t, err)
	listingId := info.Id

	var winnerDigest string
	for i, bidder := range bidders {
		receipt, err := bidder.operator.PlaceBid(
			ctx, listingId, mustDecimal(t, amounts[i]),
		)
		require.NoError(t, err)
		if amounts[i] == "200.75" {
			winnerDigest = receipt.Digest
		}
	}

	winningAmount := mustDecimal(t, "200.75")
	result.set(
		expectedWinnerIndex(t, seller.registry, listingId, winnerDigest),
		"200.75",
		commitment.AmountDigest(winningAmount),
	)

	// every participant independently converges to the settled state
	participants := append([]*daemonHarness{seller}, bidders...)
	require.Eventually(t, func() bool {
		for _, p := range participants {
			if !p.listing(t, listingId).IsSettled() {
				return false
			}
		}
		return true
	}, 30*time.Second, 100*time.Millisecond)

	winner := bidders[2]
	for _, p := range participants {
		listing := p.listing(t, listingId)
		require.NotNil(t, listing.Record)
		require.Equal(t, winner.id.ID(), listing.Record.Winner)
		require.True(t, winningAmount.Equal(listing.Record.ClearedPrice))
		require.Len(t, listing.Record.Attestations, 3)
	}

	record, err := seller.registry.FetchRecord(ctx, listingId)
	require.NoError(t, err)
	require.Equal(t, winner.id.ID(), record.Winner)

	// the published artifacts never leak a losing bid amount
	for _, key := range []string{
		application.ListingKey(listingId),
		application.BidsKey(listingId),
		application.OrderingKey(listingId),
		application.RecordKey(listingId),
	} {
		rec, err := seller.node.Get(ctx, key)
		require.NoError(t, err)
		for _, losing := range []string{"101.25", "150.5"} {
			require.False(
				t, bytes.Contains(rec.Payload, []byte(losing)),
				"key %s leaks the losing amount %s", key, losing,
			)
		}
	}

	// every session resource is released after settlement
	require.Eventually(t, func() bool {
		for _, p := range participants {
			procs, listeners, routes := p.sessions.ResourceCounts()
			if procs != 0 || listeners != 0 || routes != 0 {
				return false
			}
		}
		return network.PendingRouteCount() == 0
	}, 10*time.Second, 100*time.Millisecond)
}

func TestForgedResultNeverSettles(t *testing.T) {
	network := memorysubstrate.NewNetwork()
	result := &fakeResult{}

	seller := newDaemonHarness(
		t, network, &fakeRunner{result: result, delay: 300 * time.Millisecond},
	)
	honest := []*daemonHarness{
		newDaemonHarness(t, network, &fakeRunner{
			result: result, delay: 300 * time.Millisecond,
		}),
		newDaemonHarness(t, network, &fakeRunner{
			result: result, delay: 300 * time.Millisecond,
		}),
	}
	// the third party reports a digest the others never observed
	liar := newDaemonHarness(t, network, &fakeRunner{
		result: result, delay: 300 * time.Millisecond, forgedDigest: "forged",
	})

	ctx := context.Background()
	now := time.Now().Unix()
	info, err := seller.operator.CreateListing(
		ctx, "rare print", "", now+2, now+60,
	)
	require.NoError(t, err)
	listingId := info.Id

	bidders := append(honest, liar)
	amounts := []string{"101.25", "150.5", "200.75"}
	var winnerDigest string
	for i, bidder := range bidders {
		receipt, err := bidder.operator.PlaceBid(
			ctx, listingId, mustDecimal(t, amounts[i]),
		)
		require.NoError(t, err)
		if amounts[i] == "200.75" {
			winnerDigest = receipt.Digest
		}
	}
	result.set(
		expectedWinnerIndex(t, seller.registry, listingId, winnerDigest),
		"200.75",
		commitment.AmountDigest(mustDecimal(t, "200.75")),
	)

	// with a dissenting party the attestation quorum is never met: the
	// computation deadline expires and the listing fails, never settles
	require.Eventually(t, func() bool {
		listing := seller.listing(t, listingId)
		return listing.Status.Code == domain.ListingStatusCodeFailed
	}, 30*time.Second, 100*time.Millisecond)

	listing := seller.listing(t, listingId)
	require.Equal(t, domain.FailureReasonSessionTimeout, listing.Status.Reason)
	require.False(t, listing.IsSettled())

	_, err = seller.registry.FetchRecord(ctx, listingId)
	require.Error(t, err)
}

func TestUnreachableSellerStallsThenCancels(t *testing.T) {
	network := memorysubstrate.NewNetwork()
	result := &fakeResult{}
	runner := &fakeRunner{result: result, delay: 300 * time.Millisecond}

	seller := newDaemonHarness(t, network, runner)
	bidders := []*daemonHarness{
		newDaemonHarness(t, network, runner),
		newDaemonHarness(t, network, runner),
	}

	ctx := context.Background()
	now := time.Now().Unix()
	info, err := seller.operator.CreateListing(
		ctx, "old amp", "", now+2, now+120,
	)
	require.NoError(t, err)
	listingId := info.Id

	amounts := []string{"150.5", "200.75"}
	var winnerDigest string
	for i, bidder := range bidders {
		receipt, err := bidder.operator.PlaceBid(
			ctx, listingId, mustDecimal(t, amounts[i]),
		)
		require.NoError(t, err)
		if amounts[i] == "200.75" {
			winnerDigest = receipt.Digest
		}
	}
	result.set(
		expectedWinnerIndex(t, seller.registry, listingId, winnerDigest),
		"200.75",
		commitment.AmountDigest(mustDecimal(t, "200.75")),
	)

	// the seller publishes the ordering, then drops off the network: the
	// winner cannot deliver its reveal, parks the listing and finally
	// cancels it once the stall TTL expires
	require.Eventually(t, func() bool {
		listing := bidders[0].listing(t, listingId)
		return listing.Status.Code >= domain.ListingStatusCodeComputationRunning
	}, 15*time.Second, 100*time.Millisecond)
	network.SetPartitioned(seller.id.ID(), true)

	require.Eventually(t, func() bool {
		for _, bidder := range bidders {
			listing := bidder.listing(t, listingId)
			if listing.Status.Code != domain.ListingStatusCodeCancelled {
				return false
			}
		}
		return true
	}, 30*time.Second, 100*time.Millisecond)

	listing := bidders[1].listing(t, listingId)
	require.Equal(t, domain.FailureReasonPartitionStall, listing.Status.Reason)
}

func TestStalledListingResumesAfterPartitionHeals(t *testing.T) {
	network := memorysubstrate.NewNetwork()
	result := &fakeResult{}
	runner := &fakeRunner{result: result, delay: 300 * time.Millisecond}

	seller := newDaemonHarness(t, network, runner)
	bidders := []*daemonHarness{
		newDaemonHarness(t, network, runner),
		newDaemonHarness(t, network, runner),
	}

	ctx := context.Background()
	now := time.Now().Unix()
	info, err := seller.operator.CreateListing(
		ctx, "tube preamp", "", now+2, now+120,
	)
	require.NoError(t, err)
	listingId := info.Id

	amounts := []string{"150.5", "200.75"}
	var winnerDigest string
	for i, bidder := range bidders {
		receipt, err := bidder.operator.PlaceBid(
			ctx, listingId, mustDecimal(t, amounts[i]),
		)
		require.NoError(t, err)
		if amounts[i] == "200.75" {
			winnerDigest = receipt.Digest
		}
	}
	result.set(
		expectedWinnerIndex(t, seller.registry, listingId, winnerDigest),
		"200.75",
		commitment.AmountDigest(mustDecimal(t, "200.75")),
	)

	// the seller drops off right away: the bidders still compute over their
	// own routes and attest to each other, but the seller never receives an
	// attestation and the winner cannot deliver its reveal, so both sides
	// park the listing
	network.SetPartitioned(seller.id.ID(), true)
	require.Eventually(t, func() bool {
		return bidders[1].listing(t, listingId).IsStalled()
	}, 15*time.Second, 25*time.Millisecond)

	// the partition heals before the stall ttl: the periodic status probes
	// resume the listing, the bidders re-send their attestations to the
	// seller and the whole auction still settles
	network.SetPartitioned(seller.id.ID(), false)

	participants := append([]*daemonHarness{seller}, bidders...)
	require.Eventually(t, func() bool {
		for _, p := range participants {
			if !p.listing(t, listingId).IsSettled() {
				return false
			}
		}
		return true
	}, 30*time.Second, 100*time.Millisecond)

	for _, p := range participants {
		listing := p.listing(t, listingId)
		require.False(t, listing.IsStalled())
		require.NotNil(t, listing.Record)
		require.Equal(t, bidders[1].id.ID(), listing.Record.Winner)
	}
}

func TestTickSettlesWhenRecordEventMissed(t *testing.T) {
	network := memorysubstrate.NewNetwork()
	result := &fakeResult{}
	runner := &fakeRunner{result: result, delay: 300 * time.Millisecond}

	seller := newDaemonHarness(t, network, runner)
	// the bidders' watchers poll so rarely they effectively never fire: the
	// published record can only be picked up by the periodic tick
	bidders := []*daemonHarness{
		newDaemonHarnessWithPollInterval(t, network, runner, 3600000),
		newDaemonHarnessWithPollInterval(t, network, runner, 3600000),
	}

	ctx := context.Background()
	now := time.Now().Unix()
	info, err := seller.operator.CreateListing(
		ctx, "drum machine", "", now+2, now+120,
	)
	require.NoError(t, err)
	listingId := info.Id

	amounts := []string{"150.5", "200.75"}
	var winnerDigest string
	for i, bidder := range bidders {
		receipt, err := bidder.operator.PlaceBid(
			ctx, listingId, mustDecimal(t, amounts[i]),
		)
		require.NoError(t, err)
		if amounts[i] == "200.75" {
			winnerDigest = receipt.Digest
		}
	}
	result.set(
		expectedWinnerIndex(t, seller.registry, listingId, winnerDigest),
		"200.75",
		commitment.AmountDigest(mustDecimal(t, "200.75")),
	)

	participants := append([]*daemonHarness{seller}, bidders...)
	require.Eventually(t, func() bool {
		for _, p := range participants {
			if !p.listing(t, listingId).IsSettled() {
				return false
			}
		}
		return true
	}, 30*time.Second, 100*time.Millisecond)

	for _, bidder := range bidders {
		listing := bidder.listing(t, listingId)
		require.NotNil(t, listing.Record)
		require.Equal(t, bidders[1].id.ID(), listing.Record.Winner)
	}
}

func TestCancelListingByOperator(t *testing.T) {
	network := memorysubstrate.NewNetwork()
	runner := &fakeRunner{result: &fakeResult{}, delay: time.Second}
	seller := newDaemonHarness(t, network, runner)

	ctx := context.Background()
	now := time.Now().Unix()
	info, err := seller.operator.CreateListing(
		ctx, "unused gear", "", now+3600, now+7200,
	)
	require.NoError(t, err)

	require.NoError(t, seller.operator.CancelListing(ctx, info.Id))

	require.Eventually(t, func() bool {
		listing := seller.listing(t, info.Id)
		return listing.Status.Code == domain.ListingStatusCodeCancelled
	}, 10*time.Second, 50*time.Millisecond)

	t.Run("unknown listing", func(t *testing.T) {
		err := seller.operator.CancelListing(ctx, "unknown")
		require.ErrorIs(t, err, application.ErrListingNotFound)
	})
}
