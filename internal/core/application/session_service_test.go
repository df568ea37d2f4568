package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sealbid-network/sealbid-daemon/internal/core/application"
	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
	"github.com/sealbid-network/sealbid-daemon/internal/core/ports"
	memorysubstrate "github.com/sealbid-network/sealbid-daemon/internal/infrastructure/substrate/memory"
)

// hangingRunner spawns a process that never completes on its own.
type hangingRunner struct{}

func (hangingRunner) Start(ports.SessionSpec) (ports.EngineProcess, error) {
	return &fakeProcess{done: make(chan struct{})}, nil
}

// crashingRunner spawns a process that exits immediately with an error.
type crashingRunner struct{}

func (crashingRunner) Start(ports.SessionSpec) (ports.EngineProcess, error) {
	proc := &crashedProcess{fakeProcess{done: make(chan struct{})}}
	proc.finish(nil)
	return proc, nil
}

type crashedProcess struct{ fakeProcess }

func (*crashedProcess) Err() error { return errors.New("exit status 1") }

func newSessionFixture(t *testing.T) (
	*domain.Listing, *domain.PartyAssignment, *domain.BidSecret,
) {
	t.Helper()
	listing := domain.NewListing("seller", "vintage synth", "")
	now := time.Now().Unix()
	_, err := listing.Open(now+3600, now+7200)
	require.NoError(t, err)

	assignment, err := domain.NewPartyAssignment(
		listing.Id, "seller", []domain.BidCommitment{
			{ListingId: listing.Id, Bidder: "alice", Digest: "aa11"},
			{ListingId: listing.Id, Bidder: "bob", Digest: "bb22"},
		},
	)
	require.NoError(t, err)

	secret := &domain.BidSecret{
		ListingId: listing.Id,
		Amount:    mustDecimal(t, "150.5"),
		Nonce:     "nonce",
		Digest:    "aa11",
	}
	return listing, assignment, secret
}

func newSessionTestManager(
	t *testing.T, runner ports.EngineRunner,
) application.SessionManager {
	t.Helper()
	network := memorysubstrate.NewNetwork()
	return application.NewSessionManager(application.SessionManagerOpts{
		Runner:            runner,
		Messenger:         network.Join("alice"),
		Datadir:           t.TempDir(),
		ProgramId:         "sealed-bid-auction",
		ConnectTimeout:    100 * time.Millisecond,
		CompletionTimeout: 300 * time.Millisecond,
	})
}

func requireResourcesReleased(t *testing.T, sessions application.SessionManager) {
	t.Helper()
	require.Eventually(t, func() bool {
		procs, listeners, routes := sessions.ResourceCounts()
		return procs == 0 && listeners == 0 && routes == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestSessionTimesOut(t *testing.T) {
	sessions := newSessionTestManager(t, hangingRunner{})
	listing, assignment, secret := newSessionFixture(t)

	_, err := sessions.Run(context.Background(), listing, assignment, 0, secret)
	require.ErrorIs(t, err, application.ErrSessionTimeout)
	requireResourcesReleased(t, sessions)
}

func TestSessionReportsEngineCrash(t *testing.T) {
	sessions := newSessionTestManager(t, crashingRunner{})
	listing, assignment, secret := newSessionFixture(t)

	_, err := sessions.Run(context.Background(), listing, assignment, 0, secret)
	require.ErrorIs(t, err, application.ErrProcessFailure)
	requireResourcesReleased(t, sessions)
}

func TestSessionHonorsCallerContext(t *testing.T) {
	sessions := newSessionTestManager(t, hangingRunner{})
	listing, assignment, secret := newSessionFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sessions.Run(ctx, listing, assignment, 0, secret)
	require.ErrorIs(t, err, application.ErrSessionTimeout)
	requireResourcesReleased(t, sessions)
}
