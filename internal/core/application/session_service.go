package application

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	log "github.com/sirupsen/logrus"

	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
	"github.com/sealbid-network/sealbid-daemon/internal/core/ports"
)

const (
	defaultConnectTimeout    = 30 * time.Second
	defaultCompletionTimeout = 2 * time.Minute
)

// SessionResult is the raw outcome of the local engine run. It is not
// authoritative: only after gathering an attestation quorum it is promoted
// to a domain.ComputedResult that the settlement gate accepts.
type SessionResult struct {
	WinnerPartyIndex int
	ClearedPrice     decimal.Decimal
	ResultDigest     string
}

// SessionManager runs one secure computation session per listing:
// materializes the local party input, establishes the tunnels towards the
// remote parties, spawns the engine subprocess and parses its output against
// the fixed result schema. Every resource of the session is torn down on
// every exit path before Run returns.
type SessionManager interface {
	Run(
		ctx context.Context,
		listing *domain.Listing,
		assignment *domain.PartyAssignment,
		selfIndex int,
		secret *domain.BidSecret,
	) (*SessionResult, error)
	// ResourceCounts returns the processes, listeners and routes currently
	// claimed by running sessions.
	ResourceCounts() (processes, listeners, routes int)
}

// SessionManagerOpts groups the parameters of NewSessionManager.
type SessionManagerOpts struct {
	Runner    ports.EngineRunner
	Messenger ports.Messenger
	Datadir   string
	ProgramId string
	// ConnectTimeout bounds the establishment of every tunnel route.
	ConnectTimeout time.Duration
	// CompletionTimeout bounds the whole computation run. Exceeding it
	// kills and reaps the engine process and releases all resources.
	CompletionTimeout time.Duration
}

type sessionManager struct {
	runner            ports.EngineRunner
	messenger         ports.Messenger
	datadir           string
	programId         string
	connectTimeout    time.Duration
	completionTimeout time.Duration
	table             *resourceTable
}

// NewSessionManager returns a SessionManager with the given options.
func NewSessionManager(opts SessionManagerOpts) SessionManager {
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	completionTimeout := opts.CompletionTimeout
	if completionTimeout <= 0 {
		completionTimeout = defaultCompletionTimeout
	}
	return &sessionManager{
		runner:            opts.Runner,
		messenger:         opts.Messenger,
		datadir:           opts.Datadir,
		programId:         opts.ProgramId,
		connectTimeout:    connectTimeout,
		completionTimeout: completionTimeout,
		table:             newResourceTable(),
	}
}

func (m *sessionManager) ResourceCounts() (int, int, int) {
	return m.table.counts()
}

func (m *sessionManager) Run(
	ctx context.Context,
	listing *domain.Listing,
	assignment *domain.PartyAssignment,
	selfIndex int,
	secret *domain.BidSecret,
) (*SessionResult, error) {
	sessionId := uuid.New().String()
	if err := m.table.claim(sessionId); err != nil {
		return nil, err
	}

	session := &mpcSession{
		id:        sessionId,
		listingId: listing.Id,
		table:     m.table,
	}
	defer session.teardown()

	runCtx, cancel := context.WithTimeout(ctx, m.completionTimeout)
	defer cancel()

	inputPath, err := m.writeInput(sessionId, secret)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(filepath.Dir(inputPath))

	// reserve the endpoint the engine listens on for lower-indexed parties
	engineLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	engineAddr := engineLn.Addr().String()
	engineLn.Close()

	peerAddrs := map[int]string{}
	for _, party := range assignment.Parties {
		j := party.Index
		if j == selfIndex {
			continue
		}

		t := &tunnel{
			peer:           party.Identity,
			channel:        RouteChannel(listing.Id, selfIndex, j),
			messenger:      m.messenger,
			connectTimeout: m.connectTimeout,
		}

		if j > selfIndex {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				return nil, err
			}
			t.listener = ln
			peerAddrs[j] = ln.Addr().String()
			session.tunnels = append(session.tunnels, t)
			m.table.track(sessionId, 0, 1, 1)
			go func() {
				if err := t.serveOutbound(runCtx); err != nil {
					log.Debugf(
						"tunnel %s of session %s ended: %s",
						t.channel, sessionId, err,
					)
				}
			}()
		} else {
			t.engineAddr = engineAddr
			session.tunnels = append(session.tunnels, t)
			m.table.track(sessionId, 0, 0, 1)
			go func() {
				if err := t.serveInbound(runCtx); err != nil {
					log.Debugf(
						"tunnel %s of session %s ended: %s",
						t.channel, sessionId, err,
					)
				}
			}()
		}
	}

	proc, err := m.runner.Start(ports.SessionSpec{
		SessionId:  sessionId,
		ListingId:  listing.Id,
		PartyIndex: selfIndex,
		Parties:    len(assignment.Parties),
		ProgramId:  m.programId,
		InputPath:  inputPath,
		ListenAddr: engineAddr,
		PeerAddrs:  peerAddrs,
	})
	if err != nil {
		log.WithError(err).Warnf("failed to start engine for listing %s", listing.Id)
		return nil, ErrProcessFailure
	}
	session.proc = proc
	m.table.track(sessionId, 1, 0, 0)

	select {
	case <-proc.Done():
	case <-runCtx.Done():
		// the deferred teardown kills and reaps the process and releases
		// the tunnels before Run returns
		return nil, ErrSessionTimeout
	}

	if err := proc.Err(); err != nil {
		log.WithError(err).Warnf("engine of listing %s exited nonzero", listing.Id)
		return nil, ErrProcessFailure
	}

	result, err := parseEngineOutput(proc.Output(), len(assignment.Parties))
	if err != nil {
		log.WithError(err).Warnf("rejecting engine output of listing %s", listing.Id)
		return nil, ErrProcessFailure
	}
	return result, nil
}

// writeInput materializes the secret input of the local party: the committed
// amount and the nonce, newline separated, in a session-scoped file removed
// on teardown.
func (m *sessionManager) writeInput(
	sessionId string, secret *domain.BidSecret,
) (string, error) {
	dir := filepath.Join(m.datadir, "sessions", sessionId)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "input")
	content := fmt.Sprintf("%s\n%s\n", secret.Amount.String(), secret.Nonce)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return "", err
	}
	return path, nil
}

// engineOutput is the fixed schema of the structured result the engine
// prints on stdout. Anything that does not match it exactly is rejected,
// never partially trusted.
type engineOutput struct {
	WinnerPartyIndex *int   `json:"winnerPartyIndex"`
	ClearedPrice     string `json:"clearedPrice"`
	ResultDigest     string `json:"resultDigest"`
}

func parseEngineOutput(raw []byte, parties int) (*SessionResult, error) {
	decoder := json.NewDecoder(bytes.NewReader(bytes.TrimSpace(raw)))
	decoder.DisallowUnknownFields()

	output := &engineOutput{}
	if err := decoder.Decode(output); err != nil {
		return nil, fmt.Errorf("output does not match the result schema: %s", err)
	}
	if decoder.More() {
		return nil, fmt.Errorf("output carries trailing data")
	}
	if output.WinnerPartyIndex == nil ||
		*output.WinnerPartyIndex < 0 || *output.WinnerPartyIndex >= parties {
		return nil, fmt.Errorf("winner party index out of range")
	}
	if len(output.ResultDigest) <= 0 {
		return nil, fmt.Errorf("result digest must not be null")
	}
	price, err := decimal.NewFromString(output.ClearedPrice)
	if err != nil || !price.IsPositive() {
		return nil, fmt.Errorf("cleared price is not a valid positive amount")
	}

	return &SessionResult{
		WinnerPartyIndex: *output.WinnerPartyIndex,
		ClearedPrice:     price,
		ResultDigest:     output.ResultDigest,
	}, nil
}
