package application

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"

	"github.com/sealbid-network/sealbid-daemon/internal/core/ports"
)

// mpcSession owns every external resource of one computation run: the engine
// subprocess, the tunnel listeners and the substrate routes. Its teardown is
// the single release point, invoked from every exit path and guarded so the
// resources are released exactly once, in a fixed order: stop accepting new
// tunnel connections, signal and reap the subprocess, close the routes,
// drop the accounting entry.
type mpcSession struct {
	id        string
	listingId string

	proc    ports.EngineProcess
	tunnels []*tunnel
	table   *resourceTable

	closeOnce sync.Once
}

func (s *mpcSession) teardown() {
	s.closeOnce.Do(func() {
		for _, t := range s.tunnels {
			t.stopAccepting()
		}
		if s.proc != nil {
			// Kill waits for the process to be reaped before returning
			if err := s.proc.Kill(); err != nil {
				log.WithError(err).Warnf(
					"failed to kill engine process of session %s", s.id,
				)
			}
		}
		for _, t := range s.tunnels {
			t.close()
		}
		if err := s.table.release(s.id); err != nil {
			log.WithError(err).Errorf(
				"resource accounting defect on session %s", s.id,
			)
		}
	})
}

// tunnel bridges the raw stream socket the engine expects with a substrate
// route towards one remote party. An outbound tunnel owns a loopback
// listener the local engine dials into; an inbound tunnel waits on the route
// and dials into the local engine's listening endpoint. Either way accepted
// bytes are forwarded verbatim in both directions.
type tunnel struct {
	peer    string
	channel string

	// outbound only
	listener net.Listener
	// inbound only
	engineAddr string

	messenger      ports.Messenger
	connectTimeout time.Duration

	mtx       sync.Mutex
	route     io.ReadWriteCloser
	conn      net.Conn
	closeOnce sync.Once
}

// RouteChannel returns the channel id both ends of a party pair derive for
// their tunnel, scoped by listing and by the pair's party indexes.
func RouteChannel(listingId string, i, j int) string {
	if i > j {
		i, j = j, i
	}
	return fmt.Sprintf("mpc/%s/%d-%d", listingId, i, j)
}

// serveOutbound waits for the local engine to dial the loopback listener,
// opens the route to the remote party and pumps the two byte streams into
// each other until either side ends.
func (t *tunnel) serveOutbound(ctx context.Context) error {
	conn, err := t.listener.Accept()
	if err != nil {
		return err
	}
	t.setConn(conn)

	connectCtx, cancel := context.WithTimeout(ctx, t.connectTimeout)
	route, err := t.messenger.OpenRoute(connectCtx, t.peer, t.channel)
	cancel()
	if err != nil {
		conn.Close()
		return err
	}
	t.setRoute(route)

	return pump(conn, route)
}

// serveInbound opens the route to the remote party, then dials the local
// engine's listening endpoint and pumps the two byte streams into each other.
func (t *tunnel) serveInbound(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, t.connectTimeout)
	defer cancel()

	route, err := t.messenger.OpenRoute(connectCtx, t.peer, t.channel)
	if err != nil {
		return err
	}
	t.setRoute(route)

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(connectCtx, "tcp", t.engineAddr)
	if err != nil {
		route.Close()
		return err
	}
	t.setConn(conn)

	return pump(conn, route)
}

// stopAccepting closes the loopback listener so no new engine connection can
// arrive past the session's lifetime. Established pumps keep running until
// close.
func (t *tunnel) stopAccepting() {
	if t.listener != nil {
		t.listener.Close()
	}
}

func (t *tunnel) close() {
	t.closeOnce.Do(func() {
		t.mtx.Lock()
		defer t.mtx.Unlock()
		if t.conn != nil {
			t.conn.Close()
		}
		if t.route != nil {
			t.route.Close()
		}
	})
}

func (t *tunnel) setConn(conn net.Conn) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.conn = conn
}

func (t *tunnel) setRoute(route io.ReadWriteCloser) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.route = route
}

func pump(conn net.Conn, route io.ReadWriteCloser) error {
	eg := &errgroup.Group{}
	eg.Go(func() error {
		_, err := io.Copy(route, conn)
		route.Close()
		return err
	})
	eg.Go(func() error {
		_, err := io.Copy(conn, route)
		conn.Close()
		return err
	})
	return eg.Wait()
}
