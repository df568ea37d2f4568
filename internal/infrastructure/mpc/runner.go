package mpc

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/sealbid-network/sealbid-daemon/internal/core/ports"
)

// ErrNullEnginePath ...
var ErrNullEnginePath = errors.New("engine binary path must not be null")

type engineRunner struct {
	binPath string
}

// NewEngineRunner returns a ports.EngineRunner spawning the secure
// computation engine binary at the given path, one subprocess per session,
// for the local party role only.
func NewEngineRunner(binPath string) (ports.EngineRunner, error) {
	if len(binPath) <= 0 {
		return nil, ErrNullEnginePath
	}
	return &engineRunner{binPath}, nil
}

func (r *engineRunner) Start(spec ports.SessionSpec) (ports.EngineProcess, error) {
	args := []string{
		"--party", fmt.Sprintf("%d", spec.PartyIndex),
		"--parties", fmt.Sprintf("%d", spec.Parties),
		"--program", spec.ProgramId,
		"--input", spec.InputPath,
		"--listen", spec.ListenAddr,
	}
	// deterministic argument order helps debugging failed runs
	peerIndexes := make([]int, 0, len(spec.PeerAddrs))
	for idx := range spec.PeerAddrs {
		peerIndexes = append(peerIndexes, idx)
	}
	sort.Ints(peerIndexes)
	for _, idx := range peerIndexes {
		args = append(args, "--peer", fmt.Sprintf("%d=%s", idx, spec.PeerAddrs[idx]))
	}

	cmd := exec.Command(r.binPath, args...)
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting engine process: %w", err)
	}

	proc := &engineProcess{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		done:   make(chan struct{}),
	}
	go proc.reap(spec.SessionId)
	return proc, nil
}

// engineProcess wraps a running engine subprocess. The wait goroutine started
// at spawn time is the single place the process gets reaped, so neither a
// natural exit nor a kill can leave a zombie behind.
type engineProcess struct {
	cmd      *exec.Cmd
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
	done     chan struct{}
	exitErr  error
	killOnce sync.Once
}

func (p *engineProcess) reap(sessionId string) {
	p.exitErr = p.cmd.Wait()
	if p.exitErr != nil && p.stderr.Len() > 0 {
		log.Debugf(
			"engine process of session %s: %s", sessionId, p.stderr.String(),
		)
	}
	close(p.done)
}

func (p *engineProcess) Done() <-chan struct{} {
	return p.done
}

func (p *engineProcess) Err() error {
	select {
	case <-p.done:
		return p.exitErr
	default:
		return nil
	}
}

func (p *engineProcess) Output() []byte {
	select {
	case <-p.done:
		return p.stdout.Bytes()
	default:
		return nil
	}
}

func (p *engineProcess) Kill() error {
	p.killOnce.Do(func() {
		select {
		case <-p.done:
		default:
			// the kill error is irrelevant if the process raced us to exit;
			// the reap goroutine waits for it either way
			p.cmd.Process.Kill()
		}
	})
	<-p.done
	return nil
}
