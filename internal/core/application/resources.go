package application

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// resourceTable is the process-wide accounting of the external resources
// owned by computation sessions: engine processes, tunnel listeners and
// substrate routes. A session claims its entry before acquiring anything and
// releases it exactly once on teardown; a double claim or double release is
// a defect and is surfaced as ErrResourceInvariant rather than ignored.
type resourceTable struct {
	mtx      sync.Mutex
	sessions map[string]*sessionResources
}

type sessionResources struct {
	processes int
	listeners int
	routes    int
}

func newResourceTable() *resourceTable {
	return &resourceTable{sessions: map[string]*sessionResources{}}
}

func (t *resourceTable) claim(sessionId string) error {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if _, ok := t.sessions[sessionId]; ok {
		log.Errorf("session %s claimed twice", sessionId)
		return ErrResourceInvariant
	}
	t.sessions[sessionId] = &sessionResources{}
	return nil
}

func (t *resourceTable) release(sessionId string) error {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if _, ok := t.sessions[sessionId]; !ok {
		log.Errorf("session %s released twice", sessionId)
		return ErrResourceInvariant
	}
	delete(t.sessions, sessionId)
	return nil
}

func (t *resourceTable) track(sessionId string, processes, listeners, routes int) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if res, ok := t.sessions[sessionId]; ok {
		res.processes += processes
		res.listeners += listeners
		res.routes += routes
	}
}

// counts returns the total number of processes, listeners and routes
// currently claimed across all sessions. After every session of a storm of
// timeouts and cancellations is torn down, all three return to zero.
func (t *resourceTable) counts() (processes, listeners, routes int) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	for _, res := range t.sessions {
		processes += res.processes
		listeners += res.listeners
		routes += res.routes
	}
	return
}
