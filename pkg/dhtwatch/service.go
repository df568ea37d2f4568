package dhtwatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sealbid-network/sealbid-daemon/internal/core/ports"
	"go.uber.org/ratelimit"
)

const (
	eventQueueMaxSize = 100
	errorQueueMaxSize = 10
)

type dhtWatcher struct {
	interval     time.Duration
	dht          ports.DHT
	errChan      chan error
	eventChan    chan Event
	observables  map[string]*observableHandler
	errorHandler func(err error)
	rateLimiter  ratelimit.Limiter
	mutex        *sync.RWMutex
	wg           *sync.WaitGroup
}

// Opts defines the parameters needed for creating a watcher service with the
// NewService method.
type Opts struct {
	DHT                    ports.DHT
	IntervalInMilliseconds int
	// RequestsPerSecond caps the overall polling pressure on the substrate
	// across all watched keys.
	RequestsPerSecond int
	ErrorHandler      func(err error)
}

// NewService returns a dhtWatcher ready to watch for record updates. Use the
// Start and Stop methods to manage it.
func NewService(opts Opts) Service {
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	return &dhtWatcher{
		interval:     time.Duration(opts.IntervalInMilliseconds) * time.Millisecond,
		dht:          opts.DHT,
		errChan:      make(chan error, errorQueueMaxSize),
		eventChan:    make(chan Event, eventQueueMaxSize),
		observables:  map[string]*observableHandler{},
		errorHandler: opts.ErrorHandler,
		rateLimiter:  ratelimit.New(rps),
		mutex:        &sync.RWMutex{},
		wg:           &sync.WaitGroup{},
	}
}

// Start starts the watcher which periodically polls the watched DHT keys.
func (w *dhtWatcher) Start() {
	for err := range w.errChan {
		go w.errorHandler(err)
	}
}

// Stop stops the watcher.
func (w *dhtWatcher) Stop() {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	for _, handler := range w.observables {
		go handler.stop()
	}
	w.wg.Wait()
	w.eventChan <- QuitEvent{}
	close(w.errChan)
}

// GetEventChannel returns the Event channel which can be used to listen to
// record updates.
func (w *dhtWatcher) GetEventChannel() chan Event {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return w.eventChan
}

// AddObservable adds a new Observable to the list of watched keys only if the
// same key is not already in the list.
func (w *dhtWatcher) AddObservable(observable Observable) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if _, ok := w.observables[observable.Key()]; !ok {
		handler := newObservableHandler(
			observable, w.dht, w.wg, w.interval, w.rateLimiter,
			w.eventChan, w.errChan,
		)
		w.observables[observable.Key()] = handler
		w.wg.Add(1)
		go handler.start()
	}
}

// RemoveObservable stops watching the given Observable.
func (w *dhtWatcher) RemoveObservable(observable Observable) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if handler, ok := w.observables[observable.Key()]; ok {
		handler.stop()
		delete(w.observables, observable.Key())
	}
}

type observableHandler struct {
	observable  Observable
	dht         ports.DHT
	wg          *sync.WaitGroup
	interval    time.Duration
	rateLimiter ratelimit.Limiter
	eventChan   chan Event
	errChan     chan error
	quitChan    chan struct{}
	stopOnce    sync.Once
	lastSeq     uint64
	seen        bool
}

func newObservableHandler(
	observable Observable,
	dht ports.DHT,
	wg *sync.WaitGroup,
	interval time.Duration,
	rateLimiter ratelimit.Limiter,
	eventChan chan Event,
	errChan chan error,
) *observableHandler {
	return &observableHandler{
		observable:  observable,
		dht:         dht,
		wg:          wg,
		interval:    interval,
		rateLimiter: rateLimiter,
		eventChan:   eventChan,
		errChan:     errChan,
		quitChan:    make(chan struct{}),
	}
}

func (h *observableHandler) start() {
	defer h.wg.Done()

	// the handler may be stopped before this goroutine is even scheduled;
	// a removed key must never be polled again
	select {
	case <-h.quitChan:
		return
	default:
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.poll()
	for {
		select {
		case <-ticker.C:
			select {
			case <-h.quitChan:
				return
			default:
			}
			h.poll()
		case <-h.quitChan:
			return
		}
	}
}

func (h *observableHandler) stop() {
	h.stopOnce.Do(func() { close(h.quitChan) })
}

func (h *observableHandler) poll() {
	h.rateLimiter.Take()

	ctx, cancel := context.WithTimeout(context.Background(), h.interval)
	defer cancel()

	record, err := h.dht.Get(ctx, h.observable.Key())
	if err != nil {
		if !errors.Is(err, ports.ErrRecordNotFound) {
			h.errChan <- err
		}
		return
	}

	if h.seen && record.Sequence <= h.lastSeq {
		return
	}
	h.seen = true
	h.lastSeq = record.Sequence

	select {
	case h.eventChan <- RecordUpdatedEvent{
		Key:    h.observable.Key(),
		Record: *record,
	}:
	default:
		// the consumer is lagging behind; drop the event, the next poll
		// emits the freshest record anyway
	}
}
