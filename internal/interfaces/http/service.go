package httpinterface

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	log "github.com/sirupsen/logrus"

	"github.com/sealbid-network/sealbid-daemon/internal/core/application"
)

const shutdownTimeout = 5 * time.Second

// ServiceOpts groups the parameters of the operator HTTP interface.
type ServiceOpts struct {
	Port     int
	Operator application.OperatorService
	Hub      *EventHub
	// EnableProfiler mounts the pprof handlers under /debug.
	EnableProfiler bool
}

// Service is the HTTP interface of the daemon: the operator REST API, the
// live event stream and the prometheus metrics.
type Service struct {
	opts   ServiceOpts
	server *http.Server
}

// NewService returns the HTTP interface with the given options.
func NewService(opts ServiceOpts) *Service {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger)
	router.Use(requestMetrics)

	handler := &operatorHandler{operator: opts.Operator}
	router.Route("/v1", func(r chi.Router) {
		r.Get("/info", handler.getInfo)

		r.Route("/listings", func(r chi.Router) {
			r.Post("/", handler.createListing)
			r.Get("/", handler.listListings)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handler.getListing)
				r.Delete("/", handler.cancelListing)
				r.Post("/import", handler.importListing)
				r.Post("/bids", handler.placeBid)
				r.Get("/record", handler.getRecord)
			})
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/", handler.addWebhook)
			r.Get("/", handler.listWebhooks)
			r.Delete("/{id}", handler.removeWebhook)
		})

		if opts.Hub != nil {
			r.Get("/events", opts.Hub.ServeHTTP)
		}
	})
	router.Handle("/metrics", promhttp.Handler())
	if opts.EnableProfiler {
		router.Mount("/debug", middleware.Profiler())
	}

	return &Service{
		opts: opts,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", opts.Port),
			Handler: router,
		},
	}
}

// Start serves the interface until Stop is called.
func (s *Service) Start() error {
	log.Infof("operator interface listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains the in-flight requests and closes the event stream.
func (s *Service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.opts.Hub != nil {
		s.opts.Hub.Close()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("failed to gracefully stop the operator interface")
	}
}

var httpRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sealbid_http_requests_total",
		Help: "Number of operator API requests by method and status.",
	},
	[]string{"method", "status"},
)

func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		httpRequests.WithLabelValues(
			r.Method, strconv.Itoa(ww.Status()),
		).Inc()
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debugf(
			"%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start),
		)
	})
}
