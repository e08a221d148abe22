// Package api nanoclaw sidecar API
//
//	@title			nanoclaw-sidecar
//	@version		1.0.0
//	@description	HTTP to IPC bridge for the nanoclaw WhatsApp bot. Accepted messages are written as IPC files into nanoclaw's shared data volume.
//
// @license.name	MIT
// @license.url	https://opensource.org/licenses/MIT
//
// @BasePath	/
package api

import (
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"nanoclaw-sidecar/config"
	_ "nanoclaw-sidecar/docs"
	"nanoclaw-sidecar/ipc"
	"nanoclaw-sidecar/util/goroutine"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// GroupResolver resolves group names to chat JIDs.
type GroupResolver interface {
	Lookup(name string) (string, bool)
	Len() int
}

// MessageWriter delivers IPC messages to nanoclaw.
type MessageWriter interface {
	Write(msg ipc.Message) (string, error)
	Ready() error
}

// rateLimiterEntry holds a rate limiter with last seen time
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// API is the sidecar HTTP application.
type API struct {
	router   *mux.Router
	config   *config.Config
	logger   *zap.SugaredLogger
	groups   GroupResolver
	writer   MessageWriter
	validate *validator.Validate

	rateLimiters   map[string]*rateLimiterEntry
	rateLimitersMu sync.Mutex
	stopCh         chan struct{}
	stopOnce       sync.Once
}

// NewAPI creates the application and starts its background limiter cleanup.
func NewAPI(cfg *config.Config, groups GroupResolver, writer MessageWriter, logger *zap.SugaredLogger) *API {
	validate := validator.New()
	validate.RegisterTagNameFunc(jsonFieldName)

	a := &API{
		router:       mux.NewRouter(),
		config:       cfg,
		logger:       logger,
		groups:       groups,
		writer:       writer,
		validate:     validate,
		rateLimiters: make(map[string]*rateLimiterEntry),
		stopCh:       make(chan struct{}),
	}
	a.setupRoutes()
	goroutine.Go("rate-limiter-cleanup", logger, a.cleanupRateLimiters)
	return a
}

// jsonFieldName reports validation errors under the JSON field name.
func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

// setupRoutes sets up the API routes
func (a *API) setupRoutes() {
	a.router.Use(a.recoveryMiddleware)
	a.router.Use(a.requestIDMiddleware)
	a.router.Use(a.rateLimitMiddleware)

	a.router.HandleFunc("/health", a.healthCheck).Methods(http.MethodGet)
	a.router.HandleFunc("/ready", a.readinessCheck).Methods(http.MethodGet)
	a.router.HandleFunc("/send", a.send).Methods(http.MethodPost)

	if a.config.Metrics.Enabled {
		a.router.Handle(a.config.Metrics.Path, promhttp.Handler()).Methods(http.MethodGet)
	}

	if a.config.API.DocsEnabled {
		a.router.Handle("/docs", http.RedirectHandler("/docs/index.html", http.StatusMovedPermanently))
		a.router.PathPrefix("/docs/").Handler(httpSwagger.WrapHandler)
	}

	// mux runs router middleware for matched routes only.
	a.router.NotFoundHandler = a.unmatched(func(w http.ResponseWriter, r *http.Request) {
		a.respondDetail(w, http.StatusNotFound, "Not Found")
	})
	a.router.MethodNotAllowedHandler = a.unmatched(func(w http.ResponseWriter, r *http.Request) {
		a.respondDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
}

// unmatched wraps h in the router middleware chain, in the same order.
func (a *API) unmatched(h http.HandlerFunc) http.Handler {
	return a.recoveryMiddleware(a.requestIDMiddleware(a.rateLimitMiddleware(h)))
}

// Handler returns the root handler served by the bootstrap.
func (a *API) Handler() http.Handler {
	return a.router
}

// Close stops background goroutines. It is safe to call more than once.
func (a *API) Close() error {
	a.stopOnce.Do(func() {
		close(a.stopCh)
	})
	return nil
}
