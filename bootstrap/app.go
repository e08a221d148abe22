package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"nanoclaw-sidecar/config"
	"nanoclaw-sidecar/lockfile"
	"nanoclaw-sidecar/metrics"
	"nanoclaw-sidecar/util/goroutine"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// State is the lifecycle position of an App.
type State int

const (
	StateNotStarted State = iota
	StateServing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateServing:
		return "serving"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// initLogger builds the logger when none is injected.
var initLogger = InitLogger

// defaultShutdownTimeout applies when server.shutdown_timeout is unset.
const defaultShutdownTimeout = 10 * time.Second

var (
	// ErrInvalidState is returned by Start when the app is not in StateNotStarted.
	ErrInvalidState = errors.New("invalid application state")
	// ErrBind is returned by Start when the listener cannot be opened.
	ErrBind = errors.New("failed to bind listener")
)

// App represents the sidecar process: one application served on one listener.
type App struct {
	// Configuration
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	// Application resolved from the registry
	Name        string
	Application Application
	LockDigest  string

	// Lifecycle
	mu           sync.Mutex
	state        State
	listener     net.Listener
	server       *http.Server
	serveErr     chan error
	shutdownOnce sync.Once
	ownsLogger   bool
}

// Option customises NewApp.
type Option func(*App)

// WithLogger makes the app log through logger instead of building one from cfg.Log.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) {
		a.Logger = logger
	}
}

// NewApp creates a new application instance and loads the configured
// application. Nothing is bound yet; a load failure leaves no socket behind.
func NewApp(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	app := &App{
		Config:   cfg,
		Name:     cfg.Server.App,
		serveErr: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(app)
	}

	if app.Logger == nil {
		logger, _, err := initLogger(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		app.Logger = logger
		app.ownsLogger = true
	}
	app.Sugar = app.Logger.Sugar()
	sugar := app.Sugar

	sugar.Info("nanoclaw-sidecar starting...")
	logConfig(cfg, viper.ConfigFileUsed(), sugar)

	app.LockDigest = lockDigest(cfg, sugar)

	factory, err := Lookup(app.Name)
	if err != nil {
		return nil, app.abort(fmt.Errorf("failed to load application: %w", err))
	}
	application, err := factory(ctx, cfg, sugar)
	if err != nil {
		return nil, app.abort(fmt.Errorf("failed to load application %q: %w", app.Name, err))
	}
	app.Application = application

	metrics.BuildInfo.WithLabelValues(app.Name, app.LockDigest).Set(1)
	sugar.Infow("Application loaded", "app", app.Name)

	return app, nil
}

// abort logs a startup failure and flushes a logger NewApp built itself.
func (a *App) abort(err error) error {
	a.Sugar.Errorw("Startup failed", "error", err)
	if a.ownsLogger {
		_ = a.Logger.Sync()
	}
	return err
}

// lockDigest returns the digest of the lock files shipped next to the
// binary, or "unknown" when they are absent or invalid.
func lockDigest(cfg *config.Config, sugar *zap.SugaredLogger) string {
	lock, err := lockfile.Load(cfg.Lock.ModFile, cfg.Lock.SumFile)
	if err != nil {
		sugar.Warnw("Lock files unavailable, build info will not carry a digest",
			"mod_file", cfg.Lock.ModFile,
			"sum_file", cfg.Lock.SumFile,
			"error", err)
		return "unknown"
	}
	digest, err := lock.Digest()
	if err != nil {
		sugar.Warnw("Failed to compute lock digest", "error", err)
		return "unknown"
	}
	sugar.Infow("Dependency lock", "module", lock.Module, "pins", len(lock.Pins), "digest", digest)
	return digest
}

// State returns the current lifecycle state.
func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Addr returns the bound address, or nil before a successful Start.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Start binds the configured address and begins serving in the background.
// A bind failure is returned as is; no other address is tried.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateNotStarted {
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidState, a.state)
	}

	addr := a.Config.ListenAddr()
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		a.state = StateStopped
		if cerr := a.Application.Close(); cerr != nil {
			a.Sugar.Warnw("Failed to close application", "error", cerr)
		}
		a.Sugar.Errorw("Failed to bind listener", "addr", addr, "error", err)
		return fmt.Errorf("%w on %s: %w\n%s", ErrBind, addr, err, ClassifyBindError(err, addr))
	}

	a.listener = ln
	a.server = &http.Server{
		Handler:           a.Application.Handler(),
		ReadHeaderTimeout: a.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       a.Config.Server.ReadTimeout,
		WriteTimeout:      a.Config.Server.WriteTimeout,
		IdleTimeout:       a.Config.Server.IdleTimeout,
		ErrorLog:          zap.NewStdLog(a.Logger.Named("http")),
	}
	a.state = StateServing

	go a.serve(a.server, ln)

	a.Sugar.Infow("Server listening",
		"app", a.Name,
		"addr", ln.Addr().String())
	return nil
}

// serve runs server on ln and reports how it ended on serveErr, which is
// closed afterwards. A panic counts as a serve error.
func (a *App) serve(server *http.Server, ln net.Listener) {
	defer close(a.serveErr)
	defer goroutine.RecoverWith("http-server", a.Sugar, func(r interface{}) {
		a.serveErr <- fmt.Errorf("server panicked: %v", r)
	})
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.serveErr <- err
	}
}

// WaitForShutdown blocks until a shutdown signal is received, ctx is done or
// the server stops on its own. Only the last case is an error.
func (a *App) WaitForShutdown(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		a.Sugar.Info("Shutdown signal received")
		return nil
	case err, ok := <-a.serveErr:
		if ok && err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}
}

// Shutdown gracefully stops the server and releases the application.
// It is safe to call more than once and on an app that never started.
func (a *App) Shutdown() error {
	var result error
	a.shutdownOnce.Do(func() {
		a.mu.Lock()
		server := a.server
		previous := a.state
		a.state = StateStopped
		a.mu.Unlock()

		a.Sugar.Info("Shutting down...")

		if server != nil {
			timeout := a.Config.Server.ShutdownTimeout
			if timeout <= 0 {
				timeout = defaultShutdownTimeout
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				a.Sugar.Errorw("Server shutdown incomplete", "error", err)
				result = errors.Join(result, fmt.Errorf("server shutdown: %w", err))
			}
		}

		// A failed Start already released the application.
		if a.Application != nil && previous != StateStopped {
			if err := a.Application.Close(); err != nil {
				result = errors.Join(result, fmt.Errorf("application close: %w", err))
			}
		}

		a.Sugar.Info("Shutdown complete")
		if a.ownsLogger {
			_ = a.Logger.Sync()
		}
	})
	return result
}

// Run loads the app, serves until a shutdown signal and shuts down.
func Run(ctx context.Context, cfg *config.Config, opts ...Option) error {
	app, err := NewApp(ctx, cfg, opts...)
	if err != nil {
		return err
	}

	if err := app.Start(ctx); err != nil {
		_ = app.Shutdown()
		return err
	}

	waitErr := app.WaitForShutdown(ctx)
	return errors.Join(waitErr, app.Shutdown())
}
