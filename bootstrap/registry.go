package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"nanoclaw-sidecar/api"
	"nanoclaw-sidecar/config"
	"nanoclaw-sidecar/groups"
	"nanoclaw-sidecar/ipc"
	"nanoclaw-sidecar/metrics"

	"go.uber.org/zap"
)

// ErrUnknownApplication is returned when server.app names no registered application.
var ErrUnknownApplication = errors.New("unknown application")

// Application is a servable unit: one HTTP handler plus the resources behind it.
type Application interface {
	Handler() http.Handler
	Close() error
}

// Factory constructs an application. Any error is an application load
// failure and aborts startup before a socket is opened.
type Factory func(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (Application, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes an application available under name.
// It panics if name is empty, factory is nil or name is already registered.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if name == "" {
		panic("bootstrap: Register with empty application name")
	}
	if factory == nil {
		panic("bootstrap: Register factory is nil for " + name)
	}
	if _, dup := registry[name]; dup {
		panic("bootstrap: Register called twice for application " + name)
	}
	registry[name] = factory
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %v)", ErrUnknownApplication, name, applicationNames())
	}
	return factory, nil
}

// Applications returns the registered names, sorted.
func Applications() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return applicationNames()
}

func applicationNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(config.DefaultApplication, newSidecar)
}

// sidecar is the main:app application: the HTTP API plus the optional
// groups watcher.
type sidecar struct {
	*api.API
	stopWatch   context.CancelFunc
	watcherDone <-chan struct{}
}

func newSidecar(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (Application, error) {
	dir, err := groups.Load(cfg.GroupsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load groups config: %w", err)
	}
	metrics.GroupsLoaded.Set(float64(dir.Len()))
	if dir.Len() == 0 {
		sugar.Warnw("No groups configured, every send will be rejected",
			"groups_config", cfg.GroupsConfig)
	} else {
		sugar.Infow("Groups loaded",
			"groups_config", cfg.GroupsConfig,
			"groups", dir.Names())
	}
	if cfg.DefaultGroup != "" {
		if _, ok := dir.Lookup(cfg.DefaultGroup); !ok {
			sugar.Warnw("Default group is not in groups config",
				"default_group", cfg.DefaultGroup)
		}
	}

	writer := ipc.NewWriter(cfg.MessagesDir())
	CheckMessagesDir(writer, sugar)

	app := &sidecar{}
	if cfg.Groups.Watch {
		// The watcher lives as long as the application, not the startup context.
		watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		done, err := dir.Watch(watchCtx, sugar)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to watch groups config: %w", err)
		}
		app.stopWatch = cancel
		app.watcherDone = done
		sugar.Infow("Watching groups config for changes", "path", dir.Path())
	}

	app.API = api.NewAPI(cfg, dir, writer, sugar)
	return app, nil
}

// Close stops the watcher and the API's background work.
func (s *sidecar) Close() error {
	if s.stopWatch != nil {
		s.stopWatch()
		<-s.watcherDone
	}
	return s.API.Close()
}
