package bootstrap

import (
	"context"
	"testing"

	"nanoclaw-sidecar/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLookup_DefaultApplication(t *testing.T) {
	factory, err := Lookup(config.DefaultApplication)
	require.NoError(t, err)
	assert.NotNil(t, factory)
	assert.Contains(t, Applications(), config.DefaultApplication)
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("nope")
	assert.ErrorIs(t, err, ErrUnknownApplication)
}

func TestRegister_Panics(t *testing.T) {
	noop := func(context.Context, *config.Config, *zap.SugaredLogger) (Application, error) { return nil, nil }

	assert.Panics(t, func() { Register(config.DefaultApplication, noop) })
	assert.Panics(t, func() { Register("", noop) })
	assert.Panics(t, func() { Register("nil:factory", nil) })
}

func TestSidecar_WatchLifecycle(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Groups.Watch = true

	factory, err := Lookup(config.DefaultApplication)
	require.NoError(t, err)

	app, err := factory(context.Background(), cfg, zap.NewNop().Sugar())
	require.NoError(t, err)

	s, ok := app.(*sidecar)
	require.True(t, ok)
	require.NotNil(t, s.watcherDone)

	require.NoError(t, app.Close())
	_, open := <-s.watcherDone
	assert.False(t, open)
	require.NoError(t, app.Close())
}
