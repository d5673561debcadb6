package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routeprofile/routeprofile/internal/app"
	"github.com/routeprofile/routeprofile/internal/config"
	"github.com/routeprofile/routeprofile/internal/routing/here"
)

func TestNew_MemoryStore(t *testing.T) {
	cfg := &config.Config{
		HERE:            config.HEREConfig{APIKey: "key", Timeout: time.Second},
		StoreBackend:    config.StoreMemory,
		RoutingCacheTTL: time.Minute,
	}

	a, err := app.New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "memory", a.StoreName)
	assert.Nil(t, a.StoreCheck)
	require.NotNil(t, a.Reports)
	assert.Equal(t, here.ProviderName, a.Routing.Name())
	assert.Equal(t, []string{here.ProviderName}, a.Registry.Names())

	_, err = a.Reports.Get(context.Background(), "missing")
	assert.Error(t, err)
}
