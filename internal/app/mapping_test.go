package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pingkeeper/internal/config"
)

func TestMapNotifierConfig(t *testing.T) {
	nc, err := mapNotifierConfig(&config.Config{})
	require.NoError(t, err)
	assert.True(t, nc.Enabled)

	nc, err = mapNotifierConfig(&config.Config{Notifier: &config.NotifierConfig{
		Enabled:       true,
		Workers:       3,
		RetryBase:     "250ms",
		RetryMaxDelay: "5s",
	}})
	require.NoError(t, err)
	assert.Equal(t, 3, nc.Workers)
	assert.Equal(t, 250*time.Millisecond, nc.RetryBase)
	assert.Equal(t, 5*time.Second, nc.RetryMaxDelay)

	_, err = mapNotifierConfig(&config.Config{Notifier: &config.NotifierConfig{Workers: -1}})
	assert.Error(t, err)
	_, err = mapNotifierConfig(&config.Config{Notifier: &config.NotifierConfig{RetryBase: "soon"}})
	assert.ErrorContains(t, err, "notifier.retry_base")
}

func TestMapStorageConfig(t *testing.T) {
	tests := []struct {
		name    string
		in      *config.StorageConfig
		enabled bool
		driver  string
		wantErr bool
	}{
		{name: "omitted"},
		{name: "none", in: &config.StorageConfig{Driver: "none"}},
		{name: "file", in: &config.StorageConfig{Driver: "file", Path: "data/pk"}, enabled: true, driver: "file"},
		{name: "sqlite alias", in: &config.StorageConfig{Driver: "SQLite3", Path: "pk.db"}, enabled: true, driver: "sqlite"},
		{name: "missing path", in: &config.StorageConfig{Driver: "sqlite"}, wantErr: true},
		{name: "bad busy timeout", in: &config.StorageConfig{Driver: "sqlite", Path: "pk.db", BusyTimeout: "x"}, wantErr: true},
		{name: "unknown driver", in: &config.StorageConfig{Driver: "redis", Path: "x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, enabled, err := mapStorageConfig(&config.Config{Storage: tt.in})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.enabled, enabled)
			assert.Equal(t, tt.driver, sc.Driver)
		})
	}
}

func TestMapLogConfig(t *testing.T) {
	lc := mapLogConfig(&config.Config{Logging: config.LoggingConfig{
		Level:   "debug",
		Console: true,
		File:    config.LoggingFile{Enabled: true, Path: "pk.log"},
	}})
	assert.Equal(t, "debug", lc.Level)
	assert.True(t, lc.Console)
	assert.True(t, lc.File.Enabled)
	assert.Equal(t, "pk.log", lc.File.Path)
}
