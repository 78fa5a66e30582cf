package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(kv map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := kv[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadFromEnvOnly(t *testing.T) {
	m := NewManager("")
	m.SetEnv(env(map[string]string{
		EnvToken:     "123:abc",
		EnvPublicURL: "https://keep.example.com/",
		EnvPort:      "8080",
	}))

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Same(t, cfg, m.Get())

	s, err := Resolve(cfg)
	require.NoError(t, err)
	assert.Equal(t, "123:abc", s.Token)
	assert.Equal(t, "https://keep.example.com", s.PublicURL)
	assert.Equal(t, "webhook", s.Mode)
	assert.Equal(t, ":8080", s.Listen)
	assert.Equal(t, DefaultInterval, s.Interval)
	assert.Equal(t, DefaultProbeTimeout, s.ProbeTimeout)
	assert.Equal(t, DefaultMaxInFlight, s.MaxInFlight)
	assert.Len(t, s.WebhookPath, 32)
	assert.Equal(t, "https://keep.example.com/webhook/"+s.WebhookPath, s.WebhookURL())
}

func TestLoadRefusesWithoutToken(t *testing.T) {
	m := NewManager("")
	m.SetEnv(env(map[string]string{EnvPublicURL: "https://keep.example.com"}))
	_, err := m.Load()
	assert.ErrorIs(t, err, ErrMissingToken)
	assert.Nil(t, m.Get())
}

func TestLoadRefusesWithoutPublicURLInWebhookMode(t *testing.T) {
	m := NewManager("")
	m.SetEnv(env(map[string]string{EnvToken: "123:abc"}))
	_, err := m.Load()
	assert.ErrorIs(t, err, ErrMissingPublicURL)
}

func TestPollingModeNeedsNoPublicURL(t *testing.T) {
	p := writeFile(t, "config.yaml", `
telegram:
  token: "123:abc"
  mode: polling
logging:
  level: debug
`)
	m := NewManager(p)
	m.SetEnv(env(nil))
	cfg, err := m.Load()
	require.NoError(t, err)
	s, err := Resolve(cfg)
	require.NoError(t, err)
	assert.Equal(t, "polling", s.Mode)
	assert.Equal(t, DefaultListen, s.Listen)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvOverridesFile(t *testing.T) {
	p := writeFile(t, "config.json", `{
  "telegram": {"token": "file-token", "public_url": "https://file.example.com"},
  "http": {"listen": "127.0.0.1:9000"}
}`)
	m := NewManager(p)
	m.SetEnv(env(map[string]string{EnvToken: "env-token", EnvPort: "8080"}))
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, "https://file.example.com", cfg.Telegram.PublicURL)
	// explicit listen wins over PORT
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Listen)
}

func TestTOMLConfig(t *testing.T) {
	p := writeFile(t, "config.toml", `
[telegram]
token = "123:abc"
public_url = "https://keep.example.com"

[keepalive]
interval = "30s"
probe_timeout = "5s"
max_inflight = 64
`)
	m := NewManager(p)
	m.SetEnv(env(nil))
	cfg, err := m.Load()
	require.NoError(t, err)
	s, err := Resolve(cfg)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, s.Interval)
	assert.Equal(t, 5*time.Second, s.ProbeTimeout)
	assert.Equal(t, 64, s.MaxInFlight)
}

func TestUnknownFieldRejected(t *testing.T) {
	p := writeFile(t, "config.json", `{"telegram": {"token": "x"}, "bogus": 1}`)
	m := NewManager(p)
	m.SetEnv(env(nil))
	_, err := m.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestTrailingDataRejected(t *testing.T) {
	p := writeFile(t, "config.json", `{"telegram": {"token": "x"}} {}`)
	m := NewManager(p)
	m.SetEnv(env(nil))
	_, err := m.Parse()
	assert.Error(t, err)
}

func TestResolveValidation(t *testing.T) {
	base := func() *Config {
		return &Config{Telegram: TelegramConfig{Token: "t", PublicURL: "https://x.test"}}
	}

	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad mode", func(c *Config) { c.Telegram.Mode = "carrier-pigeon" }},
		{"bad public url", func(c *Config) { c.Telegram.PublicURL = "ftp://x.test" }},
		{"bad interval", func(c *Config) { c.Keepalive.Interval = "soon" }},
		{"timeout not below interval", func(c *Config) {
			c.Keepalive.Interval = "5s"
			c.Keepalive.ProbeTimeout = "5s"
		}},
		{"fractional interval", func(c *Config) {
			c.Keepalive.Interval = "1500ms"
			c.Keepalive.ProbeTimeout = "1s"
		}},
		{"sub-second interval", func(c *Config) {
			c.Keepalive.Interval = "500ms"
			c.Keepalive.ProbeTimeout = "100ms"
		}},
		{"negative inflight", func(c *Config) { c.Keepalive.MaxInFlight = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(c)
			_, err := Resolve(c)
			assert.Error(t, err)
		})
	}

	_, err := Resolve(base())
	assert.NoError(t, err)

	c := base()
	c.Keepalive.Interval = "2m"
	s, err := Resolve(c)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, s.Interval)
}

func TestReloadPublishesOnlyOnChange(t *testing.T) {
	p := writeFile(t, "config.json", `{"telegram": {"token": "t", "mode": "polling"}, "logging": {"level": "info"}}`)
	m := NewManager(p)
	m.SetEnv(env(nil))
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	require.NoError(t, m.Reload(context.Background()))
	select {
	case <-ch:
		t.Fatal("unchanged config must not be published")
	default:
	}

	require.NoError(t, os.WriteFile(p, []byte(`{"telegram": {"token": "t", "mode": "polling"}, "logging": {"level": "debug"}}`), 0o600))
	require.NoError(t, m.Reload(context.Background()))
	select {
	case cfg := <-ch:
		assert.Equal(t, "debug", cfg.Logging.Level)
	default:
		t.Fatal("expected published config")
	}
	assert.Equal(t, "debug", m.Get().Logging.Level)
}

func TestReloadRejectedByValidator(t *testing.T) {
	p := writeFile(t, "config.json", `{"telegram": {"token": "t", "mode": "polling"}}`)
	m := NewManager(p)
	m.SetEnv(env(nil))
	first, err := m.Load()
	require.NoError(t, err)

	m.SetValidator(func(context.Context, *Config) error { return assert.AnError })
	require.NoError(t, os.WriteFile(p, []byte(`{"telegram": {"token": "t2", "mode": "polling"}}`), 0o600))
	assert.ErrorIs(t, m.Reload(context.Background()), assert.AnError)
	assert.Same(t, first, m.Get())
}

func TestChangedSections(t *testing.T) {
	a := &Config{Telegram: TelegramConfig{Token: "a"}, Logging: LoggingConfig{Level: "info"}}
	b := &Config{Telegram: TelegramConfig{Token: "a"}, Logging: LoggingConfig{Level: "debug"}}
	assert.Equal(t, []string{"logging"}, ChangedSections(a, b))

	b.Telegram.Token = "b"
	b.Notifier = &NotifierConfig{Enabled: true}
	assert.Equal(t, []string{"telegram", "logging", "notifier"}, ChangedSections(a, b))
	assert.Empty(t, ChangedSections(a, a))
}
