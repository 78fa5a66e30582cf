package config

// Config is the on-disk configuration (JSON, YAML or TOML).
//
// All durations are Go duration strings ("500ms", "10s", "1m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	HTTP      HTTPConfig      `json:"http"`
	Keepalive KeepaliveConfig `json:"keepalive"`
	Logging   LoggingConfig   `json:"logging"`

	// Notifier defaults to enabled when omitted.
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
}

type TelegramConfig struct {
	// Token may be supplied via BOT_TOKEN instead. Never logged.
	Token string `json:"token"`
	// PublicURL is the externally reachable base URL (no trailing slash),
	// e.g. "https://my-app.onrender.com". May be supplied via WEBHOOK_URL.
	PublicURL string `json:"public_url"`
	// Mode is "webhook" (default) or "polling".
	Mode string `json:"mode,omitempty"`
	// WebhookPath is the secret path segment under /webhook/.
	// Defaults to a hash of the token.
	WebhookPath string `json:"webhook_path,omitempty"`
	SecretToken string `json:"secret_token,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type HTTPConfig struct {
	// Listen defaults to ":3000" (or ":$PORT").
	Listen string `json:"listen,omitempty"`
	// PprofToken mounts /debug/pprof/ guarded by this bearer token.
	// Empty disables profiling routes.
	PprofToken string `json:"pprof_token,omitempty"`
}

// KeepaliveConfig tunes the probe schedule.
//
// Defaults: interval 10s, probe_timeout 8s, max_inflight 512.
// probe_timeout must stay below interval so probes never pile up.
type KeepaliveConfig struct {
	Interval     string `json:"interval,omitempty"`
	ProbeTimeout string `json:"probe_timeout,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
	MaxInFlight  int    `json:"max_inflight,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// NotifierConfig controls the async outbound message pipeline.
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
}

// StorageConfig controls the optional audit store.
//
//	"storage": { "driver": "sqlite", "path": "./data/pingkeeper.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}
