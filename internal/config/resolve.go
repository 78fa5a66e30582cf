package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultInterval     = 10 * time.Second
	DefaultProbeTimeout = 8 * time.Second
	DefaultListen       = ":3000"
	DefaultMaxInFlight  = 512
)

var (
	ErrMissingToken     = errors.New("telegram.token is required (or set BOT_TOKEN)")
	ErrMissingPublicURL = errors.New("telegram.public_url is required in webhook mode (or set WEBHOOK_URL)")
)

// Settings is the validated, typed view of Config used at wiring time.
type Settings struct {
	Token       string
	PublicURL   string
	Mode        string
	WebhookPath string
	SecretToken string
	PollTimeout time.Duration

	Listen     string
	PprofToken string

	Interval     time.Duration
	ProbeTimeout time.Duration
	UserAgent    string
	MaxInFlight  int
}

// WebhookURL is the full URL registered with Telegram.
func (s Settings) WebhookURL() string {
	return s.PublicURL + "/webhook/" + s.WebhookPath
}

// Resolve validates cfg and fills defaults. The process must refuse to
// start when this fails.
func Resolve(cfg *Config) (Settings, error) {
	if cfg == nil {
		return Settings{}, errors.New("config is nil")
	}
	t := cfg.Telegram
	s := Settings{
		Token:       strings.TrimSpace(t.Token),
		PublicURL:   strings.TrimRight(strings.TrimSpace(t.PublicURL), "/"),
		Mode:        strings.ToLower(strings.TrimSpace(t.Mode)),
		WebhookPath: strings.Trim(strings.TrimSpace(t.WebhookPath), "/"),
		SecretToken: strings.TrimSpace(t.SecretToken),
		Listen:      strings.TrimSpace(cfg.HTTP.Listen),
		PprofToken:  strings.TrimSpace(cfg.HTTP.PprofToken),
		UserAgent:   strings.TrimSpace(cfg.Keepalive.UserAgent),
		MaxInFlight: cfg.Keepalive.MaxInFlight,
	}
	if s.Token == "" {
		return Settings{}, ErrMissingToken
	}
	switch s.Mode {
	case "":
		s.Mode = "webhook"
	case "webhook", "polling":
	default:
		return Settings{}, fmt.Errorf("telegram.mode: unknown mode %q (want webhook|polling)", t.Mode)
	}
	if s.Mode == "webhook" {
		if s.PublicURL == "" {
			return Settings{}, ErrMissingPublicURL
		}
		u, err := url.Parse(s.PublicURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Settings{}, fmt.Errorf("telegram.public_url: invalid url %q", s.PublicURL)
		}
	}
	if s.WebhookPath == "" {
		sum := sha256.Sum256([]byte(s.Token))
		s.WebhookPath = hex.EncodeToString(sum[:16])
	}
	if s.Listen == "" {
		s.Listen = DefaultListen
	}
	if s.MaxInFlight < 0 {
		return Settings{}, fmt.Errorf("keepalive.max_inflight must be >= 0")
	}
	if s.MaxInFlight == 0 {
		s.MaxInFlight = DefaultMaxInFlight
	}

	var err error
	if s.PollTimeout, err = ParseDurationOrDefault("telegram.poll_timeout", t.PollTimeout, 10*time.Second); err != nil {
		return Settings{}, err
	}
	if s.Interval, err = ParseDurationOrDefault("keepalive.interval", cfg.Keepalive.Interval, DefaultInterval); err != nil {
		return Settings{}, err
	}
	if s.Interval%time.Second != 0 {
		return Settings{}, fmt.Errorf("keepalive.interval (%s) must be a whole number of seconds", s.Interval)
	}
	if s.ProbeTimeout, err = ParseDurationOrDefault("keepalive.probe_timeout", cfg.Keepalive.ProbeTimeout, DefaultProbeTimeout); err != nil {
		return Settings{}, err
	}
	if s.ProbeTimeout >= s.Interval {
		return Settings{}, fmt.Errorf("keepalive.probe_timeout (%s) must be less than keepalive.interval (%s)", s.ProbeTimeout, s.Interval)
	}
	return s, nil
}
