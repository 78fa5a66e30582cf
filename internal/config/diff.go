package config

import (
	"bytes"
	"encoding/json"
)

// ChangedSections names the top-level sections that differ between a and b.
// The telegram section is compared without the token so it can be logged.
func ChangedSections(a, b *Config) []string {
	if a == nil || b == nil {
		return nil
	}
	ta, tb := a.Telegram, b.Telegram
	tokenChanged := ta.Token != tb.Token
	ta.Token, tb.Token = "", ""

	pairs := []struct {
		name string
		x, y any
	}{
		{"telegram", ta, tb},
		{"http", a.HTTP, b.HTTP},
		{"keepalive", a.Keepalive, b.Keepalive},
		{"logging", a.Logging, b.Logging},
		{"notifier", a.Notifier, b.Notifier},
		{"storage", a.Storage, b.Storage},
	}
	var out []string
	for _, p := range pairs {
		if (p.name == "telegram" && tokenChanged) || !sameJSON(p.x, p.y) {
			out = append(out, p.name)
		}
	}
	return out
}

func sameJSON(x, y any) bool {
	bx, errx := json.Marshal(x)
	by, erry := json.Marshal(y)
	if errx != nil || erry != nil {
		return false
	}
	return bytes.Equal(bx, by)
}
