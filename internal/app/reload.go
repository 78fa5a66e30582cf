package app

import (
	"context"
	"strings"
	"time"

	"pingkeeper/internal/config"
	logx "pingkeeper/pkg/logx"
)

// Sections that only take effect after a restart.
var restartSections = map[string]bool{
	"telegram":  true,
	"http":      true,
	"keepalive": true,
	"storage":   true,
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			if newCfg == nil {
				continue
			}
			sections := config.ChangedSections(lastApplied, newCfg)
			lastApplied = newCfg
			a.applyConfig(ctx, newCfg, sections)
		}
	}
}

func (a *App) applyConfig(ctx context.Context, cfg *config.Config, sections []string) {
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	var pending []string
	for _, s := range sections {
		if restartSections[s] {
			pending = append(pending, s)
		}
	}
	if len(pending) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(pending, ",")))
	}

	a.logs.Apply(mapLogConfig(cfg))

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		prev := a.notif.Enabled()
		a.notif.Apply(ncfg)
		switch {
		case prev && !ncfg.Enabled:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
			a.sups.Delete("notifier")
		case !prev && ncfg.Enabled:
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
			a.sups.Set("notifier", a.notif.Supervisor())
		}
	}
	a.log.Info("config reloaded", logx.String("changed", strings.Join(sections, ",")))
}
