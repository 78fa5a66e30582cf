package app

import (
	"context"
	"fmt"
	"time"

	"pingkeeper/internal/config"
	"pingkeeper/internal/dispatch"
	"pingkeeper/internal/eventbus"
	"pingkeeper/internal/keepalive"
	"pingkeeper/internal/notifier"
	rtsup "pingkeeper/internal/runtime/supervisor"
	"pingkeeper/internal/server"
	"pingkeeper/internal/storage"
	kit "pingkeeper/internal/transport"
	telegram "pingkeeper/internal/transport/telegram/adapter"
	logx "pingkeeper/pkg/logx"
	"pingkeeper/pkg/systemd"
)

type App struct {
	cfgm     *config.Manager
	settings config.Settings
	sup      *rtsup.Supervisor
	sups     *rtsup.Registry

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter
	notif   *notifier.Service
	owners  *notifier.OwnerNotifier
	sched   *keepalive.CronScheduler
	reg     *keepalive.Registry
	disp    *dispatch.Dispatcher
	http    *server.Server

	updates chan kit.Update
	started time.Time
}

// New loads the config at cfgPath and wires every component. It fails when
// the token (or the public URL in webhook mode) is missing.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	settings, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	if err := validateReload(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	appLog := log.With(logx.String("comp", "app"))
	bus := eventbus.New()
	sups := rtsup.NewRegistry()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		appLog.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	tcfg := telegram.Config{
		Token:       settings.Token,
		Mode:        telegram.Mode(settings.Mode),
		PollTimeout: settings.PollTimeout,
		SecretToken: settings.SecretToken,
	}
	if tcfg.Mode == telegram.ModeWebhook {
		tcfg.WebhookURL = settings.WebhookURL()
	}
	ad, err := telegram.New(tcfg, log.With(logx.String("comp", "telegram")))
	if err != nil {
		closeStore(store)
		return nil, err
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		closeStore(store)
		return nil, err
	}
	notifSvc := notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")), bus)
	owners := notifier.NewOwnerNotifier(notifSvc, log.With(logx.String("comp", "notifier")))
	owners.SetFallback(ad)

	sched := keepalive.NewCronScheduler(log.With(logx.String("comp", "cron")))
	reg := keepalive.NewRegistry(keepalive.Config{
		Interval:     settings.Interval,
		ProbeTimeout: settings.ProbeTimeout,
		MaxInFlight:  settings.MaxInFlight,
	},
		sched,
		keepalive.NewHTTPProber(settings.ProbeTimeout, settings.UserAgent),
		owners,
		keepalive.WithBus(bus),
		keepalive.WithLogger(log),
	)

	dopts := []dispatch.Option{
		dispatch.WithLogger(log),
		dispatch.WithSupervisors(sups),
	}
	if store != nil {
		dopts = append(dopts, dispatch.WithAuditor(store))
	}
	disp := dispatch.New(dispatch.Config{}, reg, ad, dopts...)

	a := &App{
		cfgm:     cfgm,
		settings: settings,
		sups:     sups,
		log:      appLog,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		notif:    notifSvc,
		owners:   owners,
		sched:    sched,
		reg:      reg,
		disp:     disp,
		updates:  make(chan kit.Update, 256),
	}

	sopts := []server.Option{
		server.WithHealth(a.health),
		server.WithBus(bus),
		server.WithLogger(log),
	}
	scfg := server.Config{Listen: settings.Listen, PprofToken: settings.PprofToken}
	if tcfg.Mode == telegram.ModeWebhook {
		scfg.WebhookPath = settings.WebhookPath
		sopts = append(sopts, server.WithWebhook(ad, func(ctx context.Context) (string, error) {
			if err := ad.RegisterWebhook(ctx); err != nil {
				return "", err
			}
			return ad.WebhookEndpoint(), nil
		}))
	}
	a.http = server.New(scfg, sopts...)
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.started = time.Now()
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.sups.Set("app", a.sup)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateReload(cfg)
	})

	// Telegram may deliver as soon as the webhook is registered.
	if err := a.http.Start(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sups.Set("telegram.adapter", a.adapter.Supervisor())

	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
		a.sups.Set("notifier", a.notif.Supervisor())
	}
	a.sched.Start()

	a.sup.Go("dispatch", func(c context.Context) error {
		return a.disp.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("menu.update", func(c context.Context) {
		if err := a.disp.UpdateMenu(c, a.adapter); err != nil {
			a.log.Warn("menu update failed", logx.Err(err))
		}
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				// probes fire every few seconds per user
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	}, rtsup.WithRestartBackoff(time.Second, 30*time.Second))

	if ok, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd notified ready")
	}
	a.log.Info("app started",
		logx.String("mode", a.settings.Mode),
		logx.String("listen", a.http.Addr()),
		logx.Duration("interval", a.settings.Interval),
	)
	return nil
}

func (a *App) health() server.Health {
	return server.Health{
		Status:      "ok",
		Mode:        a.settings.Mode,
		Tasks:       a.reg.Len(),
		Uptime:      keepalive.HumanDuration(time.Since(a.started)),
		Supervisors: a.sups.Snapshot(),
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := systemd.Stopping(); err != nil {
		a.log.Debug("systemd notify failed", logx.Err(err))
	}

	// No new updates first, then no new probes.
	step := a.stepper(ctx)
	step("http", 3*time.Second, a.http.Stop)
	step("registry", 3*time.Second, a.reg.Close)
	step("cron", 2*time.Second, a.sched.Stop)

	a.sup.Cancel()

	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return a.owners.Wait(c) })
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("storage", 1*time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("supervisor", 3*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// stepper bounds each shutdown step so one component can't stall the whole stop.
func (a *App) stepper(ctx context.Context) func(name string, max time.Duration, fn func(context.Context) error) {
	return func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		// respect the caller's deadline; never extend it
		if dl, ok := ctx.Deadline(); ok {
			max = min(max, time.Until(dl))
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				if err := <-done; err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
				}
			}()
		}
	}
}

func closeStore(s storage.Store) {
	if s != nil {
		_ = s.Close()
	}
}
