package app

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"orderbot/internal/broadcast"
	"orderbot/internal/classifier"
	"orderbot/internal/config"
	"orderbot/internal/dispatch"
	"orderbot/internal/eventbus"
	"orderbot/internal/health"
	rtsup "orderbot/internal/runtime/supervisor"
	"orderbot/internal/sheets"
	"orderbot/internal/storage"
	"orderbot/internal/task/scheduler"
	kit "orderbot/internal/transport"
	telegram "orderbot/internal/transport/telegram/adapter"
	logx "orderbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	registry   storage.Store
	adapter    kit.Adapter
	classifier *classifier.Client
	sheets     *sheets.Client
	job        *broadcast.Job
	sched      *scheduler.Service
	health     *health.Server
	dispatcher *dispatch.Dispatcher
	metrics    *metrics

	workers int
	updates chan kit.Update
}

type options struct {
	adapter kit.Adapter
	lookup  func(string) (string, bool)
}

type Option func(*options)

// WithAdapter replaces the Telegram adapter (tests).
func WithAdapter(ad kit.Adapter) Option { return func(o *options) { o.adapter = ad } }

// WithEnv replaces the environment lookup (tests).
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(o *options) { o.lookup = lookup }
}

// New loads the config at cfgPath (may be empty for env-only) and wires every component.
func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewManager(cfgPath)
	if o.lookup != nil {
		cfgm.SetLookup(o.lookup)
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(cfg.Logging.Logx())
	comp := func(name string) logx.Logger { return log.With(logx.String("comp", name)) }

	ad := o.adapter
	if ad == nil {
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		tg, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout, SendRate: cfg.Telegram.SendRate}, comp("telegram"))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		ad = tg
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	registry, err := storage.Open(sc, comp("registry"))
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	log.Info("registry opened", logx.String("driver", sc.Driver))

	cc, err := mapClassifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	shc, err := mapSheetsConfig(cfg)
	if err != nil {
		return nil, err
	}
	bc, err := mapBroadcastConfig(cfg)
	if err != nil {
		return nil, err
	}
	schc, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	cls := classifier.New(cc, comp("classifier"))
	store := sheets.New(shc, comp("sheets"))
	job := broadcast.New(bc, store, registry, ad, bus, comp("broadcast"))
	sched := scheduler.New(schc, comp("scheduler"))

	d := dispatch.New(dispatch.Config{Owners: cfg.Telegram.OwnerUserIDs}, dispatch.Deps{
		Classifier:  cls,
		Store:       store,
		Registry:    registry,
		Broadcaster: job,
		Sender:      ad,
		Bus:         bus,
		Logger:      comp("dispatch"),
	})

	m := newMetrics(registry)
	token := cfg.Telegram.Token
	hs := health.New(mapHealthConfig(cfg), health.Sources{
		StoreConfigured:      store.Configured,
		ClassifierConfigured: cls.Configured,
		TokenConfigured:      func() bool { return token != "" },
		Users:                registry.Count,
		LastBroadcast:        job.LastReport,
		Schedules:            sched.Snapshot,
	}, m.reg, comp("health"))

	if !store.Configured() {
		log.Warn("GOOGLE_SCRIPT_URL not set; submissions will fail")
	}
	if !cls.Configured() {
		log.Warn("OPENAI_API_KEY not set; every message gets the fallback classification")
	}

	return &App{
		cfgm:       cfgm,
		log:        log.With(logx.String("comp", "app")),
		logs:       logSvc,
		bus:        bus,
		registry:   registry,
		adapter:    ad,
		classifier: cls,
		sheets:     store,
		job:        job,
		sched:      sched,
		health:     hs,
		dispatcher: d,
		metrics:    m,
		workers:    cfg.Workers,
		updates:    make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Health exposes the HTTP server (tests read its bound address).
func (a *App) Health() *health.Server { return a.health }

// Broadcast runs one broadcast cycle outside the schedule.
func (a *App) Broadcast(ctx context.Context) broadcast.Report { return a.job.Run(ctx, "manual") }

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	c := a.sup.Context()
	cfg := a.cfgm.Get()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(config.RejectRestartOnly(a.cfgm.Get))

	events, unsub := a.bus.Subscribe(256)
	a.sup.Go0("eventbus.metrics", func(ctx context.Context) {
		defer unsub()
		a.metrics.consume(ctx, events, a.log)
	})

	for i := 0; i < a.workers; i++ {
		a.sup.Go0(fmt.Sprintf("updates.worker.%d", i), a.worker)
	}

	if err := a.adapter.Start(c, a.updates); err != nil {
		return fmt.Errorf("start adapter: %w", err)
	}
	if mu, ok := a.adapter.(kit.CommandMenuUpdater); ok {
		a.sup.Go0("telegram.menu", func(ctx context.Context) {
			mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := mu.UpdateMenuCommands(mctx, a.dispatcher.MenuCommands()); err != nil {
				a.log.Warn("update command menu failed", logx.Err(err))
			}
		})
	}

	if err := a.registerBroadcasts(cfg.Broadcast); err != nil {
		return err
	}
	a.sched.Start(c)

	if cfg.Health.IsEnabled() {
		a.health.Start(c)
	}

	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sup.Go0("systemd.watchdog", func(ctx context.Context) { watchdog(ctx, a.log) })
	sdNotify(a.log, daemon.SdNotifyReady)

	a.log.Info("app started",
		logx.Int("workers", a.workers),
		logx.Int("owners", len(cfg.Telegram.OwnerUserIDs)),
		logx.String("tz", cfg.Broadcast.Timezone),
	)
	return nil
}

func (a *App) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case up := <-a.updates:
			a.handle(ctx, up)
		}
	}
}

func (a *App) handle(ctx context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("message handler panic",
				logx.Int64("chat_id", up.Message.ChatID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
		a.metrics.observeUpdate(time.Since(start))
	}()
	a.dispatcher.Handle(ctx, up.Message)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping)

	a.sup.Cancel()

	// step bounds one shutdown stage so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
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
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("health", 2*time.Second, func(c context.Context) error { a.health.Stop(c); return nil })
	step("supervisor", 3*time.Second, a.sup.Wait)
	step("registry", time.Second, func(context.Context) error { return a.registry.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
