// Package app wires the bot together: config, logging, the Telegram
// adapter, the trigger scheduler, the notifier, the chore service and the
// command dispatcher. Nothing in here implements behavior of its own.
package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	telegram "chorebot/internal/adapters/telegram"
	"chorebot/internal/chores"
	"chorebot/internal/core"
	"chorebot/internal/eventbus"
	"chorebot/internal/services/notify"
	"chorebot/internal/services/scheduler"
	"chorebot/internal/storage"
	kit "chorebot/internal/transport"
	"chorebot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *core.ConfigManager
	sup  *core.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter

	sched *scheduler.Service
	notif *notify.Service
	tasks *chores.Service

	cmdm *core.CommandManager

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := core.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	token, err := cfg.Telegram.ResolveToken()
	if err != nil {
		return nil, err
	}
	pollTimeout, err := core.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// logx.New applies its config immediately. Bootstrap with Telegram
	// logging disabled, set the target, then Apply() the real config, so
	// the first Apply never warns about a missing target chat.
	baseLogCfg := mapLoggingConfig(cfg)
	baseLogCfg.Telegram.Enabled = false
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	if chatID, ok := parseGroupLog(cfg.Telegram.GroupLog); ok {
		logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(mapLoggingConfig(cfg))

	bus := eventbus.New()

	var store storage.Store
	sc := mapStorageConfig(cfg)
	if st, err := storage.Open(sc, log.With(logx.String("comp", "storage"))); err != nil {
		return nil, err
	} else if st != nil {
		store = st
		log.Info("audit storage enabled", logx.String("driver", sc.Driver))
	}

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	schedSvc := scheduler.New(schedCfg, log.With(logx.String("comp", "scheduler")))

	notifCfg, err := mapNotifyConfig(cfg)
	if err != nil {
		return nil, err
	}
	notifSvc := notify.New(notifCfg, ad, log.With(logx.String("comp", "notify")))

	choresCfg, err := mapChoresConfig(cfg)
	if err != nil {
		return nil, err
	}
	taskSvc := chores.NewService(choresCfg,
		chores.NewStore(), schedSvc, notifSvc, bus,
		log.With(logx.String("comp", "chores")))

	cmdm := core.NewCommandManager(log.With(logx.String("comp", "commands")), ad)
	cmdm.SetRegistry(chores.Commands(taskSvc))
	cmdm.SetTextHandler(chores.TextHandler(taskSvc))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		sched:   schedSvc,
		notif:   notifSvc,
		tasks:   taskSvc,
		cmdm:    cmdm,
		updates: make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = core.NewSupervisor(ctx, core.WithLogger(a.log), core.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *core.Config) error {
		if cfg.Scheduler.Workers < 0 {
			return fmt.Errorf("scheduler.workers must be >= 0")
		}
		if cfg.Scheduler.HistorySize < 0 {
			return fmt.Errorf("scheduler.history_size must be >= 0")
		}
		if _, err := mapSchedulerConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifyConfig(cfg); err != nil {
			return err
		}
		if _, err := mapChoresConfig(cfg); err != nil {
			return err
		}
		if _, err := core.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sched.Start(a.sup.Context())

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	// Audit trail: task lifecycle events and delivery failures, if a store
	// is configured. Slow/failed writes never push back on the publisher.
	if a.store != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("storage.audit", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					entry, ok := auditEntry(e)
					if !ok {
						continue
					}
					if err := a.store.AppendAudit(c, entry); err != nil {
						a.log.Warn("audit append failed", logx.Err(err))
					}
				}
			}
		})
	}

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(newCfg)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	// Announce the command menu. Best-effort; retried on the next start.
	if mu, ok := a.adapter.(kit.CommandMenuUpdater); ok {
		a.sup.Go0("telegram.menu", func(c context.Context) {
			mc, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := mu.UpdateMenuCommands(mc, a.cmdm.MenuCommands()); err != nil {
				a.log.Warn("menu commands update failed", logx.Err(err))
			}
		})
	}

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a validated reload into the live services. The
// validator already ran, so mapping errors here mean a race with a second
// edit; keep the previous settings in that case.
func (a *App) applyConfig(cfg *core.Config) {
	// log target first, so Apply never warns about a missing chat
	if chatID, ok := parseGroupLog(cfg.Telegram.GroupLog); ok {
		a.logs.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	} else {
		a.logs.SetTelegramTarget(0, 0)
	}
	a.logs.Apply(mapLoggingConfig(cfg))

	if sc, err := mapSchedulerConfig(cfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(sc)
	}

	if nc, err := mapNotifyConfig(cfg); err != nil {
		a.log.Warn("invalid notify config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(nc)
	}

	// Chore settings (min interval) and storage only apply to new tasks or
	// after a restart respectively; say so instead of silently ignoring.
	if _, err := mapChoresConfig(cfg); err == nil {
		a.log.Debug("chores config noted; min_interval applies on restart")
	}
	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context, reason core.StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// step bounds one component's shutdown so it can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem > 0 && rem < max {
					max = rem
				}
			}
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

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
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("notify", 1*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(_ context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

// auditEntry maps a bus event to an audit record. Unknown event types and
// foreign payloads are skipped.
func auditEntry(e eventbus.Event) (storage.AuditEntry, bool) {
	switch e.Type {
	case eventbus.TypeTaskCreated, eventbus.TypeTaskRemoved,
		eventbus.TypeTaskFired, eventbus.TypeNotifyFailed, eventbus.TypeChatReset:
	default:
		return storage.AuditEntry{}, false
	}
	ev, ok := e.Data.(chores.TaskEvent)
	if !ok {
		return storage.AuditEntry{}, false
	}
	return storage.AuditEntry{
		At:         e.Time,
		ChatID:     ev.ChatID,
		Action:     e.Type,
		Task:       ev.Name,
		Assignee:   ev.Assignee,
		Generation: ev.Generation,
		Error:      ev.Error,
	}, true
}

func parseGroupLog(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func mapLoggingConfig(cfg *core.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapSchedulerConfig(cfg *core.Config) (scheduler.Config, error) {
	defTimeout, err := core.ParseDurationField("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return scheduler.Config{}, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	return scheduler.Config{
		Workers:        cfg.Scheduler.Workers,
		DefaultTimeout: defTimeout,
		HistorySize:    cfg.Scheduler.HistorySize,
		Timezone:       cfg.Scheduler.Timezone,
	}, nil
}

func mapNotifyConfig(cfg *core.Config) (notify.Config, error) {
	base, err := core.ParseDurationField("notify.retry_base", cfg.Notify.RetryBase)
	if err != nil {
		return notify.Config{}, err
	}
	maxDelay, err := core.ParseDurationField("notify.retry_max_delay", cfg.Notify.RetryMaxDelay)
	if err != nil {
		return notify.Config{}, err
	}
	if cfg.Notify.RetryMax < 0 {
		return notify.Config{}, fmt.Errorf("notify.retry_max must be >= 0")
	}
	return notify.Config{
		RatePerSec:    cfg.Notify.RatePerSec,
		RetryMax:      cfg.Notify.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		HistorySize:   cfg.Notify.HistorySize,
	}, nil
}

func mapChoresConfig(cfg *core.Config) (chores.Config, error) {
	min, err := core.ParseDurationField("chores.min_interval", cfg.Chores.MinInterval)
	if err != nil {
		return chores.Config{}, err
	}
	return chores.Config{MinInterval: min}, nil
}

func mapStorageConfig(cfg *core.Config) storage.Config {
	return storage.Config{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
	}
}
