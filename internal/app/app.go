// Package app assembles the bot: config, logging, transport, storage,
// the job runner and the command surface, and owns their lifecycle.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/SHW4T/CONVO-DOWNLO/internal/artifact"
	"github.com/SHW4T/CONVO-DOWNLO/internal/bot"
	"github.com/SHW4T/CONVO-DOWNLO/internal/broadcast"
	"github.com/SHW4T/CONVO-DOWNLO/internal/chat"
	"github.com/SHW4T/CONVO-DOWNLO/internal/config"
	"github.com/SHW4T/CONVO-DOWNLO/internal/job"
	"github.com/SHW4T/CONVO-DOWNLO/internal/media"
	"github.com/SHW4T/CONVO-DOWNLO/internal/progress"
	"github.com/SHW4T/CONVO-DOWNLO/internal/registry"
	"github.com/SHW4T/CONVO-DOWNLO/internal/router"
	kit "github.com/SHW4T/CONVO-DOWNLO/internal/transport"
	telegram "github.com/SHW4T/CONVO-DOWNLO/internal/transport/telegram"
	logx "github.com/SHW4T/CONVO-DOWNLO/pkg/logx"
)

// broadcastUpdateCap fits one progress edit per 10% block of targets.
const broadcastUpdateCap = 10

// handlerTimeout caps one command handler end to end. Individual
// external operations have their own, tighter timeout.
const handlerTimeout = 15 * time.Minute

type App struct {
	cfgm *config.Manager

	logs *logx.Service
	log  logx.Logger

	adapter *telegram.Adapter
	store   registry.Store
	work    *artifact.Store
	janitor *artifact.Janitor
	rt      *router.Router

	updates chan kit.Update

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	busyTimeout, err := config.ParseDurationOrDefault("registry.busy_timeout", cfg.Registry.BusyTimeout, 0)
	if err != nil {
		return nil, err
	}
	store, err := registry.Open(registry.Config{
		Driver:      cfg.Registry.Driver,
		UsersPath:   cfg.Registry.UsersPath,
		LinksPath:   cfg.Registry.LinksPath,
		Path:        cfg.Registry.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "registry")))
	if err != nil {
		return nil, err
	}

	work, err := artifact.NewStore(cfg.Jobs.WorkDir, log.With(logx.String("comp", "artifact")))
	if err != nil {
		return nil, err
	}

	var janitor *artifact.Janitor
	if cfg.Janitor != nil && cfg.Janitor.Enabled {
		maxAge, err := config.ParseDurationOrDefault("janitor.max_age", cfg.Janitor.MaxAge, 24*time.Hour)
		if err != nil {
			return nil, err
		}
		janitor = artifact.NewJanitor(work, maxAge, log.With(logx.String("comp", "janitor")))
	}

	minInterval, err := config.ParseDurationOrDefault("jobs.progress_min_interval", cfg.Jobs.ProgressMinInterval, time.Second)
	if err != nil {
		return nil, err
	}
	minEstimate, err := config.ParseDurationOrDefault("jobs.progress_min_estimate", cfg.Jobs.ProgressMinEstimate, 30*time.Second)
	if err != nil {
		return nil, err
	}
	opTimeout, err := config.ParseDurationOrDefault("jobs.op_timeout", cfg.Jobs.OpTimeout, 5*time.Minute)
	if err != nil {
		return nil, err
	}

	progressLog := log.With(logx.String("comp", "progress"))
	jobReporter := progress.NewReporter(adapter, progress.Config{MinInterval: minInterval}, progressLog)
	broadcastReporter := progress.NewReporter(adapter, progress.Config{
		MinInterval: minInterval,
		UpdateCap:   broadcastUpdateCap,
	}, progressLog)

	mediaLog := log.With(logx.String("comp", "media"))
	runner := job.NewRunner(
		work,
		jobReporter,
		adapter,
		media.NewFFmpeg(cfg.Media.FFmpegPath, cfg.Media.FFprobePath, mediaLog),
		media.NewYtDlp(cfg.Media.YtDlpPath, mediaLog),
		job.Config{OpTimeout: opTimeout, MinEstimate: minEstimate},
		log.With(logx.String("comp", "job")),
	)

	broadcaster := broadcast.NewCoordinator(adapter, broadcastReporter, broadcast.Config{
		RatePerSec: float64(cfg.Broadcast.RatePerSec),
		RetryMax:   cfg.Broadcast.RetryMax,
	}, log.With(logx.String("comp", "broadcast")))

	chatTimeout, err := config.ParseDurationOrDefault("chat.timeout", cfg.Chat.Timeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	chatClient := chat.New(chat.Config{
		Endpoint: cfg.Chat.Endpoint,
		Token:    cfg.Chat.Token,
		Timeout:  chatTimeout,
	}, log.With(logx.String("comp", "chat")))

	routerLog := log.With(logx.String("comp", "router"))
	rt := router.New(adapter, cfg.Telegram.AdminUserIDs, routerLog,
		router.MWPanicRecover(routerLog),
		router.MWRequestLog(routerLog),
		router.MWTimeout(handlerTimeout),
	)
	handlers := bot.NewHandlers(runner, broadcaster, chatClient, store, cfg.Telegram.TargetChannel,
		log.With(logx.String("comp", "bot")))
	handlers.Install(rt)

	return &App{
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log,
		adapter: adapter,
		store:   store,
		work:    work,
		janitor: janitor,
		rt:      rt,
		updates: make(chan kit.Update, 256),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	rctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.adapter.Start(rctx, a.updates); err != nil {
		cancel()
		return err
	}

	if a.janitor != nil {
		spec := "*/30 * * * *"
		if c := a.cfgm.Get(); c != nil && c.Janitor != nil && c.Janitor.Schedule != "" {
			spec = c.Janitor.Schedule
		}
		if err := a.janitor.Start(spec); err != nil {
			a.log.Warn("janitor not started", logx.Err(err))
		}
	}

	// Menu sync is cosmetic; a failure only costs the /menu list.
	if err := a.adapter.UpdateMenuCommands(rctx, a.rt.Commands()); err != nil {
		a.log.Warn("menu commands not updated", logx.Err(err))
	}

	a.wg.Add(2)
	go a.dispatchLoop(rctx)
	go a.watchConfig(rctx)

	a.log.Info("started")
	return nil
}

// dispatchLoop hands each update to the router on its own goroutine so a
// long transcode never blocks unrelated chats.
func (a *App) dispatchLoop(ctx context.Context) {
	defer a.wg.Done()
	var handlers sync.WaitGroup
	defer handlers.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case upd := <-a.updates:
			handlers.Add(1)
			go func() {
				defer handlers.Done()
				a.rt.Dispatch(ctx, upd)
			}()
		}
	}
}

// watchConfig applies hot-reloadable settings: log level/sinks and the
// admin allow-list. Everything else requires a restart.
func (a *App) watchConfig(ctx context.Context) {
	defer a.wg.Done()

	sub := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(sub)

	go func() {
		if err := a.cfgm.Watch(ctx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok || cfg == nil {
				return
			}
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.rt.SetAdmins(cfg.Telegram.AdminUserIDs)
			a.log.Info("runtime config applied")
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.janitor != nil {
		a.janitor.Stop()
	}
	err := a.adapter.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("shutdown cancelled before loops drained", logx.Err(ctx.Err()))
	}

	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	_ = a.logs.Close()
	return err
}
