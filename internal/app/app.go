package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrSnakeDoc/hometab/internal/bootstrap"
	"github.com/MrSnakeDoc/hometab/internal/clock"
	"github.com/MrSnakeDoc/hometab/internal/cloud"
	"github.com/MrSnakeDoc/hometab/internal/config"
	"github.com/MrSnakeDoc/hometab/internal/connect"
	"github.com/MrSnakeDoc/hometab/internal/events"
	"github.com/MrSnakeDoc/hometab/internal/httpserver"
	"github.com/MrSnakeDoc/hometab/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hometab/internal/logger"
	"github.com/MrSnakeDoc/hometab/internal/scheduler"
	"github.com/MrSnakeDoc/hometab/internal/session"
	"github.com/MrSnakeDoc/hometab/internal/sources/homepage"
	"github.com/MrSnakeDoc/hometab/internal/store"
	"github.com/MrSnakeDoc/hometab/internal/utils"
	"github.com/MrSnakeDoc/hometab/internal/version"
)

type App struct {
	cfg           *config.Config
	logger        logger.Logger
	server        *httpserver.Server
	remote        store.RemoteStore
	local         *Local
	session       *session.Manager
	reloader      *scheduler.HomepageReloader
	reloadTrigger chan struct{}
}

// New connects the stores and wires the sync components. The remote store
// must be reachable; the process fails fast otherwise.
func New(ctx context.Context, cfg *config.Config, loggerClient logger.Logger) (*App, error) {
	lc, err := OpenLocal(cfg.LocalDB)
	if err != nil {
		return nil, err
	}
	ws := lc.Workspace(loggerClient)
	loggerClient.Info("local working set loaded",
		logger.String("path", cfg.LocalDB),
		logger.Int("records", ws.Count()))

	loggerClient.Info("connecting to remote store", logger.String("dsn", config.RedactDSN(cfg.RemoteDSN)))
	remote, err := store.Open(ctx, cfg.RemoteDSN, store.Tuning{
		DialTimeout:  cfg.RedisDT,
		ReadTimeout:  cfg.RedisRT,
		WriteTimeout: cfg.RedisWT,
		PoolSize:     cfg.RedisPoolSize,
		Retry: connect.Retry{
			Total:         cfg.RedisConnectTimeout,
			Initial:       cfg.RedisRetryInterval,
			MaxWait:       cfg.RedisMaxWait,
			PingTimeout:   cfg.RedisPingTimeout,
			WarnThreshold: cfg.RedisWarnThreshold,
		},
	}, loggerClient)
	if err != nil {
		utils.MustClose(lc, "local cache", loggerClient)
		return nil, fmt.Errorf("failed to open remote store: %w", err)
	}
	loggerClient.Info("remote store initialized successfully")

	bus := events.NewBus()

	loader, err := cloud.NewLoader(remote, bus, cfg.DeviceID, loggerClient)
	if err != nil {
		utils.MustClose(remote, "remote store", loggerClient)
		utils.MustClose(lc, "local cache", loggerClient)
		return nil, err
	}

	var retry scheduler.RetryPolicy = scheduler.NoRetry{}
	if cfg.SyncBackoff {
		retry = scheduler.ExponentialBackoff{
			Initial:     cfg.SyncBackoffInitial,
			Max:         cfg.SyncBackoffMax,
			MaxAttempts: cfg.SyncBackoffAttempts,
		}
	}
	autosync := scheduler.NewAutosync(scheduler.Config{
		Enabled:           cfg.AutoSyncEnabled,
		Interval:          time.Duration(cfg.AutoSyncInterval) * time.Second,
		DeleteDebounce:    cfg.DeleteDebounce,
		EditingRetryDelay: cfg.EditingRetryDelay,
		Retry:             retry,
		Origin:            cfg.DeviceID,
		Sink:              lc.Cache,
	}, ws, remote, clock.Real{}, loggerClient)

	mgr := session.New(session.Deps{
		Bus:         bus,
		Workspace:   ws,
		Loader:      loader,
		Coordinator: bootstrap.New(loader, ws, bus, loggerClient),
		Scheduler:   autosync,
		Feed:        remote,
		Logger:      loggerClient,
	})

	a := &App{
		cfg:     cfg,
		logger:  loggerClient,
		remote:  remote,
		local:   lc,
		session: mgr,
	}

	src := homepage.Source{ServicesPath: cfg.HomepageServices, BookmarksPath: cfg.HomepageBookmarks}
	var importer deps.HomepageImporter
	if len(src.Paths()) > 0 {
		loggerClient.Info("homepage import configured",
			logger.Strings("paths", src.Paths()),
			logger.Bool("watch", cfg.WatchHomepage))
		a.reloadTrigger = make(chan struct{}, 1)
		a.reloader = scheduler.NewHomepageReloader(src, ws, loggerClient, cfg.WatchHomepage, 0, a.reloadTrigger)
		importer = a.reloader
	} else {
		loggerClient.Info("homepage files not configured, import disabled")
	}

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:       loggerClient,
		StartTime:    time.Now(),
		Version:      version.Version,
		Commit:       version.Commit,
		BuildDate:    version.BuildDate,
		GoVersion:    version.GoVersion,
		TimeNow:      time.Now,
		AllowedHosts: cfg.AllowedHosts,
		AllowedCIDRS: cfg.AllowedCIDRS,
		TrustProxy:   cfg.TrustProxy,
		RateBurst:    cfg.RateBurst,
		RatePerMin:   cfg.RatePerMin,
		DeviceID:     cfg.DeviceID,
		Session:      mgr,
		Workspace:    ws,
		Bus:          bus,
		Remote:       remote,
		Homepage:     importer,
	}
	a.server = httpserver.New(cfg, loggerClient, d)

	return a, nil
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting hometab v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("%s device=%s", version.String(), a.cfg.DeviceID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.reloader != nil {
		if err := a.reloader.Start(ctx); err != nil {
			a.close()
			return fmt.Errorf("failed to start homepage reloader: %w", err)
		}
		a.logger.Info("homepage reloader started")
		go a.forwardHangups(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	if a.reloader != nil {
		a.reloader.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	a.close()
	if runErr == nil {
		a.logger.Info("✅ hometab stopped cleanly")
	}
	return runErr
}

// forwardHangups turns SIGHUP into a homepage re-import.
func (a *App) forwardHangups(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			select {
			case a.reloadTrigger <- struct{}{}:
			default:
			}
		}
	}
}

func (a *App) close() {
	// Pending pushes are dropped; the local cache keeps the working set.
	a.session.Stop()
	utils.MustClose(a.remote, "remote store", a.logger)
	utils.MustClose(a.local, "local cache", a.logger)
}
