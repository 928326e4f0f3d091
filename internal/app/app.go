package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/powerdeck/internal/config"
	"github.com/MrSnakeDoc/powerdeck/internal/dispatch"
	"github.com/MrSnakeDoc/powerdeck/internal/domain"
	"github.com/MrSnakeDoc/powerdeck/internal/egress"
	"github.com/MrSnakeDoc/powerdeck/internal/history"
	"github.com/MrSnakeDoc/powerdeck/internal/httpserver"
	"github.com/MrSnakeDoc/powerdeck/internal/httpserver/deps"
	"github.com/MrSnakeDoc/powerdeck/internal/logger"
	"github.com/MrSnakeDoc/powerdeck/internal/metrics"
	"github.com/MrSnakeDoc/powerdeck/internal/orchestrator"
	"github.com/MrSnakeDoc/powerdeck/internal/presence"
	"github.com/MrSnakeDoc/powerdeck/internal/probe"
	"github.com/MrSnakeDoc/powerdeck/internal/progress"
	"github.com/MrSnakeDoc/powerdeck/internal/redis"
	"github.com/MrSnakeDoc/powerdeck/internal/registry"
	"github.com/MrSnakeDoc/powerdeck/internal/remote"
	"github.com/MrSnakeDoc/powerdeck/internal/scheduler"
	redisstore "github.com/MrSnakeDoc/powerdeck/internal/store/redis"
	"github.com/MrSnakeDoc/powerdeck/internal/version"
	"github.com/MrSnakeDoc/powerdeck/internal/wol"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	dispatcher  *dispatch.Dispatcher
	watcher     *scheduler.PowerWatcher
	collector   *scheduler.RequestCollector

	// root outlives HTTP requests; workflows run on it and are only
	// cancelled at shutdown.
	root   context.Context
	cancel context.CancelFunc
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)
	root, cancel := context.WithCancel(context.Background())

	// Service registry - fail fast on an invalid file
	reg, err := registry.Open(cfg.ServiceFile)
	if err != nil {
		loggerClient.Errorf("Failed to load service file: %v", err)
		os.Exit(1)
	}
	loggerClient.Info("service registry loaded",
		logger.String("file", cfg.ServiceFile),
		logger.Int("services", reg.Count()))

	host := domain.HostTarget{
		Address:       cfg.SSHHost,
		HardwareAddr:  cfg.TargetMAC,
		BroadcastAddr: cfg.BroadcastIP,
		User:          cfg.SSHUser,
		Port:          cfg.SSHPort,
	}

	executor, err := remote.NewSSH(remote.Config{
		Addr:          host.SSHAddr(),
		User:          cfg.SSHUser,
		KeyFile:       cfg.SSHKeyFile,
		KeyPassphrase: cfg.SSHKeyPassphrase,
		Password:      cfg.SSHPassword,
		DialTimeout:   cfg.SSHDialTimeout,
		ClientVersion: "powerdeck_" + strings.ReplaceAll(version.Version, "-", "."),
	}, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to configure SSH: %v", err)
		os.Exit(1)
	}

	m := metrics.New()

	// Redis is optional: without it leases, presence and history stay in
	// this process.
	var (
		redisClient *goredis.Client
		store       *redisstore.Store
	)
	if cfg.RedisEnabled() {
		redisClient, err = redis.New(root, redis.OptionsFromConfig(cfg), loggerClient)
		if err != nil {
			loggerClient.Errorf("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		store = redisstore.NewStore(redisClient)
		loggerClient.Info("Redis initialized successfully")
	} else {
		loggerClient.Info("redis not configured, leases and presence are local to this process")
	}

	var (
		locker    orchestrator.Locker = orchestrator.NewMemoryLocker()
		indicator                     = presence.New(nil, loggerClient)
		recorder  history.Recorder    = history.NewRing(cfg.HistorySize)
		redisPing deps.Pinger
		powerSave scheduler.PowerStore
	)
	if store != nil {
		locker = redisstore.NewLocker(store, cfg.LeaseTTL, loggerClient)
		indicator = presence.New(store, loggerClient)
		recorder = history.NewShared(store, cfg.HistorySize, loggerClient)
		redisPing = store
		powerSave = store
	}

	orch := orchestrator.New(orchestrator.Deps{
		Host: host,
		Convention: domain.ManagedConvention{
			BasePath: cfg.ManagedBasePath,
			Script:   cfg.ManagedScript,
		},
		Timing: orchestrator.Timing{
			PollInterval:        cfg.PollInterval,
			PowerTimeout:        cfg.PowerTimeout,
			ReadyTimeout:        cfg.ReadyTimeout,
			ReadyAttemptTimeout: cfg.ReadyAttemptTimeout,
			PowerDownDelay:      cfg.PowerDownDelay,
			RebootDelay:         cfg.RebootDelay,
		},
		Prober:   probe.NewICMP(cfg.ProbeTimeout, loggerClient),
		Waker:    wol.NewSender(),
		Executor: executor,
		Registry: reg,
		Locker:   locker,
		Presence: indicator,
		Address:  egress.NewResolver(cfg.PublicAddress, cfg.AddressLookup, cfg.AddressTimeout, loggerClient),
		Observer: m,
		Log:      loggerClient,
	})

	tracker := progress.NewTracker()
	dispatcher := dispatch.New(root, dispatch.Deps{
		Orchestrator: orch,
		Registry:     reg,
		Tracker:      tracker,
		History:      recorder,
		Log:          loggerClient,
	})

	var watcher *scheduler.PowerWatcher
	var powerHistory deps.PowerHistory
	if cfg.PowerWatchEvery > 0 {
		watcher = scheduler.NewPowerWatcher(orch, m, powerSave, loggerClient, cfg.PowerWatchEvery)
		powerHistory = watcher
	}
	collector := scheduler.NewRequestCollector(tracker, m.RequestsTracked, loggerClient, 0, cfg.RequestTTL)

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
		APIToken:     cfg.APIToken,
		RateBurst:    cfg.RateBurst,
		RatePerMin:   cfg.RatePerMin,
		Dispatcher:   dispatcher,
		Host:         orch,
		Catalog:      reg,
		Presence:     indicator,
		Power:        powerHistory,
		Redis:        redisPing,
		Metrics:      m.Handler(),
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		redisClient: redisClient,
		dispatcher:  dispatcher,
		watcher:     watcher,
		collector:   collector,
		root:        root,
		cancel:      cancel,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting powerdeck %s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("powerdeck %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.cancel()

	if a.watcher != nil {
		a.watcher.Start(ctx)
		a.logger.Info("power watcher started",
			logger.Duration("interval", a.cfg.PowerWatchEvery))
	}

	a.collector.Start(ctx)
	a.logger.Info("request collector started",
		logger.Duration("retention", a.cfg.RequestTTL))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.collector.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	// Running workflows are cancelled; their boundary still records an
	// outcome and releases leases.
	a.cancel()
	a.waitWorkflows(shutdownCtx)

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ powerdeck stopped cleanly")
	return nil
}

func (a *App) waitWorkflows(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		a.dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("shutdown timeout reached with workflows still running")
	}
}
