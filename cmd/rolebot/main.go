package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"faceit-rolebot/internal/analytics"
	"faceit-rolebot/internal/api"
	"faceit-rolebot/internal/bot"
	"faceit-rolebot/internal/config"
	"faceit-rolebot/internal/faceit"
	"faceit-rolebot/internal/metrics"
	"faceit-rolebot/internal/modules/audit"
	"faceit-rolebot/internal/modules/throttle"
	"faceit-rolebot/internal/platform"
	"faceit-rolebot/internal/ranksync"
	"faceit-rolebot/internal/rolepanel"
	"faceit-rolebot/internal/scheduler"
	"faceit-rolebot/internal/storage"
	"faceit-rolebot/internal/storage/mongostore"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("storage init failed", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsReg := metrics.New(registry)

	auditLogger := audit.NewLogger(store, logger)
	analyticsSvc := analytics.New(store)

	session, err := bot.NewSession(cfg.DiscordToken)
	if err != nil {
		logger.Fatal("discord session init failed", zap.Error(err))
	}
	discord := platform.New(session, time.Duration(cfg.Discord.RoleCacheSeconds)*time.Second)

	lookup := faceit.New(faceit.Options{
		BaseURL:           cfg.Faceit.BaseURL,
		APIKey:            cfg.Faceit.APIKey,
		Timeout:           time.Duration(cfg.Faceit.TimeoutSeconds) * time.Second,
		RequestsPerSecond: cfg.Faceit.RequestsPerSecond,
	})

	panels := rolepanel.New(discord, store, logger.Named("rolepanel"), rolepanel.Options{
		Texts:   bot.PanelTexts(cfg.DefaultLanguage),
		Color:   cfg.EmbedColors.Action,
		Audit:   auditLogger,
		Metrics: metricsReg,
	})
	reconciler := ranksync.New(lookup, discord, store, logger.Named("ranksync"), auditLogger, metricsReg)
	sched := scheduler.New(reconciler.RunPass, time.Duration(cfg.Sync.IntervalHours)*time.Hour, cfg.Sync.RunOnStart, logger.Named("scheduler"))

	botSvc := bot.New(cfg, logger, session, bot.Deps{
		Store:     store,
		Platform:  discord,
		Panels:    panels,
		Ranks:     reconciler,
		Scheduler: sched,
		Audit:     auditLogger,
		Analytics: analyticsSvc,
		Throttle:  throttle.New(cfg.Discord.RankRequestLimit, time.Duration(cfg.Discord.RankRequestWindowMinutes)*time.Minute, auditLogger),
	})
	if err := botSvc.Start(ctx); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("bot started")

	sched.Start()

	httpDone := make(chan struct{})
	if cfg.HTTP.Enabled {
		server := api.New(logger.Named("api"), api.Options{
			Store:     store,
			Sync:      sched,
			Gatherer:  registry,
			Audit:     auditLogger,
			JWTSecret: cfg.HTTP.JWTSecret,
		})
		go func() {
			defer close(httpDone)
			if err := server.Run(ctx, cfg.HTTP.Addr); err != nil {
				logger.Error("admin http server error", zap.Error(err))
			}
		}()
	} else {
		close(httpDone)
	}

	<-ctx.Done()
	logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sched.Stop()
	botSvc.Close(shutdownCtx)
	select {
	case <-httpDone:
	case <-shutdownCtx.Done():
	}
}

func openStore(ctx context.Context, cfg config.Config) (storage.Repository, error) {
	if cfg.Database.Driver == config.DriverMongo {
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		return mongostore.New(connectCtx, cfg.Database.DSN, cfg.Database.Name)
	}

	dialect := storage.DialectSQLite
	if cfg.Database.Driver == config.DriverPostgres {
		dialect = storage.DialectPostgres
	}
	store, err := storage.New(dialect, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
