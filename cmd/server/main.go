// Command server boots the stock-analysis core: the task queue, data
// and search cascades, the expert panel, and the HTTP API, then runs
// until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockpanel/sentinel/internal/breaker"
	"github.com/stockpanel/sentinel/internal/cascade"
	"github.com/stockpanel/sentinel/internal/clients/akshare"
	"github.com/stockpanel/sentinel/internal/clients/efinance"
	"github.com/stockpanel/sentinel/internal/clients/gemini"
	"github.com/stockpanel/sentinel/internal/clients/multiplex"
	"github.com/stockpanel/sentinel/internal/clients/openaicompat"
	"github.com/stockpanel/sentinel/internal/clients/serper"
	"github.com/stockpanel/sentinel/internal/clients/tavily"
	"github.com/stockpanel/sentinel/internal/clients/tushare"
	"github.com/stockpanel/sentinel/internal/clients/yfinance"
	"github.com/stockpanel/sentinel/internal/config"
	"github.com/stockpanel/sentinel/internal/configsvc"
	"github.com/stockpanel/sentinel/internal/database"
	"github.com/stockpanel/sentinel/internal/domain"
	"github.com/stockpanel/sentinel/internal/events"
	"github.com/stockpanel/sentinel/internal/orchestrator"
	"github.com/stockpanel/sentinel/internal/panel"
	"github.com/stockpanel/sentinel/internal/queue"
	"github.com/stockpanel/sentinel/internal/reportstore"
	"github.com/stockpanel/sentinel/internal/scheduler"
	"github.com/stockpanel/sentinel/internal/search"
	"github.com/stockpanel/sentinel/internal/server"
	"github.com/stockpanel/sentinel/internal/ttlcache"
	"github.com/stockpanel/sentinel/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load bootstrap configuration: %v\n", err)
		os.Exit(1)
	}

	zlog := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	logger.SetGlobalLogger(zlog)
	zlog.Info().Str("data_dir", cfg.DataDir).Int("port", cfg.Port).Msg("starting sentinel")

	db, err := database.New(database.Config{Path: cfg.DataDir + "/sentinel.db", Name: "sentinel"})
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	backend, err := configsvc.NewBackend(configsvc.BackendConfig{
		StorageType: cfg.StorageType,
		FilePath:    cfg.ConfigPath,
		DB:          db,
	})
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to initialize config backend")
	}
	configService := configsvc.New(backend, nil, zlog)

	cache, err := ttlcache.New(db.Conn(), "provider_cache")
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to initialize provider cache")
	}

	reports, err := reportstore.New(db)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to initialize report store")
	}

	archiver, err := reportstore.NewArchiver(context.Background(), reports, reportstore.ArchiveConfig{
		Bucket:          cfg.ArchiveBucket,
		Prefix:          cfg.ArchivePrefix,
		Endpoint:        cfg.ArchiveEndpoint,
		Region:          cfg.ArchiveRegion,
		AccessKeyID:     cfg.ArchiveAccessKeyID,
		SecretAccessKey: cfg.ArchiveSecretAccessKey,
		RetentionDays:   cfg.ArchiveRetentionDays,
	}, zlog)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to initialize report archiver")
	}

	runtimeCfg := func(ctx context.Context) configsvc.ConfigMap {
		items, _, err := configService.GetConfig(ctx)
		if err != nil {
			zlog.Warn().Err(err).Msg("failed to read runtime configuration, using empty set")
			return configsvc.ConfigMap{}
		}
		return items
	}

	realtimeBreaker := breaker.New(breaker.DefaultConfig())
	chipBreaker := breaker.New(breaker.ConservativeConfig())

	adapters := []cascade.Adapter{
		akshare.New(cache, zlog),
		efinance.New(cache, zlog),
		tushare.New(cfg.TushareToken, cfg.TushareQuotaPerMinute, zlog),
		yfinance.New(zlog),
	}
	cascadeMgr := cascade.NewManager(adapters, realtimeBreaker, chipBreaker, zlog)

	bootCfg := runtimeCfg(context.Background())
	searchMgr := search.NewManager(searchProviders(bootCfg, zlog), zlog)

	analyzer := multiplex.New(map[string]panel.Analyzer{
		"gemini":            gemini.New(),
		"openai-compatible": openaicompat.New(),
	})
	panelRunner := panel.NewRunner(analyzer, zlog)

	modelsOf := func(_ domain.ReportType) []domain.ModelConfig {
		configs, err := panel.BuildModelConfigs(runtimeCfg(context.Background()))
		if err != nil {
			zlog.Warn().Err(err).Msg("failed to build expert panel models from runtime configuration")
			return nil
		}
		return configs
	}

	orchCfg := orchestrator.DefaultConfig()
	if days := bootCfg["HISTORY_DAYS"]; days != "" {
		if n, err := strconv.Atoi(days); err == nil && n > 0 {
			orchCfg.HistoryDays = n
		}
	}
	orch := orchestrator.New(cascadeMgr, searchMgr, panelRunner, modelsOf, reports, orchCfg, zlog)

	bus := events.NewBus(zlog)
	workers := 3
	if n := bootCfg["MAX_WORKERS"]; n != "" {
		if v, err := strconv.Atoi(n); err == nil && v > 0 {
			workers = v
		}
	}
	taskQueue := queue.New(workers, orch.Execute, bus, zlog)
	taskQueue.Start()

	srv := server.New(server.Config{
		Log:     zlog,
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
		Queue:   taskQueue,
		Bus:     bus,
		Cascade: cascadeMgr,
		Reports: reports,
		Configs: configService,
		Panel:   panelRunner,
		Models:  modelsOf,
	})
	go func() {
		if err := srv.Start(); err != nil {
			zlog.Fatal().Err(err).Msg("http server stopped unexpectedly")
		}
	}()
	zlog.Info().Int("port", cfg.Port).Msg("http server listening")

	sched := scheduler.New(zlog)
	job := &watchlistJob{queue: taskQueue, config: runtimeCfg, log: zlog}
	scheduleTime := bootCfg["SCHEDULE_TIME"]
	if scheduleTime == "" {
		scheduleTime = "09:30"
	}
	if spec, err := cronSpecFromHHMM(scheduleTime); err != nil {
		zlog.Warn().Err(err).Str("schedule_time", scheduleTime).Msg("invalid SCHEDULE_TIME, watchlist batch disabled")
	} else if err := sched.AddJob(spec, job); err != nil {
		zlog.Warn().Err(err).Msg("failed to register watchlist batch job")
	}
	sched.Start()

	archiveCtx, cancelArchive := context.WithCancel(context.Background())
	if archiver != nil {
		go archiver.RunPeriodic(archiveCtx, reportstore.DefaultArchiveInterval)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("shutting down")

	cancelArchive()
	sched.Stop()
	taskQueue.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("http server shutdown error")
	}

	zlog.Info().Msg("sentinel stopped")
}

// searchProviders builds the search cascade's provider set from
// whichever API keys are present in the runtime configuration.
func searchProviders(items configsvc.ConfigMap, zlog zerolog.Logger) []search.Provider {
	var providers []search.Provider
	if keys := splitKeys(items["TAVILY_API_KEY"]); len(keys) > 0 {
		providers = append(providers, tavily.New(keys, zlog))
	}
	if keys := splitKeys(items["SERPER_API_KEY"]); len(keys) > 0 {
		providers = append(providers, serper.New(keys, zlog))
	}
	return providers
}

func splitKeys(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
