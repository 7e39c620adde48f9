package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/oraculus/internal/adapters/http/api"
	"github.com/okian/oraculus/internal/adapters/mq/queue"
	"github.com/okian/oraculus/internal/adapters/mq/worker"
	"github.com/okian/oraculus/internal/adapters/repository"
	"github.com/okian/oraculus/internal/adapters/storage"
	"github.com/okian/oraculus/internal/adapters/zulip"
	"github.com/okian/oraculus/internal/app"
	"github.com/okian/oraculus/internal/config"
	"github.com/okian/oraculus/internal/domain/badges"
	"github.com/okian/oraculus/internal/domain/masterdata"
	"github.com/okian/oraculus/internal/domain/scoring"
	"github.com/okian/oraculus/internal/domain/threshold"
	"github.com/okian/oraculus/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize logging
	if err := logger.Init(); err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Reconfigure logging with the loaded level and optional file tee.
	if err := logger.Init(logger.WithLevelString(cfg.LogLevel), logger.WithFileDir(cfg.LogDir)); err != nil {
		os.Stderr.WriteString("failed to configure logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()

	// Competition semantics: thresholds, master data, gain matrix.
	levels := make([]threshold.Level, 0, len(cfg.GainThresholds))
	for _, t := range cfg.GainThresholds {
		levels = append(levels, threshold.Level{
			MinScore: t.MinScore,
			Category: t.Category,
			Message:  t.Message,
			Emoji:    t.Emoji,
		})
	}
	classifier, err := threshold.NewClassifier(levels)
	if err != nil {
		log.Fatal(ctx, "invalid thresholds", logger.Error(err))
	}

	dataset, err := masterdata.Load(cfg.MasterData.Path)
	if err != nil {
		log.Fatal(ctx, "loading master data failed", logger.Error(err))
	}
	log.Info(ctx, "master data loaded",
		logger.Int("records", dataset.Len()),
		logger.String("path", cfg.MasterData.Path),
	)

	scorer := scoring.New(dataset, scoring.GainMatrix{
		TP: cfg.GainMatrix.TP,
		TN: cfg.GainMatrix.TN,
		FP: cfg.GainMatrix.FP,
		FN: cfg.GainMatrix.FN,
	})

	store, err := repository.Open(cfg.Database.Path, classifier)
	if err != nil {
		log.Fatal(ctx, "opening store failed", logger.Error(err))
	}
	defer func() {
		_ = store.Close()
	}()

	deadline, err := cfg.DeadlineTime()
	if err != nil {
		log.Fatal(ctx, "invalid deadline", logger.Error(err))
	}

	badgeEngine := badges.NewEngine(store, classifier)
	files := storage.New(cfg.Submissions.Path)
	client := zulip.New(cfg.Zulip.Site, cfg.Zulip.Email, cfg.Zulip.APIKey)

	badgeMeta := make(map[string]app.BadgeDisplay, len(cfg.Badges))
	for key, meta := range cfg.Badges {
		badgeMeta[key] = app.BadgeDisplay{Name: meta.Name, Emoji: meta.Emoji}
	}

	svc := app.NewService(app.Deps{
		Store:      store,
		Dataset:    dataset,
		Scorer:     scorer,
		Classifier: classifier,
		Badges:     badgeEngine,
		Files:      files,
		Resolver:   client,
		Teachers:   cfg.TeacherSet(),
		Competition: app.Competition{
			Name:        cfg.Competition.Name,
			Description: cfg.Competition.Description,
			Deadline:    deadline,
		},
		BadgeMeta: badgeMeta,
	})

	// Message pipeline: listener -> queue -> workers -> replies.
	inbound := queue.NewInMemoryQueue(
		queue.WithCapacity(cfg.QueueSize),
		queue.WithBufferSize(cfg.QueueSize),
	)
	pool := worker.NewPool(cfg.WorkerCount, inbound, svc, client)
	pool.Start(ctx)

	listener := zulip.NewListener(client, inbound)
	go func() {
		if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error(ctx, "listener stopped", logger.Error(err))
			stop()
		}
	}()

	// HTTP mux and routes.
	mux := http.NewServeMux()
	apiServer := api.NewServer(svc)
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
		}
	}()

	log.Info(ctx, "bot started",
		logger.String("competition", cfg.Competition.Name),
		logger.String("deadline", cfg.Competition.Deadline),
		logger.Int("teachers", len(cfg.Teachers)),
	)

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	// Drain the pipeline: stop intake first, then the workers.
	_ = inbound.Close()
	pool.Stop()

	log.Info(ctx, "stopped")
}
