package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opsforge/remedy-engine/internal/cache"
	"github.com/opsforge/remedy-engine/internal/config"
	"github.com/opsforge/remedy-engine/internal/engine"
	"github.com/opsforge/remedy-engine/internal/knowledge"
	"github.com/opsforge/remedy-engine/internal/learning"
	"github.com/opsforge/remedy-engine/internal/metrics"
	"github.com/opsforge/remedy-engine/internal/models"
	"github.com/opsforge/remedy-engine/internal/policy"
	"github.com/opsforge/remedy-engine/internal/repo"
	"github.com/opsforge/remedy-engine/internal/services"
	"github.com/opsforge/remedy-engine/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting remedy-engine", slog.String("metrics_address", cfg.Server.MetricsAddress))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled {
		if cfg.Cache.Addr != "" {
			provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
				Addr:         cfg.Cache.Addr,
				Password:     cfg.Cache.Password,
				DB:           cfg.Cache.DB,
				DialTimeout:  cfg.Cache.DialTimeout,
				ReadTimeout:  cfg.Cache.ReadTimeout,
				WriteTimeout: cfg.Cache.WriteTimeout,
			})
			if err != nil {
				logger.Warn("valkey cache unavailable, using in-memory cache", slog.Any("error", err))
				cacheProvider = cache.NewMemoryProvider()
			} else {
				cacheProvider = provider
			}
		} else {
			cacheProvider = cache.NewMemoryProvider()
		}
	}
	defer cacheProvider.Close()

	store := repo.NewPlatformStore(
		cfg.Clients.Store.BaseURL,
		cfg.Clients.Store.AnomalyPath,
		cfg.Clients.Store.StatePath,
		cfg.Clients.Store.RecordPath,
		cfg.Clients.Store.Timeout,
	)
	executor := repo.NewHTTPExecutor(
		cfg.Clients.Executor.BaseURL,
		cfg.Clients.Executor.Path,
		cfg.Clients.Executor.Timeout,
	)
	snapshots := repo.NewFileSnapshots(cfg.Snapshot.KnowledgePath, cfg.Snapshot.QTablePath)

	graph := knowledge.NewGraph()
	classifier := knowledge.NewCentroidClassifier()
	recommender := knowledge.NewRecommender(graph, classifier, cacheProvider, knowledge.RecommenderOptions{
		SimilarityThreshold: cfg.Recommend.SimilarityThreshold,
		MinSimilarNodes:     cfg.Recommend.MinSimilarNodes,
		CriticalBoost:       cfg.Recommend.CriticalBoost,
		MaxRecommendations:  cfg.Recommend.MaxRecommendations,
		CacheTTL:            cfg.Recommend.CacheTTL,
	}, logger)

	agent := learning.NewAgent(cfg.Learning.LearningRate, cfg.Learning.DiscountFactor, nil)
	discretizer := learning.NewDiscretizer(cfg.Learning.Thresholds)
	queue := learning.NewActiveQueue(classifier, cfg.Learning.UncertaintyThreshold, cfg.Learning.MinRetrainSamples)

	policyEngine := policy.NewEngine(logger)
	rules, err := policy.LoadPack(cfg.Policy.PackPath)
	if err != nil {
		logger.Error("failed to load policy pack", slog.String("path", cfg.Policy.PackPath), slog.Any("error", err))
		os.Exit(1)
	}
	policyEngine.ReplaceAll(rules)
	logger.Info("policy pack loaded", slog.String("path", cfg.Policy.PackPath), slog.Int("rules", len(rules)))

	orchestrator := engine.NewOrchestrator(logger, policyEngine, recommender, agent, discretizer,
		queue, store, executor, auditLogger{logger}, engine.Options{
			ExecutionTimeout:   cfg.Clients.Executor.Timeout,
			TopN:               cfg.Recommend.MaxRecommendations,
			FullAutoConfidence: cfg.Adaptive.FullAutoConfidence,
			FullAutoMaxLoad:    cfg.Adaptive.FullAutoMaxLoad,
			SemiAutoConfidence: cfg.Adaptive.SemiAutoConfidence,
			ExplorationRate:    cfg.Learning.ExplorationRate,
		})

	miner := knowledge.NewMiner(graph, logger)
	service := services.NewOpsService(logger, orchestrator, queue, graph, agent, miner, snapshots)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := service.LoadState(ctx); err != nil {
		logger.Warn("snapshot restore failed, starting empty", slog.Any("error", err))
	} else {
		logger.Info("state restored",
			slog.Int("knowledge_nodes", graph.NodeCount()),
			slog.Int("knowledge_edges", graph.EdgeCount()))
	}

	var wg sync.WaitGroup
	if cfg.Policy.Watch {
		watcher := policy.NewWatcher(policyEngine, cfg.Policy.PackPath, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("policy watcher exited", slog.Any("error", err))
			}
		}()
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		pollLoop(ctx, logger, cfg, store, service)
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	// Mine once more so the persisted snapshot carries current patterns.
	if _, err := service.MinePatterns(shutdownCtx); err != nil {
		logger.Warn("pattern mining failed", slog.Any("error", err))
	}
	if err := service.SaveState(shutdownCtx); err != nil {
		logger.Error("snapshot save failed", slog.Any("error", err))
	} else {
		logger.Info("state persisted",
			slog.Int("knowledge_nodes", graph.NodeCount()))
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
	}

	logger.Info("remedy-engine stopped")
}

// pollLoop lists open anomalies every poll interval and fans them out to a
// bounded worker pool. Each anomaly's pipeline still runs sequentially inside
// its worker.
func pollLoop(ctx context.Context, logger *slog.Logger, cfg *config.Config, store engine.Store, service *services.OpsService) {
	workers := cfg.Server.Workers
	if workers <= 0 {
		workers = 1
	}

	ticker := time.NewTicker(cfg.Server.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		anomalies, err := store.ListOpenAnomalies(ctx, cfg.Clients.Store.OpenBatchSize)
		if err != nil {
			logger.Warn("open anomaly poll failed", slog.Any("error", err))
			continue
		}
		if len(anomalies) == 0 {
			continue
		}
		logger.Debug("processing open anomalies", slog.Int("count", len(anomalies)))

		ids := make(chan string, len(anomalies))
		for _, anomaly := range anomalies {
			ids <- anomaly.ID
		}
		close(ids)

		var batch sync.WaitGroup
		for i := 0; i < workers; i++ {
			batch.Add(1)
			go func() {
				defer batch.Done()
				for id := range ids {
					if ctx.Err() != nil {
						return
					}
					result, err := service.ProcessAnomaly(ctx, id)
					if err != nil {
						logger.Warn("anomaly processing failed",
							slog.String("anomaly_id", id), slog.Any("error", err))
						continue
					}
					logger.Info("anomaly processed",
						slog.String("anomaly_id", id),
						slog.String("status", string(result.Status)),
						slog.String("level", result.Level.String()))
				}
			}()
		}
		batch.Wait()

		if _, err := service.MinePatterns(ctx); err != nil {
			logger.Warn("pattern mining failed", slog.Any("error", err))
		}
	}
}

// auditLogger emits audit events through the structured logger. A dedicated
// audit transport can replace it without touching the orchestrator.
type auditLogger struct {
	logger *slog.Logger
}

func (a auditLogger) Emit(event models.AuditEvent) error {
	a.logger.Info("audit",
		slog.String("anomaly_id", event.AnomalyID),
		slog.String("level", event.Level.String()),
		slog.String("action_type", event.ActionType),
		slog.Bool("success", event.Success),
		slog.Time("timestamp", event.Timestamp))
	return nil
}
