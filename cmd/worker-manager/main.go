// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"nisu-recommender/internal/common/camunda"
	"nisu-recommender/internal/common/config"
	"nisu-recommender/internal/common/database"
	apphttp "nisu-recommender/internal/common/http"
	"nisu-recommender/internal/common/logger"
	"nisu-recommender/internal/common/observability"
	"nisu-recommender/internal/common/validation"
	"nisu-recommender/internal/recommendation/embedding"
	"nisu-recommender/internal/recommendation/fusion"
	"nisu-recommender/internal/recommendation/hydration"
	"nisu-recommender/internal/recommendation/indexing"
	"nisu-recommender/internal/recommendation/pipeline"
	"nisu-recommender/internal/recommendation/retriever"
	"nisu-recommender/pkg/registry"

	ie "nisu-recommender/internal/workers/indexing/index-events"
	iw "nisu-recommender/internal/workers/indexing/index-winkers"
	re "nisu-recommender/internal/workers/recommendation/recommend-events"
	rw "nisu-recommender/internal/workers/recommendation/recommend-winkers"
	se "nisu-recommender/internal/workers/search/search-events"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "console").Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewFromConfig(cfg.Logging)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("environment", cfg.App.Environment))

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Zeebe ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	logTopology(ctx, zeebe, zapLog)

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")
	if err := pg.CheckSchema(ctx); err != nil {
		zapLog.Warn("hydration schema incomplete", zap.Error(err))
	}

	// --- Elasticsearch ---
	var es *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return es.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	version, err := es.ServerVersion(ctx)
	if err != nil {
		zapLog.Fatal("elasticsearch info failed", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully", zap.String("version", version))
	if !database.SupportsKNNQuery(version) {
		zapLog.Warn("cluster predates the knn query clause, recommendations will fail",
			zap.String("version", version))
	}

	// --- Redis ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Recommendation core ---
	rc := cfg.Recommender
	embedder := newEmbedder(cfg)

	engine := fusion.NewEngine()
	winkers := retriever.New(es.Client, retrieverConfig(rc, rc.Indices.Winkers, indexing.WinkerMapping(rc.VectorDims)), engine, log)
	events := retriever.New(es.Client, retrieverConfig(rc, rc.Indices.Events, indexing.EventMapping(rc.VectorDims)), engine, log)

	store := hydration.NewPostgresStore(pg.GetDB())

	var profiles *pipeline.ProfileCache
	if rc.ProfileCache.Enabled {
		profiles = pipeline.NewProfileCache(redis.GetClient(), time.Duration(rc.ProfileCache.TTL)*time.Second, log)
	}

	service := pipeline.New(pipeline.Dependencies{
		Embedder:      embedder,
		Winkers:       winkers,
		Events:        events,
		Merger:        hydration.NewMerger(store, log),
		Requesters:    store,
		Profiles:      profiles,
		Observability: obs,
	}, pipeline.SettingsFromConfig(rc), log)

	indexer := indexing.NewIndexer(es.Client, indexing.NewBuilder(embedder, rc.VectorDims), rc.VectorDims, log)
	created, err := indexer.EnsureIndices(ctx, indexing.Indices{
		Winkers:       rc.Indices.Winkers,
		Events:        rc.Indices.Events,
		Conversations: rc.Indices.Conversations,
	})
	if err != nil {
		zapLog.Fatal("index bootstrap failed", zap.Error(err))
	}
	if len(created) > 0 {
		zapLog.Info("created search indices", zap.Strings("indices", created))
	}

	reg, err := registry.LoadRegistry(cfg.Registry.Path)
	if err != nil {
		zapLog.Fatal("activity registry load failed", zap.Error(err))
	}
	validator := validation.NewValidator(reg)

	// --- Workers ---
	handlers := map[string]camunda.HandlerFunc{
		se.TaskType: se.NewHandler(se.LoadConfig(cfg), service, validator, log).Handle,
		rw.TaskType: rw.NewHandler(rw.LoadConfig(cfg), service, validator, log).Handle,
		re.TaskType: re.NewHandler(re.LoadConfig(cfg), service, validator, log).Handle,
		iw.TaskType: iw.NewHandler(iw.LoadConfig(cfg), indexer, profiles, validator, log).Handle,
		ie.TaskType: ie.NewHandler(ie.LoadConfig(cfg), indexer, validator, log).Handle,
	}

	var workers []*camunda.CamundaWorker
	for taskType, handle := range handlers {
		if !config.IsWorkerEnabled(cfg, taskType) {
			zapLog.Info("worker disabled", zap.String("taskType", taskType))
			continue
		}
		wc := config.GetWorkerConfig(cfg, taskType)
		if activity, ok := reg.FindByTaskType(taskType); ok {
			budget, err := activity.TimeoutDuration()
			if err != nil {
				zapLog.Fatal("activity registry invalid", zap.Error(err))
			}
			if budget > 0 && config.GetDuration(wc.Timeout) > budget {
				zapLog.Warn("worker timeout exceeds the activity budget",
					zap.String("taskType", taskType),
					zap.Duration("configured", config.GetDuration(wc.Timeout)),
					zap.Duration("declared", budget))
			}
		}
		workers = append(workers, camunda.NewWorker(zeebe.GetClient(), taskType, camunda.WorkerOptions{
			MaxJobsActive: wc.MaxJobsActive,
			Timeout:       config.GetDuration(wc.Timeout),
			Observability: obs,
		}, handle, zapLog))
	}
	zapLog.Info("workers registered", zap.Int("count", len(workers)))

	// --- Health & Metrics Server ---
	server := &http.Server{Addr: cfg.Metrics.Address}
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]string{"status": "ready"}
		code := http.StatusOK
		for name, check := range map[string]func(context.Context) error{
			"postgres":      pg.Ping,
			"redis":         redis.Ping,
			"elasticsearch": es.Info,
			"zeebe":         zeebe.HealthCheck,
		} {
			if err := check(checkCtx); err != nil {
				checks[name] = err.Error()
				checks["status"] = "not ready"
				code = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		checks["embedding"] = fmt.Sprintf("initialized=%t", embedder.Initialized())
		writeStatus(w, code, checks)
	})
	http.Handle("/metrics", promhttp.Handler())

	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Metrics.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	for _, w := range workers {
		w.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped")
}

func newEmbedder(cfg *config.Config) *embedding.Lazy {
	ec := cfg.Embedding
	dims := cfg.Recommender.VectorDims
	httpClient := apphttp.NewClient("embeddings", config.GetDuration(ec.Timeout))

	return embedding.NewLazy(dims, func() (embedding.Embedder, error) {
		return embedding.NewOpenAIModel(embedding.OpenAIConfig{
			BaseURL:    ec.BaseURL,
			APIKey:     ec.APIKey,
			Model:      ec.Model,
			Dimensions: dims,
			Normalize:  ec.Normalize,
			CacheSize:  ec.CacheSize,
			HTTPClient: httpClient.HTTPClient(),
		})
	})
}

func retrieverConfig(rc config.RecommenderConfig, index string, mapping map[string]interface{}) retriever.Config {
	return retriever.Config{
		Index:            index,
		VectorDims:       rc.VectorDims,
		VectorFields:     indexing.VectorFields(mapping),
		ScriptingEnabled: rc.ScriptingEnabled,
		K:                rc.KNN.K,
		CandidateFactor:  rc.KNN.CandidateFactor,
		RescoreWindow:    rc.KNN.RescoreWindow,
	}
}

// logTopology reports the broker layout once at startup.
func logTopology(ctx context.Context, zeebe *camunda.Client, log *zap.Logger) {
	topology, err := zeebe.Topology(ctx)
	if err != nil {
		log.Warn("zeebe topology unavailable", zap.Error(err))
		return
	}
	log.Info("Zeebe client connected successfully",
		zap.Int("brokers", len(topology.GetBrokers())),
		zap.Int32("partitions", topology.GetPartitionsCount()))
}

func writeStatus(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
