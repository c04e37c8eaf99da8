package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/nats-io/nats-server/v2/server"

	"github.com/selfmemory/memoryd/internal/bus"
	"github.com/selfmemory/memoryd/internal/config"
	"github.com/selfmemory/memoryd/internal/index"
	"github.com/selfmemory/memoryd/internal/memory"
	natslib "github.com/selfmemory/memoryd/internal/nats"
	"github.com/selfmemory/memoryd/internal/obslog"
	"github.com/selfmemory/memoryd/internal/patterns"
	"github.com/selfmemory/memoryd/internal/retrieval"
	"github.com/selfmemory/memoryd/internal/rpc"
)

func main() {
	configPath := flag.String("config", "configs/memoryd.yaml", "Path to configuration file")
	devLog := flag.Bool("dev", false, "Use human-readable development logging")
	flag.Parse()

	log.Println("===============================================")
	log.Println("  memoryd - self-learning episodic memory engine")
	log.Println("===============================================")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("[MAIN] configuration error: %v", err)
		os.Exit(2)
	}

	logger, err := obslog.New(*devLog)
	if err != nil {
		log.Fatalf("[MAIN] failed to initialize logger: %v", err)
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		log.Fatalf("[MAIN] failed to create data directory: %v", err)
	}

	primary, err := memory.NewSQLitePrimary(
		filepath.Join(cfg.Storage.DataDir, cfg.Storage.PrimaryFile),
		cfg.Storage.PrimaryPool,
		logger,
	)
	if err != nil {
		log.Printf("[MAIN] failed to initialize primary storage: %v", err)
		os.Exit(3)
	}
	defer primary.Close()

	cache, err := memory.NewBadgerCache(filepath.Join(cfg.Storage.DataDir, cfg.Storage.CacheDir), logger)
	if err != nil {
		log.Printf("[MAIN] failed to initialize cache storage: %v", err)
		os.Exit(3)
	}
	defer cache.Close()

	var embeddings memory.EmbeddingProvider
	if cfg.Embedding.EmbeddingEnabled() {
		embeddings = memory.NewHTTPEmbeddingProvider(cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.Dimension)
		log.Printf("[MAIN] embedding provider configured: %s (%s)", cfg.Embedding.Provider, cfg.Embedding.Model)
	} else {
		log.Println("[MAIN] no embedding provider configured, retrieval falls back to keyword matching")
	}

	syncInterval := time.Duration(cfg.Storage.SyncInterval) * time.Second
	synchronizer := memory.NewSynchronizer(primary, cache, syncInterval, logger)

	var maxEpisodes *int
	if cfg.MaxEpisodes != nil {
		maxEpisodes = cfg.MaxEpisodes
	}
	capacity := memory.NewCapacity(synchronizer, maxEpisodes, memory.EvictionPolicy(cfg.Eviction))

	log.Println("[MAIN] memory storage initialized (primary + cache, write-through synchronizer)")

	patternEngine := patterns.NewEngine(patterns.Options{
		Storage:    primary,
		Heuristics: primary,
		Log:        logger,
	})

	// Embedded NATS server, started the same way the teacher's
	// cmd/cliairmonitor/main.go boots its own in-process broker.
	natsOpts := &server.Options{
		Port:     cfg.NATSPort,
		HTTPPort: -1,
		NoLog:    true,
		NoSigs:   true,
	}
	natsServer, err := server.NewServer(natsOpts)
	if err != nil {
		log.Fatalf("[MAIN] failed to create NATS server: %v", err)
	}
	go natsServer.Start()
	if !natsServer.ReadyForConnections(5 * time.Second) {
		log.Fatal("[MAIN] NATS server failed to start in time")
	}
	log.Printf("[MAIN] embedded NATS server started on port %d", cfg.NATSPort)

	natsURL := fmt.Sprintf("nats://127.0.0.1:%d", cfg.NATSPort)
	natsClient, err := natslib.NewClient(natsURL, "memoryd")
	if err != nil {
		log.Fatalf("[MAIN] failed to connect to embedded NATS server: %v", err)
	}
	defer natsClient.Close()

	patternQueue := bus.NewPatternQueue(natsClient)
	synchronizer.SetRepairNotifier(memory.RepairNotifierFunc(func(kind, id string) {
		if err := patternQueue.PublishRepairNeeded(kind, id); err != nil {
			logger.V(1).Info("failed to publish repair-needed event", "kind", kind, "episode_id", id, "error", err.Error())
		}
	}))

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	patternEngine.Start(rootCtx)
	if err := patternQueue.Subscribe(func(episodeID string) {
		patternEngine.Enqueue(episodeID)
	}); err != nil {
		log.Fatalf("[MAIN] failed to subscribe to pattern queue: %v", err)
	}

	spatialIndex, err := index.Rebuild(rootCtx, primary, 500)
	if err != nil {
		log.Printf("[MAIN] warning: spatiotemporal index rebuild failed, retrieval will use legacy scan: %v", err)
		spatialIndex = index.New()
	}
	log.Printf("[MAIN] spatiotemporal index rebuilt with %d episodes", spatialIndex.Count())

	queryCache, err := retrieval.NewQueryCache(10_000, 60*time.Second)
	if err != nil {
		log.Fatalf("[MAIN] failed to construct query cache: %v", err)
	}
	retrievalEngine := retrieval.NewEngine(primary, spatialIndex, queryCache, 0.7, logger)
	retrievalEngine.SetHeuristicSource(primary)

	capacity.SetObserver(newAdmissionFanout(spatialIndex, queryCache, patternQueue, logger))

	lifecycle := memory.NewLifecycle(memory.LifecycleOptions{
		Capacity:       capacity,
		Embeddings:     embeddings,
		QualityWeights: memory.DefaultQualityWeights(),
		QualityThresh:  cfg.QualityThresh,
		Summarize:      cfg.Summarize,
		Log:            logger,
		OnCompleted: func(episodeID string) {
			if err := patternQueue.Enqueue(episodeID); err != nil {
				logger.V(1).Info("failed to enqueue pattern extraction", "episode_id", episodeID, "error", err.Error())
			}
		},
	})

	service := rpc.NewService(lifecycle, primary, retrievalEngine)
	_ = service // consumed by the (out-of-scope) JSON-RPC façade

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		count, _ := primary.Count(rootCtx)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","episodes":%d,"index_size":%d,"query_cache_size":%d}`,
			count, spatialIndex.Count(), queryCache.Len())
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: mux,
	}
	go func() {
		log.Printf("[MAIN] health endpoint listening on port %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[MAIN] HTTP server error: %v", err)
		}
	}()

	syncTicker := time.NewTicker(syncInterval)
	defer syncTicker.Stop()
	go func() {
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-syncTicker.C:
				if err := synchronizer.RunSyncPass(rootCtx, 500); err != nil {
					logger.V(1).Info("sync pass failed", "error", err.Error())
				}
			}
		}
	}()

	idleTicker := time.NewTicker(time.Minute)
	defer idleTicker.Stop()
	go func() {
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-idleTicker.C:
				if stale := lifecycle.ReapIdle(rootCtx); len(stale) > 0 {
					logger.Info("force-closed idle episodes", "count", len(stale))
				}
			}
		}
	}()

	log.Println("===============================================")
	log.Println("  memoryd ready")
	log.Printf("  Health: http://localhost:%d/healthz", cfg.HTTPPort)
	log.Println("===============================================")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[MAIN] shutdown signal received")

	cancelRoot()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[MAIN] HTTP server shutdown error: %v", err)
	}
	natsServer.Shutdown()

	log.Println("[MAIN] memoryd shutdown complete")
}

// admissionFanout is the concrete memory.AdmissionObserver wired at
// startup: it keeps the Spatiotemporal Index and Query Cache consistent
// with Primary/Cache on every admit/evict, and mirrors both transitions
// onto NATS for operational visibility (§4.1, §4.6, §4.7).
type admissionFanout struct {
	idx        *index.Index
	queryCache *retrieval.QueryCache
	bus        *bus.PatternQueue
	log        logr.Logger
}

func newAdmissionFanout(idx *index.Index, qc *retrieval.QueryCache, pq *bus.PatternQueue, log logr.Logger) *admissionFanout {
	return &admissionFanout{idx: idx, queryCache: qc, bus: pq, log: log}
}

func (a *admissionFanout) Admitted(ep *memory.Episode) {
	a.idx.Insert(ep)
	a.queryCache.InvalidateDomain(ep.Context.Domain)
	if err := a.bus.PublishCompleted(ep.ID, ep.Context.Domain); err != nil {
		a.log.V(1).Info("failed to publish episode-completed event", "episode_id", ep.ID, "error", err.Error())
	}
}

func (a *admissionFanout) Evicted(ep *memory.Episode) {
	a.idx.Remove(ep.ID)
	a.queryCache.InvalidateDomain(ep.Context.Domain)
	if err := a.bus.PublishEvicted(ep.ID, ep.Context.Domain, "capacity_limit"); err != nil {
		a.log.V(1).Info("failed to publish episode-evicted event", "episode_id", ep.ID, "error", err.Error())
	}
}
