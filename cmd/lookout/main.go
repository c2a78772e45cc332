package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KashirApp/Kashir-sub002/internal/discovery"
	"github.com/KashirApp/Kashir-sub002/internal/metrics"
	"github.com/KashirApp/Kashir-sub002/internal/pipeline"
	"github.com/KashirApp/Kashir-sub002/internal/relay"
	"github.com/KashirApp/Kashir-sub002/internal/resolver"
	"github.com/KashirApp/Kashir-sub002/internal/statscache"
	"github.com/KashirApp/Kashir-sub002/pkg/config"
	"github.com/KashirApp/Kashir-sub002/pkg/logging"
	"github.com/KashirApp/Kashir-sub002/pkg/models"
	"github.com/KashirApp/Kashir-sub002/pkg/monitoring"
	"github.com/KashirApp/Kashir-sub002/pkg/server"
	"github.com/KashirApp/Kashir-sub002/pkg/version"
)

// feedHolder keeps the latest published snapshot for the HTTP surface.
// The pipeline goroutine writes, request handlers read.
type feedHolder struct {
	mu       sync.RWMutex
	snapshot models.Snapshot
}

func (h *feedHolder) set(s models.Snapshot) {
	h.mu.Lock()
	h.snapshot = s
	h.mu.Unlock()
}

func (h *feedHolder) get() models.Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshot
}

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("lookout")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Lookout (Trending Feed Enrichment Service)")

	relayURL := config.RequireEnv("RELAY_URL")
	statsCacheURL := config.RequireEnv("STATS_CACHE_URL")
	refreshInterval := config.GetEnvDuration("REFRESH_INTERVAL", 5*time.Minute)

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("lookout", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("lookout", version.Version, version.GitCommit)
	pipelineMetrics := metrics.New(metricsCollector)

	// === Clients ===
	relayClient := relay.NewClient(relay.Config{
		URL:    relayURL,
		Logger: logger,
	})

	statsClient := statscache.NewClient(statscache.Config{
		URL:     statsCacheURL,
		Logger:  logger,
		Metrics: pipelineMetrics,
	})

	// === Pipeline Stages ===
	discoveryService := discovery.NewService(discovery.Config{
		Querier:        relayClient,
		Logger:         logger,
		ProviderPubkey: config.GetEnv("TRENDING_PROVIDER_PUBKEY", ""),
		EventKind:      config.GetEnvInt("TRENDING_EVENT_KIND", 0),
	})

	noteResolver := resolver.NewResolver(resolver.Config{
		Querier: relayClient,
		Logger:  logger,
		Metrics: pipelineMetrics,
	})

	feedPipeline := pipeline.New(pipeline.Config{
		Discovery: discoveryService,
		Resolver:  noteResolver,
		Stats:     statsClient,
		Logger:    logger,
		Metrics:   pipelineMetrics,
	})

	// === Background Refresh ===
	holder := &feedHolder{}
	go refreshLoop(context.Background(), feedPipeline, holder, refreshInterval, logger)

	healthChecker.AddCheck("relay", monitoring.WebSocketEndpointHealthCheck(relayURL))
	healthChecker.AddCheck("stats_cache", monitoring.WebSocketEndpointHealthCheck(statsCacheURL))
	healthChecker.AddCheck("configuration", monitoring.ConfigurationHealthCheck(map[string]string{
		"RELAY_URL":       relayURL,
		"STATS_CACHE_URL": statsCacheURL,
	}))

	// === HTTP Server ===
	serverConfig := server.DefaultConfig("lookout", config.GetEnv("LOOKOUT_PORT", "18090"))

	app := server.SetupServiceRouter(logger, "lookout", healthChecker, metricsCollector)
	app.GET("/feed", func(c *gin.Context) {
		snap := holder.get()
		c.JSON(http.StatusOK, gin.H{
			"loading":   snap.Loading,
			"timestamp": snap.Timestamp,
			"items":     snap.Items,
		})
	})
	app.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "running", "version": version.Version})
	})

	if err := server.Start(serverConfig, app, logger); err != nil {
		logger.WithError(err).Fatal("Lookout HTTP server failed")
	}
}

// refreshLoop runs the pipeline immediately and then on a fixed interval.
// Runs never overlap: each ticker fire is consumed only after the previous
// run's snapshot stream has drained.
func refreshLoop(ctx context.Context, p *pipeline.Pipeline, holder *feedHolder, interval time.Duration, logger logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for snap := range p.Run(ctx) {
			holder.set(snap)
		}
		logger.WithField("interval", interval.String()).Debug("Feed refresh complete")

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
