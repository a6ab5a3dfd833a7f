// Command ingester is the central Infra-Mapper service: it accepts
// agent reports, materializes the fleet graph, evaluates alert rules,
// forwards logs to external sinks, and serves the REST/WebSocket API
// (§4.5-§4.12, §6).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/infra-mapper/infra-mapper/internal/alert"
	"github.com/infra-mapper/infra-mapper/internal/apikey"
	"github.com/infra-mapper/infra-mapper/internal/clock"
	"github.com/infra-mapper/infra-mapper/internal/config"
	"github.com/infra-mapper/infra-mapper/internal/graph"
	"github.com/infra-mapper/infra-mapper/internal/health"
	"github.com/infra-mapper/infra-mapper/internal/httpserver"
	"github.com/infra-mapper/infra-mapper/internal/ingest"
	"github.com/infra-mapper/infra-mapper/internal/logging"
	"github.com/infra-mapper/infra-mapper/internal/logsink"
	"github.com/infra-mapper/infra-mapper/internal/notify"
	"github.com/infra-mapper/infra-mapper/internal/realtime"
	"github.com/infra-mapper/infra-mapper/internal/relay"
	"github.com/infra-mapper/infra-mapper/internal/store"
)

var version = "dev"

func main() {
	cfg := config.LoadIngester()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogJSON, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	log.Info("infra-mapper ingester starting", "version", version, "db", cfg.DBPath)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	realtimeHub := realtime.New(log)
	dispatcher := notify.NewDispatcher(db, log)
	alertEngine := alert.New(db, dispatcher, log, clock.Real{})
	alertEngine.SetBroadcaster(realtimeHub)

	healthTracker := health.New(db, log, clock.Real{})
	healthTracker.SetNotifier(alertEngine)

	logForwarder := logsink.New(db, log, clock.Real{})

	pipeline := ingest.New(db, healthTracker, alertEngine, logForwarder, realtimeHub, log)
	materializer := graph.New(db, nil)
	containerRelay := relay.New(db)

	bootstrapHash := ""
	if cfg.BootstrapAPIKey != "" {
		bootstrapHash = apikey.Hash(cfg.BootstrapAPIKey)
	}

	srv := httpserver.New(httpserver.Dependencies{
		Store:          db,
		Graph:          materializer,
		Ingest:         pipeline,
		Alerts:         alertEngine,
		Notify:         dispatcher,
		Relay:          containerRelay,
		Realtime:       realtimeHub,
		Log:            log,
		StartTime:      time.Now(),
		Version:        version,
		MetricsEnabled: cfg.MetricsEnabled,
		AcceptAPIKeyHash: func(hash string) (bool, error) {
			if bootstrapHash != "" && apikey.Equal(hash, bootstrapHash) {
				_ = db.RegisterAPIKeyHash(hash)
				return true, nil
			}
			return db.IsAPIKeyHashRegistered(hash)
		},
	})

	go healthTracker.Run(ctx, cfg.HealthSweepInterval)

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			log.Error("ingester shutdown error", "error", err)
		}
	}()

	if err := srv.ListenAndServe(":" + cfg.WebPort); err != nil && err != http.ErrServerClosed {
		log.Error("ingester exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("ingester shutdown complete")
}
