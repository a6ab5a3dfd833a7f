// Command collector is the per-host Infra-Mapper agent: it gathers
// container inventory, connection, resource, and log evidence and
// reports it to the central ingester on a fixed interval (§4.4).
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/infra-mapper/infra-mapper/internal/apikey"
	"github.com/infra-mapper/infra-mapper/internal/clock"
	"github.com/infra-mapper/infra-mapper/internal/collector"
	"github.com/infra-mapper/infra-mapper/internal/config"
	"github.com/infra-mapper/infra-mapper/internal/docker"
	"github.com/infra-mapper/infra-mapper/internal/inventory"
	"github.com/infra-mapper/infra-mapper/internal/logging"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg := config.LoadCollector()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogJSON, cfg.LogLevel)
	collector.Version = version

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	log.Info("infra-mapper collector starting", "version", version, "backend", cfg.BackendURL)

	client, err := docker.NewClient(cfg.DockerSock, nil)
	if err != nil {
		log.Error("failed to create Docker client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	hostID := deriveHostID()
	col := collector.New(cfg, client, log, hostID)
	reportClient := collector.NewReportClient(cfg.BackendURL, cfg.APIKey)
	scheduler := collector.NewScheduler(col, reportClient, cfg, log, clock.Real{})

	if cfg.CommandServerEnabled {
		go runCommandServer(ctx, cfg, client, log)
	}

	if err := scheduler.Run(ctx); err != nil {
		log.Error("collector exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("collector shutdown complete")
}

func runCommandServer(ctx context.Context, cfg *config.CollectorConfig, client *docker.Client, log *logging.Logger) {
	cs := collector.NewCommandServer(client, apikey.Hash(cfg.APIKey), log)

	srv := &http.Server{
		Addr:    net.JoinHostPort("", fmt.Sprintf("%d", cfg.CommandPort)),
		Handler: cs,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	log.Info("command server listening", "port", cfg.CommandPort)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("command server error", "error", err)
	}
}

// deriveHostID builds a stable per-host identity: hostname plus a
// machine-id prefix, falling back to hostname plus a hash of the
// hostname when no machine-id is readable, so the ID stays stable
// across reboots without depending on kernel-assigned identifiers.
func deriveHostID() string {
	hostname := inventory.Hostname()
	machineID, err := os.ReadFile("/etc/machine-id")
	if err != nil || len(machineID) < 8 {
		sum := sha256.Sum256([]byte(hostname))
		return hostname + "-" + hex.EncodeToString(sum[:])[:8]
	}
	return hostname + "-" + string(machineID[:8])
}
