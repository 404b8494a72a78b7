package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/duskbridge/strata/pkg/api"
	"github.com/duskbridge/strata/pkg/config"
	"github.com/duskbridge/strata/pkg/jmt"
	"github.com/duskbridge/strata/pkg/log"
	"github.com/duskbridge/strata/pkg/metrics"
	"github.com/duskbridge/strata/pkg/registry"
	"github.com/duskbridge/strata/pkg/storage"
	"github.com/duskbridge/strata/pkg/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Query server against an existing store",
	Long: `serve opens the backend at the configured path read-only from this
process's perspective and answers KeyValue/PrefixValue/Watch RPCs over it.
Committing new versions is the embedding consensus engine's job, done by
calling pkg/commit.Pipeline.Commit directly in-process; stratad serve never
writes.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a YAML config file (defaults applied if omitted)")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	reg, err := registry.New(cfg.Registry.Prefixes)
	if err != nil {
		return fmt.Errorf("serve: build registry: %w", err)
	}

	backend, err := storage.Open(cfg.Backend.Path, reg)
	if err != nil {
		return fmt.Errorf("serve: open backend %q: %w", cfg.Backend.Path, err)
	}
	defer backend.Close()
	metrics.RegisterComponent("backend", true, "open")

	engine := jmt.New(backend)
	w := watch.NewService()
	w.Start()
	defer w.Stop()

	server := api.NewServer(backend, reg, engine, w)
	go func() {
		if err := server.Start(cfg.RPC.ListenAddr); err != nil {
			metrics.UpdateComponent("rpc", false, err.Error())
			log.Logger.Error().Err(err).Msg("query server exited")
		}
	}()
	defer server.Stop()
	metrics.RegisterComponent("rpc", true, "listening on "+cfg.RPC.ListenAddr)

	health := api.NewHealthServer(backend)
	go func() {
		if err := health.Start(cfg.Metrics.ListenAddr); err != nil && err != http.ErrServerClosed {
			log.Logger.Error().Err(err).Msg("health server exited")
		}
	}()

	log.Logger.Info().
		Str("rpc_addr", cfg.RPC.ListenAddr).
		Str("metrics_addr", cfg.Metrics.ListenAddr).
		Uint64("latest_version", uint64(backend.LatestVersion())).
		Msg("stratad serving")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Logger.Info().Msg("stratad shutting down")
	return nil
}
