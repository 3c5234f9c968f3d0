package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mothershiphq/mothership/pkg/auth"
	"github.com/mothershiphq/mothership/pkg/bus"
	"github.com/mothershiphq/mothership/pkg/checkpoint"
	"github.com/mothershiphq/mothership/pkg/conflict"
	"github.com/mothershiphq/mothership/pkg/config"
	"github.com/mothershiphq/mothership/pkg/httpapi"
	"github.com/mothershiphq/mothership/pkg/livestate"
	"github.com/mothershiphq/mothership/pkg/log"
	"github.com/mothershiphq/mothership/pkg/manager"
	"github.com/mothershiphq/mothership/pkg/metrics"
	"github.com/mothershiphq/mothership/pkg/reconciler"
	"github.com/mothershiphq/mothership/pkg/session"
	"github.com/mothershiphq/mothership/pkg/storage"
	"github.com/mothershiphq/mothership/pkg/store"
	"github.com/mothershiphq/mothership/pkg/txn"
	"github.com/mothershiphq/mothership/pkg/types"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "mothership-server",
	Short:   "Mothership sync server",
	Long:    "mothership-server hosts the central object store, checkpoint graph, and per-rift sync bus that mothership clients connect to.",
	Version: Version,
	RunE:    runServe,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("mothership-server version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.Flags().String("config", "", "path to a server config YAML file (defaults are used if omitted)")
	rootCmd.Flags().String("log-level", "", "override the config's log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "force JSON log output regardless of config")

	cobra.OnInitialize(func() {})
}

// lazyLoader breaks the livestate<->checkpoint construction cycle:
// livestate.Cache needs a Loader before the checkpoint.Engine it will
// forward to exists, so the engine is filled in after both are built.
type lazyLoader struct {
	engine *checkpoint.Engine
}

func (l *lazyLoader) FilesAtLatestCheckpoint(riftID string) (map[string]string, error) {
	return l.engine.FilesAtLatestCheckpoint(riftID)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultServer()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.LoadServer(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if jsonOut, _ := cmd.Flags().GetBool("log-json"); jsonOut {
		cfg.Log.JSONOutput = true
	}

	log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSONOutput})
	logger := log.WithComponent("server")

	if cfg.Auth.JWTSigningKey == "" {
		return fmt.Errorf("auth.jwt_signing_key must be set in the server config")
	}

	if err := os.MkdirAll(cfg.StorageRoot, 0o755); err != nil {
		return fmt.Errorf("failed to create storage root: %w", err)
	}

	objects, err := store.New(cfg.StorageRoot)
	if err != nil {
		return fmt.Errorf("failed to open object store: %w", err)
	}

	db, err := storage.NewBoltStore(cfg.StorageRoot)
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer db.Close()

	mgr, err := manager.New(manager.Config{
		ReplicaID: cfg.Raft.ReplicaID,
		BindAddr:  cfg.Raft.BindAddr,
		DataDir:   cfg.DataDir,
		Store:     db,
	})
	if err != nil {
		return fmt.Errorf("failed to create replica manager: %w", err)
	}
	if cfg.Raft.Bootstrap {
		if err := mgr.Bootstrap(); err != nil {
			return fmt.Errorf("failed to bootstrap raft cluster: %w", err)
		}
	} else {
		if err := mgr.Join(); err != nil {
			return fmt.Errorf("failed to start raft for join: %w", err)
		}
		logger.Warn().Msg("replica started in join mode; an existing leader must call AddVoter for this replica to take part in consensus")
	}

	loader := &lazyLoader{}
	live := livestate.New(loader)
	checkpoints := checkpoint.New(objects, mgr, db, live)
	loader.engine = checkpoints

	if cfg.Checkpoint.AutoInterval > 0 {
		logger.Info().Dur("interval", cfg.Checkpoint.AutoInterval).Int("retention_cap", cfg.Checkpoint.RetentionCap).Msg("auto-checkpointing configured via project settings")
	}

	txns := txn.New(objects, db, live, 5*time.Minute)
	conflicts := conflict.New(db, live)
	verifier := auth.New([]byte(cfg.Auth.JWTSigningKey), db)
	wsBus := bus.New()

	recon := reconciler.New(db, checkpoints)
	recon.Start()
	logger.Info().Msg("reconciler started")

	defaultSettings := types.ProjectSettings{
		AutoCheckpointInterval: cfg.Checkpoint.AutoInterval,
		RetentionCap:           cfg.Checkpoint.RetentionCap,
	}
	api := httpapi.New(db, mgr, verifier, checkpoints, defaultSettings)
	hub := session.NewHub(db, verifier, wsBus, live, checkpoints, txns, conflicts, cfg.Raft.ReplicaID)
	api.Router().HandleFunc("/sync/{riftID}", hub.HandleSync)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
		IdleTimeout:  60 * time.Second,
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("sync server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("sync server error: %w", err)
		}
	}()
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics endpoint listening")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error, shutting down")
	}

	recon.Stop()
	_ = srv.Close()
	_ = metricsSrv.Close()
	if err := mgr.Shutdown(); err != nil {
		return fmt.Errorf("failed to shut down raft: %w", err)
	}

	logger.Info().Msg("shutdown complete")
	return nil
}
