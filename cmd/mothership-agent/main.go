package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mothershiphq/mothership/pkg/agent"
	"github.com/mothershiphq/mothership/pkg/config"
	"github.com/mothershiphq/mothership/pkg/log"
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
	Use:     "mothership-agent",
	Short:   "Mothership sync agent",
	Long:    "mothership-agent watches a project directory and mirrors file changes to a mothership rift over a persistent connection.",
	Version: Version,
	RunE:    runAgent,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("mothership-agent version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.Flags().String("config", "", "path to an agent config YAML file (defaults are used if omitted)")
	rootCmd.Flags().String("server", "", "override the config's server_url")
	rootCmd.Flags().String("root", "", "override the config's project_root")
	rootCmd.Flags().String("project-id", "", "override the config's project_id")
	rootCmd.Flags().String("rift-id", "", "override the config's rift_id")
	rootCmd.Flags().String("token", "", "override the config's token")
	rootCmd.Flags().String("log-level", "", "override the config's log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "force JSON log output regardless of config")

	cobra.OnInitialize(func() {})
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultAgent()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.LoadAgent(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	applyStringFlag(cmd, "server", &cfg.ServerURL)
	applyStringFlag(cmd, "root", &cfg.ProjectRoot)
	applyStringFlag(cmd, "project-id", &cfg.ProjectID)
	applyStringFlag(cmd, "rift-id", &cfg.RiftID)
	applyStringFlag(cmd, "token", &cfg.Token)
	applyStringFlag(cmd, "log-level", &cfg.Log.Level)
	if jsonOut, _ := cmd.Flags().GetBool("log-json"); jsonOut {
		cfg.Log.JSONOutput = true
	}

	if cfg.ServerURL == "" {
		return fmt.Errorf("server_url is required (set it in the config file or pass --server)")
	}
	if cfg.ProjectRoot == "" {
		return fmt.Errorf("project_root is required (set it in the config file or pass --root)")
	}
	if cfg.ProjectID == "" || cfg.RiftID == "" {
		return fmt.Errorf("project_id and rift_id are required (set them in the config file or pass --project-id/--rift-id)")
	}
	if cfg.Token == "" {
		return fmt.Errorf("token is required (set it in the config file or pass --token); run `mothership beam` to obtain one")
	}

	log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSONOutput})
	logger := log.WithComponent("agent-cli")

	a, err := agent.New(agent.Config{
		ProjectID:      cfg.ProjectID,
		RiftID:         cfg.RiftID,
		Root:           cfg.ProjectRoot,
		ServerURL:      cfg.ServerURL,
		Token:          cfg.Token,
		LastCheckpoint: cfg.LastCheckpoint,
		IgnoreExtra:    cfg.WatcherIgnore,
	})
	if err != nil {
		return fmt.Errorf("failed to start agent: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutdown signal received")
		cancel()
	}()

	a.Run(ctx)
	return nil
}

func applyStringFlag(cmd *cobra.Command, name string, dst *string) {
	if v, _ := cmd.Flags().GetString(name); v != "" {
		*dst = v
	}
}
