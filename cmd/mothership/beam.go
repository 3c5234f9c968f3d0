package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mothershiphq/mothership/pkg/config"
)

var beamCmd = &cobra.Command{
	Use:   "beam <project-id>",
	Short: "Join a rift within a project and print its sync endpoint",
	Long: `Beam looks up (or creates) a rift within the given project and
prints the WebSocket endpoint mothership-agent should connect to.

Pass --write-config to also emit an agent config file, ready to run:
  mothership beam <project-id> --write-config agent.yaml
  mothership-agent --config agent.yaml --root ./my-project`,
	Args: cobra.ExactArgs(1),
	RunE: runBeam,
}

func init() {
	beamCmd.Flags().String("rift", "", "rift name to join (defaults to the project's \"main\" rift)")
	beamCmd.Flags().Bool("force", false, "force a full re-sync even if a checkpoint already exists")
	beamCmd.Flags().String("write-config", "", "write an agent config YAML file to this path")
	beamCmd.Flags().String("root", "", "project_root to record in --write-config's output")
}

func runBeam(cmd *cobra.Command, args []string) error {
	projectID := args[0]
	riftName, _ := cmd.Flags().GetString("rift")
	force, _ := cmd.Flags().GetBool("force")

	store, err := openConfigStore()
	if err != nil {
		return err
	}
	conn, err := activeConnection(store)
	if err != nil {
		return err
	}
	token, err := activeToken(store)
	if err != nil {
		return err
	}

	c, err := clientForActiveConnection()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	beam, err := c.Beam(ctx, projectID, riftName, force)
	if err != nil {
		return fmt.Errorf("failed to beam into project %s: %w", projectID, err)
	}

	fmt.Printf("Rift:       %s\n", beam.RiftID)
	fmt.Printf("Endpoint:   %s\n", beam.WebSocketURL)
	fmt.Printf("Checkpoints: %d\n", beam.CheckpointCount)
	if beam.InitialSyncRequired {
		fmt.Println("Initial sync required: the agent will pull the rift's full contents on connect.")
	}

	writeConfigPath, _ := cmd.Flags().GetString("write-config")
	if writeConfigPath == "" {
		return nil
	}

	root, _ := cmd.Flags().GetString("root")
	if root == "" {
		var err error
		root, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to resolve current directory: %w", err)
		}
	}

	agentCfg := config.DefaultAgent()
	agentCfg.ServerURL = conn.URL
	agentCfg.ProjectRoot = root
	agentCfg.ProjectID = projectID
	agentCfg.RiftID = beam.RiftID
	agentCfg.Token = token

	data, err := yaml.Marshal(agentCfg)
	if err != nil {
		return fmt.Errorf("failed to marshal agent config: %w", err)
	}
	if err := os.WriteFile(writeConfigPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write agent config %s: %w", writeConfigPath, err)
	}
	fmt.Printf("Wrote agent config to %s\n", writeConfigPath)
	return nil
}
