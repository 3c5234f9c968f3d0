package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mothershiphq/mothership/pkg/client"
)

// clientForActiveConnection builds a client.Client for whichever
// server is marked active in connections.json, authenticated with the
// cached bearer token.
func clientForActiveConnection() (*client.Client, error) {
	store, err := openConfigStore()
	if err != nil {
		return nil, err
	}
	conn, err := activeConnection(store)
	if err != nil {
		return nil, err
	}
	token, err := activeToken(store)
	if err != nil {
		return nil, err
	}
	return client.New(conn.URL, token), nil
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "List projects you can access",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := clientForActiveConnection()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		projects, err := c.Gateway(ctx, false)
		if err != nil {
			return fmt.Errorf("failed to list projects: %w", err)
		}
		if len(projects) == 0 {
			fmt.Println("No projects.")
			return nil
		}
		for _, p := range projects {
			fmt.Printf("%s\t%s\t%s\n", p.ID, p.Name, p.Description)
		}
		return nil
	},
}

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new tracked project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := clientForActiveConnection()
		if err != nil {
			return err
		}
		description, _ := cmd.Flags().GetString("description")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		project, err := c.CreateProject(ctx, args[0], description)
		if err != nil {
			return fmt.Errorf("failed to create project: %w", err)
		}
		fmt.Printf("Created project %s (%s)\n", project.Name, project.ID)
		return nil
	},
}

func init() {
	createCmd.Flags().String("description", "", "project description")
}

var deleteCmd = &cobra.Command{
	Use:   "delete <project-id>",
	Short: "Delete a project and all its rifts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := clientForActiveConnection()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := c.DeleteProject(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		fmt.Printf("Deleted project %s\n", args[0])
		return nil
	},
}
