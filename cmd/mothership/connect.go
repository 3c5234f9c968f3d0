package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mothershiphq/mothership/pkg/client"
	"github.com/mothershiphq/mothership/pkg/clientconfig"
)

var connectCmd = &cobra.Command{
	Use:   "connect <server-url>",
	Short: "Register a server and cache a bearer token for it",
	Long: `Connect records a named server connection and caches the bearer
token used to authenticate against it. Token issuance itself happens
out of band (an OAuth device flow, or a token handed out by an
administrator); connect just stores what you already have.

Examples:
  mothership connect https://mothership.example.com --token $TOKEN
  mothership connect https://mothership.example.com --token $TOKEN --name staging`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().String("token", "", "bearer token to authenticate with (required)")
	connectCmd.Flags().String("name", "default", "name to register this connection under")
	_ = connectCmd.MarkFlagRequired("token")
}

func runConnect(cmd *cobra.Command, args []string) error {
	serverURL := args[0]
	token, _ := cmd.Flags().GetString("token")
	name, _ := cmd.Flags().GetString("name")

	store, err := openConfigStore()
	if err != nil {
		return err
	}

	c := client.New(serverURL, token)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := c.Health(ctx); err != nil {
		return fmt.Errorf("failed to reach %s: %w", serverURL, err)
	}

	conns, err := store.LoadConnections()
	if err != nil {
		return err
	}
	conns.Servers[name] = clientconfig.ServerConnection{
		Name:        name,
		URL:         serverURL,
		AuthMethod:  "bearer",
		ConnectedAt: time.Now(),
	}
	conns.ActiveServer = name
	if err := store.SaveConnections(conns); err != nil {
		return err
	}

	if err := store.SaveCredentials(clientconfig.Credentials{
		AccessToken: token,
		StoredAt:    time.Now(),
	}); err != nil {
		return err
	}

	fmt.Printf("Connected to %s as %q\n", serverURL, name)
	return nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the cached bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openConfigStore()
		if err != nil {
			return err
		}
		if err := store.ClearCredentials(); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}
