// Package main implements ragctl, a command-line client for the ragd HTTP API.
package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

const tenantEnv = "RAGCTL_TENANT"

var (
	// serverURL is the base URL for the ragd HTTP server
	serverURL string
	// tenantToken is sent in the tenant header
	tenantToken string
	timeout     time.Duration
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "CLI for ragd HTTP server operations",
	Long: `ragctl is a command-line interface for the ragd document question answering server.
It manages tenants, uploads and removes PDF documents, and asks questions.

The tenant token is taken from --tenant or the RAGCTL_TENANT environment variable.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8000", "ragd server URL")
	rootCmd.PersistentFlags().StringVar(&tenantToken, "tenant", os.Getenv(tenantEnv), "tenant token (env "+tenantEnv+")")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "request timeout")

	rootCmd.AddCommand(tenantCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("ragctl %s\n", version)
	},
}
