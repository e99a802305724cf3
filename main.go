package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	version     = "0.7.0"
	serverName  = "noah-server"
	description = "Clinical analytics dashboard backend and MCP server"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     serverName,
	Short:   description,
	Version: version,
	Long: `noah-server serves the NOAH dashboard pages over HTTP and exposes the
same tables, text matching and progress note search as MCP tools.

Example usage:
  noah-server serve                     # HTTP API on NOAH_PORT
  noah-server mcp                       # MCP server on stdio
  noah-server --config ./noah.yaml serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./noah.yaml or ~/.config/noah/noah.yaml)")
	rootCmd.AddCommand(serveCmd, mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serverName, err)
		os.Exit(1)
	}
}
