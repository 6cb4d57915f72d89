// Package main is the entry point for the sidero MCP server.
//
// The binary is normally launched as a subprocess by an MCP client and
// speaks JSON-RPC 2.0 over stdin/stdout until the input stream closes.
// Startup sequence:
//
// 1. Initialize logging (stderr only; stdout belongs to the protocol)
// 2. Load configuration (defaults, config file, environment)
// 3. Register the tool/prompt/resource registry
// 4. Serve the stdio transport until EOF or a fatal framing error
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"sidero/internal/auth"
	"sidero/internal/config"
	"sidero/internal/logging"
	"sidero/internal/mcp"
	"sidero/internal/semgrep"

	"github.com/spf13/cobra"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "0.3.0"

func main() {
	logger := logging.NewAppLogger()

	root := &cobra.Command{
		Use:          "sidero",
		Short:        "MCP server exposing Semgrep as tools for LLM clients",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(logger)
		},
	}

	root.AddCommand(
		serveCmd(logger),
		versionCmd(logger),
		authCmd(),
	)

	if err := root.Execute(); err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func serveCmd(logger *logging.AppLogger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP protocol on stdin/stdout until EOF",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(logger)
		},
	}
}

func runServe(logger *logging.AppLogger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Info("Configuration loaded",
		"semgrep", cfg.SemgrepPath,
		"timeout", cfg.ScanTimeout,
		"max_concurrent_scans", cfg.MaxConcurrentScans,
	)

	return mcp.NewServer(cfg, logger, version).Serve()
}

func versionCmd(logger *logging.AppLogger) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print sidero and semgrep versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("sidero %s\n", version)

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			runner := semgrep.NewRunner(cfg.SemgrepPath, 30*time.Second, 0, logger)
			if !runner.Available() {
				fmt.Printf("semgrep: not found (%s)\n", cfg.SemgrepPath)
				return nil
			}
			v, err := runner.Version(cmd.Context())
			if err != nil {
				fmt.Printf("semgrep: error (%v)\n", err)
				return nil
			}
			fmt.Printf("semgrep %s\n", v)
			return nil
		},
	}
}

func authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the Semgrep platform token used by semgrep_findings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set-token",
		Short: "Store a platform token in the OS credential store (reads one line from stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(os.Stderr, "Paste token: ")
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading token: %w", err)
			}
			if err := auth.NewCredentialManager().StoreToken(strings.TrimSpace(line)); err != nil {
				return err
			}
			fmt.Println("Token stored.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show where the platform token is configured, without revealing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(auth.NewCredentialManager().Status())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored platform token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := auth.NewCredentialManager().DeleteToken(); err != nil {
				return err
			}
			fmt.Println("Token removed.")
			return nil
		},
	})

	return cmd
}
