package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sebcbi1/postgres-mcp/internal/config"
	"github.com/sebcbi1/postgres-mcp/internal/logging"
	"github.com/sebcbi1/postgres-mcp/internal/server"
)

const version = "v0.2.0"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "postgres-mcp-server",
	Short: "Read-only PostgreSQL MCP server with configuration discovery",
	Long: `A Model Context Protocol (MCP) server exposing safe PostgreSQL access
to AI clients: statements are classified before execution, sessions run
read-only, and connection settings are discovered from the project tree.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("database-url", "d", "", "PostgreSQL connection URI (overrides MCP_DATABASE)")
	rootCmd.PersistentFlags().StringP("project-dir", "p", "", "Project directory for discovery and .env (overrides CLIENT_CWD)")
	rootCmd.PersistentFlags().Bool("read-only", true, "Reject statements not classified as reads (overrides MCP_READ_ONLY)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides MCP_LOG_LEVEL)")
	rootCmd.PersistentFlags().String("log-file", "", "Also write logs to this file (overrides MCP_LOG_FILE)")

	stdioCmd := &cobra.Command{
		Use:   "stdio",
		Short: "Run over stdio transport (for local MCP clients)",
		RunE:  runStdioServer,
	}
	rootCmd.AddCommand(stdioCmd)
}

func runStdioServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Flags win over environment and .env values, but only when set.
	if cmd.Flags().Changed("database-url") {
		cfg.DatabaseURL, _ = cmd.Flags().GetString("database-url")
	}
	if cmd.Flags().Changed("project-dir") {
		cfg.ProjectDir, _ = cmd.Flags().GetString("project-dir")
	}
	if cmd.Flags().Changed("read-only") {
		cfg.ReadOnly, _ = cmd.Flags().GetBool("read-only")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("log-file") {
		cfg.Log.OutputFile, _ = cmd.Flags().GetString("log-file")
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	return server.RunStdioServer(server.MCPServerConfig{
		Version: version,
		Config:  cfg,
		Logger:  logger,
	})
}
