package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/oxhq/mcpwire/mcp"
	"github.com/oxhq/mcpwire/mcp/prompts"
	"github.com/oxhq/mcpwire/mcp/resources"
	"github.com/oxhq/mcpwire/mcp/tools"
)

var (
	flagDatabaseURL  string
	flagDebug        bool
	flagName         string
	flagResourceDir  string
	flagResourceGlob string
)

var rootCmd = &cobra.Command{
	Use:   "mcpwire",
	Short: "mcpwire - MCP server over stdio with demonstration components",
	Long: `mcpwire serves the Model Context Protocol over stdio.

The built-in echo and calculate tools, a demo prompt and the optional
directory resources make it usable as a protocol test peer out of the box.

Examples:
  mcpwire
  mcpwire --debug
  mcpwire --db ./mcpwire.db
  mcpwire --resource-dir ./docs --resource-glob '**/*.md'`,
	RunE: runServer,
}

func init() {
	// Load .env file if it exists
	godotenv.Load()

	rootCmd.Flags().StringVar(&flagDatabaseURL, "db", os.Getenv("MCPWIRE_DB"), "Session transcript database DSN (sqlite path or libsql URL); empty disables persistence")
	rootCmd.Flags().BoolVarP(&flagDebug, "debug", "d", os.Getenv("MCPWIRE_DEBUG") == "1", "Enable debug logging to stderr")
	rootCmd.Flags().StringVar(&flagName, "name", "mcpwire", "Server name advertised during initialize")
	rootCmd.Flags().StringVar(&flagResourceDir, "resource-dir", "", "Directory to expose as file resources")
	rootCmd.Flags().StringVar(&flagResourceGlob, "resource-glob", "**", "Glob filter for --resource-dir files")
}

func runServer(cmd *cobra.Command, args []string) error {
	config := mcp.DefaultConfig()
	config.Name = flagName
	config.DatabaseURL = flagDatabaseURL
	config.Debug = flagDebug

	server, err := mcp.NewStdioServer(config)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer server.Close()

	if err := server.RegisterTool(tools.Echo()); err != nil {
		return err
	}
	if err := server.RegisterTool(tools.Calculate()); err != nil {
		return err
	}

	summarize := prompts.NewPrompt("summarize").
		WithDescription("Summarize the supplied text").
		WithArgument("text", "Text to summarize", true).
		WithTemplate("Summarize the following text in a few sentences:\n\n{{text}}").
		Build()
	if err := server.RegisterPrompt(summarize); err != nil {
		return err
	}

	if err := server.RegisterResource(resources.NewStaticResource(
		"server-info",
		"Server name and protocol revision",
		"mcpwire://server/info",
		"application/json",
		fmt.Sprintf(`{"name":%q,"protocolVersion":%q}`, flagName, mcp.ProtocolVersion),
	)); err != nil {
		return err
	}

	if flagResourceDir != "" {
		fileResources, err := resources.DirectoryResources(flagResourceDir, flagResourceGlob, "text/plain")
		if err != nil {
			return fmt.Errorf("scan resource directory: %w", err)
		}
		for _, resource := range fileResources {
			if err := server.RegisterResource(resource); err != nil {
				return err
			}
		}
	}

	server.SetInstructions("Use tools/list to discover available actions, then call tools/call with the requested name.")

	return server.Start()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
