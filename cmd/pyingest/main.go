package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dshills/pyingest/internal/config"
	"github.com/dshills/pyingest/internal/logging"
	"github.com/dshills/pyingest/internal/mcp"
	"github.com/dshills/pyingest/internal/storage"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// globalFlags are the persistent flags shared by every command
type globalFlags struct {
	configPath string
	verbose    bool
	logFormat  string
	noColor    bool
}

var (
	globals globalFlags

	// cfg and logger are set by the root command before any subcommand runs
	cfg    *config.Config
	logger *logrus.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pyingest",
		Short: "Extract, chunk and store the structure of Python repositories",
		Long: `pyingest - Python source ingestion

Walks a repository, extracts functions, classes, methods and modules from
Python files with derived metrics, splits documentation and configuration
text into bounded chunks, and stores every chunk with optional embeddings.

Configuration is read from --config, ./pyingest.yaml or
~/.pyingest/config.yaml, then overridden by INGEST_* environment variables.`,
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	root.PersistentFlags().StringVar(&globals.configPath, "config", "", "Config file path")
	root.PersistentFlags().BoolVarP(&globals.verbose, "verbose", "v", false, "Debug logging")
	root.PersistentFlags().StringVar(&globals.logFormat, "log-format", "", "Log format: text or json")
	root.PersistentFlags().BoolVar(&globals.noColor, "no-color", false, "Disable colored output")

	root.SetVersionTemplate(`pyingest {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	root.AddCommand(
		newIngestCmd(),
		newParseCmd(),
		newChunkCmd(),
		newSearchCmd(),
		newEmbedCmd(),
		newRunsCmd(),
		newShowCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
	return root
}

func setup(cmd *cobra.Command, args []string) error {
	color.NoColor = color.NoColor || globals.noColor

	loaded, err := config.Load(globals.configPath)
	if err != nil {
		return err
	}
	if globals.verbose {
		loaded.Log.Level = "debug"
	}
	if globals.logFormat != "" {
		loaded.Log.Format = globals.logFormat
	}

	l, err := logging.New(loaded.Log, os.Stderr)
	if err != nil {
		return err
	}
	cfg, logger = loaded, l
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pyingest %s\n", Version)
			fmt.Fprintf(out, "Build time: %s\n", BuildTime)
			fmt.Fprintf(out, "Git commit: %s\n", GitCommit)
			fmt.Fprintf(out, "SQLite driver: %s (%s)\n", storage.DriverName, storage.BuildMode)
			fmt.Fprintf(out, "MCP server: %s %s\n", mcp.ServerName, mcp.ServerVersion)
		},
	}
}
