package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"unremark/internal/config"
	"unremark/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	noCache    bool

	// Check flags
	fixFlag    bool
	jsonOutput bool
	ignoreFlag string

	cfg *config.Config
)

// rootCmd analyses a path; it is also the parent of every subcommand.
var rootCmd = &cobra.Command{
	Use:   "unremark [path]",
	Short: "Find and remove redundant comments in source code",
	Long: `unremark extracts comments from Python, JavaScript, TypeScript, Rust and Go
sources, asks a classification service which ones merely restate the code,
and can delete them in place. Documentation comments are never touched.

Results are cached per file and reused until the file changes.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: runCheck,
}

func setup() error {
	// A missing .env is normal.
	_ = godotenv.Load()

	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg = loaded

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	if err := logging.Initialize(logging.Options{
		Level:      level,
		JSON:       cfg.Logging.JSON,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logging.Boot("run %s: config=%q provider=%s", uuid.NewString(), path, cfg.Classifier.Provider)
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $UNREMARK_CONFIG or the user config dir)")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "Do not read or write the result cache")

	rootCmd.Flags().BoolVar(&fixFlag, "fix", false, "Remove redundant comments in place")
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
	rootCmd.Flags().StringVar(&ignoreFlag, "ignore", "venv,node_modules,.git,__pycache__", "Comma-separated directories or globs to skip")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(cacheCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
