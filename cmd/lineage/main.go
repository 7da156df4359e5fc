package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/lineage"
	"github.com/jward/lineage/internal/config"
	"github.com/jward/lineage/internal/metrics"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	flagConfig     string
	flagRoot       string
	flagDB         string
	flagFormat     string
	flagLogLevel   string
	flagScriptsDir string
)

// Loaded by the root command's PersistentPreRunE.
var (
	cfg    *config.Config
	logger *slog.Logger
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "lineage",
	Short:         "Incremental class-hierarchy index for TypeScript",
	Long:          "Lineage indexes the classes of a TypeScript project with tree-sitter, keeps their parent chains current as files change, and answers chain queries over HTTP, MCP or the command line.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg = c
		logger = cfg.Log.Logger(os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
	// No Run — prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: lineage.yaml in the root)")
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", "", "source root (default: repository root of the working directory)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: .lineage/index.db relative to the root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text|yaml")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&flagScriptsDir, "scripts-dir", "", "load artifact scripts from disk instead of the embedded ones")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(mcpCmd)
}

// loadConfig layers flags over lineage.yaml, LINEAGE_* variables and
// defaults. Without --root, the root is the repository containing the
// working directory.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	root := flagRoot
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting cwd: %w", err)
		}
		root = findRepoRoot(cwd)
	}
	v, err := config.New(flagConfig, root)
	if err != nil {
		return nil, err
	}
	v.SetDefault("root", root)

	flags := cmd.Flags()
	if flags.Changed("root") {
		v.Set("root", flagRoot)
	}
	if flags.Changed("db") {
		db, err := filepath.Abs(flagDB)
		if err != nil {
			return nil, fmt.Errorf("resolving --db: %w", err)
		}
		v.Set("db", db)
	}
	if flags.Changed("log-level") {
		v.Set("log.level", flagLogLevel)
	}
	return config.Load(v)
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root without finding .git.
			return startDir
		}
		dir = parent
	}
}

// openEngine builds an Engine from the loaded config.
func openEngine() (*lineage.Engine, error) {
	m, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("creating metrics: %w", err)
	}
	opts := []lineage.Option{
		lineage.WithLogger(logger),
		lineage.WithMetrics(m),
		lineage.WithImportPrefix(cfg.ImportPrefix),
		lineage.WithGeneratedDir(cfg.GeneratedDir),
		lineage.WithInclude(cfg.Watch.Include...),
		lineage.WithExclude(cfg.Watch.Exclude...),
	}
	if flagScriptsDir != "" {
		opts = append(opts, lineage.WithScriptsFS(os.DirFS(flagScriptsDir)))
	}
	e, err := lineage.New(cfg.DB, cfg.Root, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return e, nil
}
