package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/lineage"
	"github.com/jward/lineage/internal/registry"
)

var flagForce bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Scan the root and rebuild the index",
	Long:  "Indexes every matching TypeScript file under the root, drops files that no longer exist, and regenerates the artifacts once at the end.",
	Args:  cobra.NoArgs,
	RunE:  runIndex,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Regenerate the artifacts from the current index",
	Args:  cobra.NoArgs,
	RunE:  runGenerate,
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List classes still waiting for their parent",
	Args:  cobra.NoArgs,
	RunE:  runPending,
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print every class, method, global statement and tag in the index",
	Args:  cobra.NoArgs,
	RunE:  runDump,
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "delete the database and reindex from scratch")
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()

	if flagForce {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err := os.Remove(cfg.DB + suffix); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing database for --force: %w", err)
			}
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Cleared database: %s\n", cfg.DB)
	}

	engine, err := openEngine()
	if err != nil {
		return outputError(cmd.OutOrStdout(), cmd.ErrOrStderr(), "index", err)
	}
	defer engine.Close()

	ctx := cmd.Context()
	summary := CLIIndexSummary{Root: engine.Root(), Database: cfg.DB}
	if err := engine.IndexDirectory(ctx); err != nil {
		// Per-file failures leave the rest of the index usable.
		summary.Errors = err.Error()
		logger.Warn("index.incomplete", "err", err)
	}
	if err := fillSummary(ctx, engine, &summary); err != nil {
		return outputError(cmd.OutOrStdout(), cmd.ErrOrStderr(), "index", err)
	}
	summary.Duration = time.Since(start).Round(time.Millisecond).String()

	fmt.Fprintf(cmd.ErrOrStderr(), "Indexed %s in %s\n", summary.Root, summary.Duration)
	return outputResult(cmd.OutOrStdout(), CLIResult{Command: "index", Results: summary})
}

func fillSummary(ctx context.Context, engine *lineage.Engine, s *CLIIndexSummary) error {
	q := engine.Query()
	files, err := q.Files(ctx)
	if err != nil {
		return err
	}
	snap, err := q.Snapshot(ctx)
	if err != nil {
		return err
	}
	pending, err := q.Pending(ctx)
	if err != nil {
		return err
	}
	s.Files = len(files)
	s.Classes = len(snap.Classes)
	s.Pending = len(pending)
	s.Generated = []string{}
	for _, name := range []string{registry.DeclarationsFile, registry.ResetFile} {
		path := filepath.Join(engine.GeneratedDir(), name)
		if _, err := os.Stat(path); err == nil {
			s.Generated = append(s.Generated, path)
		}
	}
	return nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	engine, err := openEngine()
	if err != nil {
		return outputError(cmd.OutOrStdout(), cmd.ErrOrStderr(), "generate", err)
	}
	defer engine.Close()

	written, err := engine.Generate(cmd.Context())
	if err != nil {
		return outputError(cmd.OutOrStdout(), cmd.ErrOrStderr(), "generate", err)
	}
	if written == nil {
		written = []string{}
	}
	return outputResult(cmd.OutOrStdout(), CLIResult{Command: "generate", Results: written})
}

func runPending(cmd *cobra.Command, args []string) error {
	engine, err := openEngine()
	if err != nil {
		return outputError(cmd.OutOrStdout(), cmd.ErrOrStderr(), "pending", err)
	}
	defer engine.Close()

	classes, err := engine.Query().Pending(cmd.Context())
	if err != nil {
		return outputError(cmd.OutOrStdout(), cmd.ErrOrStderr(), "pending", err)
	}
	out := make([]CLIPending, 0, len(classes))
	for _, c := range classes {
		p := CLIPending{File: c.File, Name: c.Name}
		if c.ExpectedParent != nil {
			p.ExpectedParent = *c.ExpectedParent
		}
		if c.ExpectedParentFile != nil {
			p.ExpectedFile = *c.ExpectedParentFile
		}
		out = append(out, p)
	}
	return outputResult(cmd.OutOrStdout(), CLIResult{Command: "pending", Results: out})
}

func runDump(cmd *cobra.Command, args []string) error {
	engine, err := openEngine()
	if err != nil {
		return outputError(cmd.OutOrStdout(), cmd.ErrOrStderr(), "dump", err)
	}
	defer engine.Close()

	snap, err := engine.Query().Snapshot(cmd.Context())
	if err != nil {
		return outputError(cmd.OutOrStdout(), cmd.ErrOrStderr(), "dump", err)
	}
	return outputResult(cmd.OutOrStdout(), CLIResult{Command: "dump", Results: snap})
}
