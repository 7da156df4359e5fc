package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/jward/lineage"
	"github.com/jward/lineage/internal/client"
	"github.com/jward/lineage/internal/suggest"
)

var flagRemote bool

var queryCmd = &cobra.Command{
	Use:   "query <file>",
	Short: "Print the classes of a file with their parent chains",
	Long:  "Prints every class defined in <file>, keyed by class name, with its tags, methods and ancestor chain (nearest first). <file> may be a path or a root-relative key.",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().BoolVar(&flagRemote, "remote", false, "ask the running server instead of reading the database")
}

func runQuery(cmd *cobra.Command, args []string) error {
	file, err := resolveFileArg(args[0])
	if err != nil {
		return outputError(cmd.OutOrStdout(), cmd.ErrOrStderr(), "query", err)
	}
	ctx := cmd.Context()

	if flagRemote {
		out, err := client.New(cfg.Server.Addr).Chain(ctx, file)
		if err != nil {
			return outputError(cmd.OutOrStdout(), cmd.ErrOrStderr(), "query", err)
		}
		return outputResult(cmd.OutOrStdout(), CLIResult{Command: "query", Results: out})
	}

	engine, err := openEngine()
	if err != nil {
		return outputError(cmd.OutOrStdout(), cmd.ErrOrStderr(), "query", err)
	}
	defer engine.Close()

	q := engine.Query()
	out, err := q.Chain(ctx, file)
	if err != nil {
		return outputError(cmd.OutOrStdout(), cmd.ErrOrStderr(), "query", err)
	}
	if len(out) == 0 {
		hintUnindexed(ctx, cmd.ErrOrStderr(), q, file)
	}
	return outputResult(cmd.OutOrStdout(), CLIResult{Command: "query", Results: out})
}

// resolveFileArg makes a path argument absolute when it names something
// relative to the working directory, and leaves index keys alone.
func resolveFileArg(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	// Inside the root the absolute path maps back to a key; outside it the
	// argument is taken as a key already.
	if rel, err := filepath.Rel(cfg.Root, abs); err == nil && filepath.IsLocal(rel) {
		return abs, nil
	}
	return file, nil
}

// hintUnindexed tells the user when file is not in the index at all, with
// the closest indexed key if one is similar enough.
func hintUnindexed(ctx context.Context, w io.Writer, q *lineage.QueryBuilder, file string) {
	key, err := q.Key(file)
	if err != nil {
		fmt.Fprintf(w, "note: %s is outside the root %s\n", file, cfg.Root)
		return
	}
	files, err := q.Files(ctx)
	if err != nil || slices.Contains(files, key) {
		return
	}
	if s, ok := suggest.Closest(key, files); ok {
		fmt.Fprintf(w, "note: %s is not indexed; did you mean %s?\n", key, s)
		return
	}
	fmt.Fprintf(w, "note: %s is not indexed\n", key)
}
