package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jward/lineage"
	"github.com/jward/lineage/internal/mcpserver"
	"github.com/jward/lineage/internal/server"
	"github.com/jward/lineage/internal/watch"
)

var (
	flagAddr string
	flagMCP  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Index, then keep the index current and answer queries",
	Long: `Indexes the root, then watches it for changes and serves chain queries over
HTTP (POST /cache, GET /classes, GET /healthz). With --mcp the same queries are
also served as MCP tools on stdin/stdout.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Index, then serve MCP tools on stdin/stdout",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (default: server.addr from config)")
	serveCmd.Flags().BoolVar(&flagMCP, "mcp", false, "also serve MCP tools on stdin/stdout")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	addr := cfg.Server.Addr
	if flagAddr != "" {
		addr = flagAddr
	}

	w := watch.New(engine.Filter(), watch.WithDebounce(cfg.Watch.Debounce), watch.WithLogger(logger))
	g, ctx := errgroup.WithContext(ctx)

	// Watch first so edits made during the initial scan are not lost.
	g.Go(func() error { return w.Run(ctx) })
	select {
	case <-w.Ready():
	case <-ctx.Done():
		return g.Wait()
	}

	if err := engine.IndexDirectory(ctx); err != nil {
		logger.Warn("serve.initial_scan_incomplete", "err", err)
	}

	g.Go(func() error { return engine.Run(ctx, w.Events()) })

	q := engine.Query()
	srv := server.New(q, server.WithLogger(logger), server.WithQueryHook(queryHook(q, "http")))
	g.Go(func() error { return srv.ListenAndServe(ctx, addr) })

	if flagMCP {
		ms := mcpserver.New(q, version, mcpserver.WithLogger(logger), mcpserver.WithQueryHook(queryHook(q, "mcp")))
		g.Go(func() error { return ms.Run(ctx) })
	}

	logger.Info("serve.ready", "root", engine.Root(), "addr", addr, "mcp", flagMCP)
	return g.Wait()
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.IndexDirectory(ctx); err != nil {
		logger.Warn("mcp.initial_scan_incomplete", "err", err)
	}
	q := engine.Query()
	ms := mcpserver.New(q, version, mcpserver.WithLogger(logger), mcpserver.WithQueryHook(queryHook(q, "mcp")))
	return ms.Run(ctx)
}

func queryHook(q *lineage.QueryBuilder, transport string) func(context.Context) {
	m := q.Metrics()
	return func(ctx context.Context) {
		m.QueryServed(ctx, transport)
	}
}
