// Package server serves chain queries over HTTP.
//
// Routes:
//
//	POST /cache          body {"file": "<abs path or key>"}
//	GET  /classes?file=  same answer
//	GET  /healthz
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jward/lineage"
)

// DefaultAddr is where the server listens unless configured otherwise.
const DefaultAddr = "127.0.0.1:25487"

const maxBody = 1 << 20

// ChainQuerier answers chain queries. *lineage.QueryBuilder satisfies it.
type ChainQuerier interface {
	Chain(ctx context.Context, file string) (map[string]*lineage.ClassInfo, error)
}

// CacheRequest is the body of POST /cache.
type CacheRequest struct {
	File string `json:"file"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server is the HTTP query transport.
type Server struct {
	q       ChainQuerier
	logger  *slog.Logger
	onQuery func(ctx context.Context)
	mux     *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithQueryHook calls fn after every successfully served chain query.
func WithQueryHook(fn func(ctx context.Context)) Option {
	return func(s *Server) {
		s.onQuery = fn
	}
}

// New creates a Server answering from q.
func New(q ChainQuerier, opts ...Option) *Server {
	s := &Server{q: q, logger: slog.Default(), mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(s)
	}
	s.mux.HandleFunc("POST /cache", s.handleCache)
	s.mux.HandleFunc("GET /classes", s.handleClasses)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server.listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		<-errCh
		return nil
	}
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	var req CacheRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	s.serveChain(w, r, req.File)
}

func (s *Server) handleClasses(w http.ResponseWriter, r *http.Request) {
	s.serveChain(w, r, r.URL.Query().Get("file"))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) serveChain(w http.ResponseWriter, r *http.Request, file string) {
	if file == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "file is required"})
		return
	}
	out, err := s.q.Chain(r.Context(), file)
	if err != nil {
		s.logger.Warn("server.chain_failed", "file", file, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if s.onQuery != nil {
		s.onQuery(r.Context())
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "response encoding failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
