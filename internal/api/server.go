// Package api serves article conversions over HTTP: bundle upload jobs,
// their package.json and index.html outputs, content-addressed blobs under
// /r/<digest>, the conversion catalog and a WebSocket progress feed.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/jatspkg/core/cas"
	"github.com/FocuswithJustin/jatspkg/core/convert"
	"github.com/FocuswithJustin/jatspkg/core/resource"
	"github.com/FocuswithJustin/jatspkg/internal/catalog"
	"github.com/FocuswithJustin/jatspkg/internal/logging"
	"github.com/FocuswithJustin/jatspkg/internal/server"
)

// Config holds server settings.
type Config struct {
	Addr string
	// WorkDir holds one directory per job: the upload, the unpacked
	// bundle and the outputs.
	WorkDir        string
	APIKey         string
	RateLimit      float64 // requests per second per client, 0 disables
	RateBurst      int
	MaxUploadBytes int64
	AllowedOrigins []string
	// BlobHost is the origin rendered articles load content-hash links
	// from; it is added to their img-src policy.
	BlobHost string
}

// Server is the API server.
type Server struct {
	cfg      Config
	conv     *convert.Converter
	unpacker resource.Unpacker
	store    *cas.Store
	catalog  *catalog.Catalog
	jobs     *JobStore
	hub      *Hub
	limiter  *RateLimiter
	upgrader websocket.Upgrader

	ctx     context.Context
	stop    context.CancelFunc
	running sync.WaitGroup
}

// New creates a server converting with opts. opts.Unpacker unpacks
// uploads as well as nested archives. cat may be nil.
func New(cfg Config, opts convert.Options, cat *catalog.Catalog) (*Server, error) {
	if err := ValidateAPIKey(cfg.APIKey); err != nil {
		return nil, err
	}
	if opts.Unpacker == nil {
		return nil, fmt.Errorf("no unpacker configured")
	}
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("work directory is required")
	}
	if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		unpacker: opts.Unpacker,
		store:    opts.Store,
		catalog:  cat,
		jobs:     NewJobStore(),
		hub:      NewHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
		},
		ctx:  ctx,
		stop: stop,
	}
	if cfg.RateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}

	next := opts.Observer
	opts.Observer = func(ctx context.Context, stage string) {
		s.observe(ctx, stage)
		if next != nil {
			next(ctx, stage)
		}
	}
	s.conv = convert.New(opts)

	go s.hub.Run(ctx)
	if s.limiter != nil {
		go s.prune(ctx)
	}
	return s, nil
}

// Handler returns the full middleware chain around the routes.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.routes()
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	h = AuthMiddleware(s.cfg.APIKey, h)
	h = server.SecurityHeaders(server.APICSP(), h)
	h = server.CORS(s.cfg.AllowedOrigins, h)
	return logging.CombinedMiddleware(h)
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /jobs", s.handleCreateJob)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("DELETE /jobs/{id}", s.handleDeleteJob)
	mux.HandleFunc("GET /jobs/{id}/{file}", s.handleJobOutput)
	mux.HandleFunc("GET "+blobPrefix+"{digest}", s.handleBlob)
	mux.HandleFunc("GET /conversions", s.handleListConversions)
	mux.HandleFunc("GET /conversions/{article}", s.handleGetConversion)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

// ListenAndServe serves until ctx is done, then shuts down gracefully and
// cancels running jobs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logging.ServerStartup("rest_api", "http", s.cfg.Addr,
		"work_dir", s.cfg.WorkDir,
		"auth", s.cfg.APIKey != "",
		"rate_limit", s.cfg.RateLimit,
		"blob_store", s.store != nil,
		"catalog", s.catalog != nil)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		s.Close()
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close cancels running jobs, waits for them and stops the hub.
func (s *Server) Close() {
	s.stop()
	s.running.Wait()
}

func (s *Server) prune(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Prune()
		}
	}
}

func (s *Server) jobDir(id string) string {
	return filepath.Join(s.cfg.WorkDir, id)
}
