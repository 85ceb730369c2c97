package dashboardhttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"radar/internal/analysis"
	"radar/internal/analysis/visual"
	"radar/internal/ingest"
	"radar/internal/logger"
	"radar/internal/snapshot"

	"github.com/gin-gonic/gin"
)

const (
	defaultAddr           = ":8080"
	defaultMaxUploadBytes = 32 << 20
)

// Server exposes uploads, snapshots, diffs, reports and charts over HTTP.
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig lists the server's dependencies. Uploads and Archive are optional.
type ServerConfig struct {
	Addr           string
	Index          *snapshot.Index
	Analysis       *analysis.Service
	Ingest         *ingest.Service
	Uploads        UploadLog
	Archive        Archive
	MaxUploadBytes int64
	// PNG renders a chart to an image; defaults to headless Chrome.
	PNG func(ctx context.Context, c visual.Chart) ([]byte, error)
}

// NewServer builds the gin engine and registers every route.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Index == nil || cfg.Analysis == nil || cfg.Ingest == nil {
		return nil, errors.New("dashboard http server requires index, analysis and ingest")
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.PNG == nil {
		cfg.PNG = visual.RenderPNG
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.MaxMultipartMemory = cfg.MaxUploadBytes
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	h := &handlers{cfg: cfg}
	h.registerAPI(router.Group("/api"))
	h.registerCharts(router.Group("/charts"))

	return &Server{addr: cfg.Addr, router: router}, nil
}

// requestLogger records every request at debug level.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path += "?" + q
		}
		c.Next()
		logger.Slog().Debug("http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"ip", c.ClientIP(),
			"dur", time.Since(start))
	}
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("dashboard listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
