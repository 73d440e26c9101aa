// Package server exposes neopaths searches over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/saulfrancisco-ruizacevedo/go-neopaths/models"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Searcher is the search surface served over HTTP. *neopaths.Engine implements it.
type Searcher interface {
	Regulation(ctx context.Context, req models.RegulationRequest) (*models.ResultSet, error)
	Deep(ctx context.Context, req models.DeepRequest) (*models.ResultSet, error)
	Simple(ctx context.Context, req models.SimpleRequest) (*models.ResultSet, error)
	Vertex(ctx context.Context, id string) (*models.Vertex, error)
	Ping(ctx context.Context) error
}

// Options configures the router.
type Options struct {
	// ServiceName names the otelgin spans. Defaults to "neopaths".
	ServiceName string

	Logger *zap.Logger

	// Registry receives the HTTP metrics and is served at /metrics. When nil, no
	// metrics are collected and /metrics is not mounted.
	Registry *prometheus.Registry
}

// NewRouter wires the routes, middleware and handlers.
func NewRouter(s Searcher, opts Options) *gin.Engine {
	if opts.ServiceName == "" {
		opts.ServiceName = "neopaths"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(opts.ServiceName))
	router.Use(RequestID())
	router.Use(AccessLog(opts.Logger))
	if opts.Registry != nil {
		router.Use(Instrument(NewHTTPMetrics(opts.Registry)))
	}
	router.Use(CORS())

	SetupRoutes(router, s, opts.Logger)
	if opts.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))
	}
	return router
}

// SetupRoutes registers the search endpoints on router.
func SetupRoutes(router gin.IRoutes, s Searcher, logger *zap.Logger) {
	router.POST("/regulation", Regulation(s, logger))
	router.POST("/deep", Deep(s, logger))
	router.POST("/simple", Simple(s, logger))
	router.GET("/vertices/:id", Vertex(s, logger))
	router.GET("/health", Health(s))
}

// Serve runs handler on addr until ctx is canceled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, readTimeout, writeTimeout time.Duration, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
