// Package api serves the device over HTTP: collection access, table and
// register operations, sync control, snapshot export and import, a websocket
// event stream, and the Prometheus metrics endpoint.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/frankstormy/pincafe/internal/app"
	"github.com/frankstormy/pincafe/internal/metrics"
)

// Config holds API server configuration.
type Config struct {
	Addr string

	// Registry is served on /metrics. Nil disables the endpoint.
	Registry *prometheus.Registry

	// HTTPMetrics records request metrics when set.
	HTTPMetrics *metrics.HTTP

	Logger *zap.Logger
}

// Server is the device API server.
type Server struct {
	app     *app.App
	config  *Config
	echo    *echo.Echo
	logger  *zap.Logger
	metrics *metrics.HTTP

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server

	// closing ends event streams on Stop; Shutdown does not wait for
	// hijacked connections.
	closing   chan struct{}
	closeOnce sync.Once
}

// NewServer builds the routes over a.
func NewServer(a *app.App, config *Config) *Server {
	if config == nil {
		config = &Config{Addr: ":8080"}
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		app:     a,
		config:  config,
		echo:    echo.New(),
		logger:  logger.Named("api"),
		metrics: config.HTTPMetrics,
		closing: make(chan struct{}),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.handleError

	s.echo.Use(middleware.Recover())
	s.echo.Use(s.requestID)
	s.echo.Use(s.observe)

	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo

	e.GET("/health", s.health)
	if s.config.Registry != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler(s.config.Registry)))
	}

	api := e.Group("/api")

	collections := api.Group("/collections/:collection")
	collections.GET("", s.listRecords)
	collections.POST("", s.addRecord)
	collections.PUT("/:id", s.updateRecord)
	collections.DELETE("/:id", s.removeRecord)

	catalog := api.Group("/catalog")
	catalog.POST("/seed", s.seed)
	catalog.POST("/products", s.addProduct)
	catalog.PUT("/products/:id", s.updateProduct)
	catalog.DELETE("/products/:id", s.deleteProduct)
	catalog.POST("/categories", s.addCategory)
	catalog.PUT("/categories/:name", s.renameCategory)
	catalog.DELETE("/categories/:name", s.deleteCategory)

	tables := api.Group("/tables")
	tables.GET("", s.listTables)
	tables.PUT("", s.resizeTables)
	tables.PUT("/:id/name", s.renameTable)
	tables.POST("/:id/orders", s.addOrder)
	tables.PUT("/:id/orders/:index", s.updateOrder)
	tables.DELETE("/:id/orders/:index", s.deleteOrder)
	tables.POST("/:id/move", s.moveOrders)
	tables.POST("/:id/merge", s.mergeTables)
	tables.DELETE("/:id/merge", s.cancelMerge)
	tables.POST("/:id/timer", s.startTimer)
	tables.DELETE("/:id/timer", s.stopTimer)
	tables.POST("/:id/checkout", s.checkout)

	register := api.Group("/register")
	register.GET("/balance", s.balance)
	register.POST("/deposit", s.deposit)
	register.POST("/withdraw", s.withdraw)
	register.GET("/report", s.report)
	register.GET("/ledger", s.ledger)

	api.GET("/settings/store", s.getStoreSettings)
	api.PUT("/settings/store", s.putStoreSettings)

	api.GET("/sync/status", s.syncStatus)
	api.POST("/sync/now", s.syncNow)
	api.POST("/sync/start", s.syncStart)
	api.POST("/sync/stop", s.syncStop)
	api.PUT("/sync/settings", s.syncSettings)

	api.GET("/snapshot", s.exportSnapshot)
	api.PUT("/snapshot", s.importSnapshot)

	api.GET("/events", s.events)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.listener = ln
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("API server listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down, waiting for requests in flight until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })

	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// GetAddr returns the listening address, or the configured one before
// Start.
func (s *Server) GetAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

func (s *Server) health(c echo.Context) error {
	status := s.app.GetSyncStatus()
	return c.JSON(http.StatusOK, echo.Map{
		"status":    "ok",
		"device_id": s.app.DeviceID(),
		"online":    status.IsOnline,
	})
}
