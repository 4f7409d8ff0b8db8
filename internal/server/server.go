// Package server exposes diagnosis, irrigation and dashboard endpoints over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"leafscan/internal/archive"
	"leafscan/internal/irrigation"
	"leafscan/internal/logger"
	"leafscan/internal/telemetry"
	"leafscan/internal/voting"

	"github.com/gin-gonic/gin"
)

// Diagnoser is the inference side of the service.
type Diagnoser interface {
	Ready() bool
	Diagnose(ctx context.Context, data []byte, format string) (voting.Result, error)
}

type Options struct {
	Addr             string
	CORSOrigins      []string
	MaxUploadBytes   int64
	TankHeightCm     float64
	DashboardPlantID int
	// StaticDir is served under /static/images when set.
	StaticDir string
}

type Dependencies struct {
	Diagnoser Diagnoser
	Pump      *irrigation.Controller
	Store     telemetry.Store
	Archive   *archive.Archive
	Catalogue *telemetry.Catalogue
}

type Server struct {
	opts   Options
	deps   Dependencies
	logger logger.Logger
	engine *gin.Engine
	http   *http.Server
}

func New(log logger.Logger, opts Options, deps Dependencies) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 16 << 20
	}
	if deps.Catalogue == nil {
		deps.Catalogue = telemetry.NewCatalogue(nil)
	}

	engine := gin.New()
	engine.MaxMultipartMemory = opts.MaxUploadBytes

	s := &Server{
		opts:   opts,
		deps:   deps,
		logger: log,
		engine: engine,
	}

	engine.Use(s.recovery(), s.requestLogger(), corsPolicy(opts.CORSOrigins))
	s.routes()

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.health)

	iot := s.engine.Group("/iot")
	iot.POST("/soil-data", s.soilData)
	iot.POST("/water-level", s.waterLevel)
	iot.POST("/detect-disease", s.detectDisease)

	web := s.engine.Group("/web")
	web.POST("/manual-control", s.manualControl)
	web.GET("/chart-data/:tanaman_id", s.chartData)
	web.GET("/dashboard-metrics", s.dashboardMetrics)
	web.GET("/diagnoses/:tanaman_id", s.diagnoses)

	if s.opts.StaticDir != "" {
		s.engine.Static("/static/images", s.opts.StaticDir)
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks until the listener fails or Shutdown is called. A clean
// shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("HTTPServer", "listening", logger.Fields{
		"addr":            s.opts.Addr,
		"inference_ready": s.deps.Diagnoser != nil && s.deps.Diagnoser.Ready(),
	})

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTPServer", "shutdown started", nil)
	return s.http.Shutdown(ctx)
}
