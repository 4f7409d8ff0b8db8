// Package app wires configuration, inference and the HTTP API into one
// process with ordered shutdown.
package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"leafscan/internal/archive"
	"leafscan/internal/config"
	"leafscan/internal/irrigation"
	"leafscan/internal/logger"
	"leafscan/internal/model"
	"leafscan/internal/opencv/memory"
	"leafscan/internal/pipeline"
	"leafscan/internal/server"
	"leafscan/internal/telemetry"
)

const (
	AppName    = "LeafScan"
	AppVersion = "1.0.0"
)

type shutdownHandler interface {
	Shutdown()
}

type shutdownFunc func()

func (f shutdownFunc) Shutdown() { f() }

type Application struct {
	config        *config.Config
	logger        logger.Logger
	memoryManager *memory.Manager
	service       *pipeline.Service
	server        *server.Server
	shutdownables []shutdownHandler
	ctx           context.Context
	cancel        context.CancelFunc
	shutdown      chan struct{}
	stopped       chan struct{}
	once          sync.Once
}

// NewApplication builds every component. A model that fails to load leaves
// the service running with inference reported as unavailable.
func NewApplication(cfg *config.Config, log logger.Logger) (*Application, error) {
	log.Info("Application", "starting application", map[string]interface{}{
		"name":       AppName,
		"version":    AppVersion,
		"model_dir":  cfg.Model.Dir,
		"log_level":  cfg.Logging.Level,
		"listen":     cfg.Server.Addr,
		"image_dir":  cfg.Storage.ImageDir,
		"mirror_dir": cfg.Storage.MirrorDirs,
	})

	memoryManager := memory.NewManager(log, cfg.Memory.MaxBytes)

	bundle, err := model.Load(cfg.Model.Dir)
	if err != nil {
		log.Warning("ModelLoader", "model not loaded, inference unavailable", map[string]interface{}{
			"dir":     cfg.Model.Dir,
			"error":   err.Error(),
			"missing": errors.Is(err, model.ErrArtifactMissing),
		})
		bundle = nil
	} else {
		log.Info("ModelLoader", "model loaded", map[string]interface{}{
			"dir":        cfg.Model.Dir,
			"classifier": bundle.Classifier.Kind(),
			"classes":    len(bundle.Labels),
			"features":   bundle.Classifier.NumFeatures(),
		})
	}

	service, err := pipeline.NewService(log, memoryManager, bundle, ScanParams(cfg))
	if err != nil {
		memoryManager.Shutdown()
		return nil, err
	}

	pump, err := irrigation.NewController(log, irrigation.Thresholds{
		Dry: cfg.Irrigation.DryThreshold,
		Wet: cfg.Irrigation.WetThreshold,
	})
	if err != nil {
		memoryManager.Shutdown()
		return nil, err
	}

	arc, err := archive.New(log, cfg.Storage.ImageDir, cfg.Storage.MirrorDirs)
	if err != nil {
		memoryManager.Shutdown()
		return nil, err
	}

	srv := server.New(log, server.Options{
		Addr:             cfg.Server.Addr,
		CORSOrigins:      cfg.Server.CORSOrigins,
		MaxUploadBytes:   cfg.Server.MaxUploadMB << 20,
		TankHeightCm:     cfg.Irrigation.TankHeightCm,
		DashboardPlantID: cfg.Irrigation.DashboardPlantID,
		StaticDir:        cfg.Storage.ImageDir,
	}, server.Dependencies{
		Diagnoser: service,
		Pump:      pump,
		Store:     telemetry.NewMemoryStore(),
		Archive:   arc,
		Catalogue: Catalogue(cfg),
	})

	ctx, cancel := context.WithCancel(context.Background())
	application := &Application{
		config:        cfg,
		logger:        log,
		memoryManager: memoryManager,
		service:       service,
		server:        srv,
		ctx:           ctx,
		cancel:        cancel,
		shutdown:      make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	application.shutdownables = []shutdownHandler{
		memoryManager,
		shutdownFunc(application.stopServer),
	}

	log.Info("Application", "initialization complete", map[string]interface{}{
		"inference_ready": service.Ready(),
	})
	return application, nil
}

// ScanParams maps the scan section of cfg.
func ScanParams(cfg *config.Config) pipeline.ScanParams {
	return pipeline.ScanParams{
		Resolution:  cfg.Scan.Resolution,
		PatchSize:   cfg.Scan.PatchSize,
		MinCoverage: cfg.Scan.MinCoverage,
		BlurKernel:  cfg.Scan.BlurKernel,
	}
}

func Catalogue(cfg *config.Config) *telemetry.Catalogue {
	entries := make([]telemetry.Recommendation, 0, len(cfg.Recommendations))
	for _, r := range cfg.Recommendations {
		entries = append(entries, telemetry.Recommendation{
			Disease:        r.Disease,
			Description:    r.Description,
			Symptoms:       r.Symptoms,
			Recommendation: r.Recommendation,
			Usage:          r.Usage,
		})
	}
	return telemetry.NewCatalogue(entries)
}

func (a *Application) Handler() http.Handler {
	return a.server.Handler()
}

func (a *Application) Ready() bool {
	return a.service.Ready()
}

// Run serves until a signal arrives or the listener fails. It returns once
// the whole shutdown sequence has finished.
func (a *Application) Run() error {
	a.setupSignalHandling()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	var err error
	select {
	case err = <-errCh:
		a.initiateShutdown()
	case <-a.shutdown:
		err = <-errCh
	}

	<-a.stopped
	return err
}

func (a *Application) setupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			a.logger.Info("Application", "shutdown signal received", map[string]interface{}{
				"signal": sig.String(),
			})
			a.initiateShutdown()
		case <-a.ctx.Done():
		}
	}()
}

func (a *Application) stopServer() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("Application", err, map[string]interface{}{"component": "http_server"})
	}
}

func (a *Application) initiateShutdown() {
	a.once.Do(func() {
		defer close(a.stopped)
		close(a.shutdown)

		a.logger.Info("Application", "shutdown sequence initiated", map[string]interface{}{
			"components": len(a.shutdownables),
		})

		a.cancel()

		for i := len(a.shutdownables) - 1; i >= 0; i-- {
			component := a.shutdownables[i]

			done := make(chan struct{})
			go func() {
				defer close(done)
				component.Shutdown()
			}()

			select {
			case <-done:
			case <-time.After(15 * time.Second):
				a.logger.Warning("Application", "component shutdown timeout", map[string]interface{}{
					"component_index": i,
				})
			}
		}

		a.logger.Info("Application", "shutdown sequence completed", nil)
	})
}

func (a *Application) Shutdown() {
	a.initiateShutdown()
}
