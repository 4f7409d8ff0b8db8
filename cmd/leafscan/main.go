// Command leafscan diagnoses one leaf photo and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"leafscan/internal/app"
	"leafscan/internal/config"
	"leafscan/internal/logger"
	"leafscan/internal/model"
	"leafscan/internal/opencv/memory"
	"leafscan/internal/pipeline"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/storage"
)

// uriFile adapts an *os.File to the fyne URI reader and writer interfaces.
type uriFile struct {
	*os.File
	uri fyne.URI
}

func (f uriFile) URI() fyne.URI { return f.uri }

func openURI(path string) (fyne.URIReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return uriFile{File: f, uri: storage.NewFileURI(path)}, nil
}

func createURI(path string) (fyne.URIWriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return uriFile{File: f, uri: storage.NewFileURI(path)}, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "leafscan: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "optional YAML configuration")
	modelDir := flag.String("model", "", "model directory (overrides config)")
	maskPath := flag.String("mask", "", "write the foreground mask to this PNG or JPEG file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] image\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return fmt.Errorf("expected exactly one image path")
	}
	imagePath := flag.Arg(0)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *modelDir != "" {
		cfg.Model.Dir = *modelDir
	}

	lg := logger.NewConsoleLogger(logger.ParseLevel(cfg.Logging.Level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mem := memory.NewManager(lg, cfg.Memory.MaxBytes)
	defer mem.Shutdown()

	bundle, err := model.Load(cfg.Model.Dir)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}

	service, err := pipeline.NewService(lg, mem, bundle, app.ScanParams(cfg))
	if err != nil {
		return err
	}

	reader, err := openURI(imagePath)
	if err != nil {
		return err
	}
	result, err := service.DiagnoseReader(ctx, reader)
	reader.Close()
	if err != nil {
		return err
	}

	if *maskPath != "" {
		if err := writeMask(ctx, service, imagePath, *maskPath); err != nil {
			return fmt.Errorf("write mask: %w", err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func writeMask(ctx context.Context, service *pipeline.Service, imagePath, maskPath string) error {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return err
	}

	mask, err := service.ForegroundMask(ctx, data, storage.NewFileURI(imagePath).Extension())
	if err != nil {
		return err
	}

	writer, err := createURI(maskPath)
	if err != nil {
		return err
	}
	if err := service.SaveImage(writer, mask, ""); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}
