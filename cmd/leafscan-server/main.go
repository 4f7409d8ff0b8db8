package main

import (
	"flag"
	"log"

	"leafscan/internal/app"
	"leafscan/internal/config"
	"leafscan/internal/logger"
)

func main() {
	configPath := flag.String("config", "leafscan.yaml", "path to the YAML configuration")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	lg := logger.NewJSONLogger(logger.ParseLevel(cfg.Logging.Level))

	application, err := app.NewApplication(cfg, lg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	if err := application.Run(); err != nil {
		lg.Error("Application", err, nil)
		application.Shutdown()
		log.Fatalf("Server failed: %v", err)
	}
}
