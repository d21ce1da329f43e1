package main

import (
	"context"
	"os"
	"time"

	"zillow-scraper/config"
	"zillow-scraper/fetch"
	"zillow-scraper/models"
	"zillow-scraper/services"
	"zillow-scraper/storage"
	"zillow-scraper/utils"
)

func main() {
	cfg := config.Load()
	runDate := time.Now().Format("2006-01-02")

	logger := utils.NewFileLogger(cfg.LogDir, runDate)
	defer logger.Close()

	logger.Info("=== Metro listing scrape starting ===")
	logger.Info("Config: metro=%s workers=%d retries=%d timeout=%ds backend=%s",
		cfg.Metro, cfg.MaxWorkers, cfg.MaxRetries, cfg.TimeoutSeconds, cfg.FetchBackend)

	zips, err := cfg.MetroZips()
	if err != nil {
		logger.Error("Run aborted: %v", err)
		os.Exit(1)
	}

	client, cleanup, err := buildFetchClient(cfg, logger)
	if err != nil {
		logger.Error("Run aborted: %v", err)
		os.Exit(1)
	}
	defer cleanup()

	writer, err := storage.NewCSVRunWriter(cfg.OutputDir, runDate)
	if err != nil {
		logger.Error("Run aborted: %v", err)
		os.Exit(1)
	}
	defer writer.Close()

	orch := services.NewOrchestrator(cfg, client, writer, logger)
	manifest, err := orch.Run(context.Background(), zips)
	if err != nil || manifest.Status == models.RunAborted {
		logger.Error("Run aborted: %v", err)
		os.Exit(1)
	}

	logger.Info("Run %s: %d links, %d records, %d failures",
		manifest.Status, manifest.LinksFound, manifest.RecordsSucceeded, manifest.RecordsFailed)
}

// buildFetchClient selects the configured fetch backend.
func buildFetchClient(cfg *config.Config, logger *utils.Logger) (fetch.Client, func(), error) {
	switch cfg.FetchBackend {
	case "browser":
		bc := fetch.NewBrowserClient(fetch.BrowserOptions{
			ChromeBin:   cfg.ChromeBin,
			Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
			MaxRetries:  cfg.MaxRetries,
			BackoffBase: time.Duration(cfg.BackoffBaseMs) * time.Millisecond,
			Logger:      logger,
		})
		return bc, bc.Close, nil
	default:
		zc, err := fetch.NewZyteClient(fetch.ZyteOptions{
			APIKey:      cfg.ZyteAPIKey,
			Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
			MaxRetries:  cfg.MaxRetries,
			BackoffBase: time.Duration(cfg.BackoffBaseMs) * time.Millisecond,
			RatePerSec:  cfg.RatePerSec,
			Logger:      logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return zc, func() {}, nil
	}
}
