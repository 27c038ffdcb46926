package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"financeos/internal/backend"
	"financeos/internal/cli"
	"financeos/internal/log"
	"financeos/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	logger.Info("Starting ledger-worker", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	res, backendCfg, err := cli.InitBackend(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}
	defer cli.Cleanup(logger, res)

	if res.AMQP == nil {
		logger.Error("ledger-worker needs a reachable broker, set AMQP_URL")
		cli.Cleanup(logger, res)
		os.Exit(1)
	}

	exporter, err := backend.NewExporter(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize ledger export", log.FieldError, err)
		cli.Cleanup(logger, res)
		os.Exit(1)
	}

	if exporter != nil {
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets export disabled, recording snapshots only")
	}
	w := worker.NewLedgerWorker(res.Store, exporter)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return res.AMQP.ConsumeImportCompleted(gctx, w.HandleImportCompleted)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err, log.FieldOperation, log.OpConsume)
		cli.Cleanup(logger, res)
		os.Exit(1)
	}
	logger.Info("Worker stopped", log.FieldOperation, log.OpShutdown)
}
