package main

import (
	"os"
	"time"

	"financeos/internal/cli"
	"financeos/internal/log"
	"financeos/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentReconcile)
	logger.Info("Starting recurring-worker", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	res, _, err := cli.InitBackend(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}
	defer cli.Cleanup(logger, res)

	reconciler := services.NewRuleReconciler(res.Store, cfg.ReconcileLookbackDays, nil)

	logger.Info("Rule reconciler configured",
		"interval", cfg.ReconcileInterval,
		"lookback_days", cfg.ReconcileLookbackDays,
		"backend", cfg.DataBackend)

	run := func(now time.Time) {
		count, err := reconciler.Reconcile(ctx, now)
		if err != nil {
			logger.Error("Reconcile failed", log.FieldError, err, log.FieldOperation, log.OpReconcile)
			return
		}
		logger.Info("Reconcile complete",
			"rules_advanced", count,
			"next_check", now.Add(cfg.ReconcileInterval).Format("15:04:05"))
	}

	run(time.Now())

	ticker := time.NewTicker(cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Recurring-worker shutdown complete", log.FieldOperation, log.OpShutdown)
			return
		case now := <-ticker.C:
			run(now)
		}
	}
}
