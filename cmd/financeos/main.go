package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"financeos/internal/cache"
	"financeos/internal/cli"
	apphttp "financeos/internal/http"
	"financeos/internal/log"
	"financeos/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	logger.Info("Starting financeos", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	res, _, err := cli.InitBackend(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}
	defer cli.Cleanup(logger, res)

	dashboards := services.NewDashboardService(res.Store, cfg.BufferTarget)
	imports := services.NewImportService(res.Store, res.Publisher(), dashboards)
	rules := services.NewRuleService(res.Store, dashboards)

	caches := cache.NewManager()
	caches.Register(dashboards.Cache())
	caches.StartCleanup(time.Minute)
	defer caches.Stop()

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Imports:    imports,
		Dashboards: dashboards,
		Rules:      rules,
		Ready:      res.Store.Ping,
	}, apphttp.Options{
		ImportMaxBytes:   cfg.ImportMaxBytes,
		ChartDays:        cfg.ChartDays,
		HorizonDays:      cfg.ForecastHorizonDays,
		DefaultAccountID: cfg.DefaultAccountID,
		Logger:           logger.WithComponent(log.ComponentHTTP),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server starting", "addr", srv.Addr, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err)
		cli.Cleanup(logger, res)
		os.Exit(1)
	}
	logger.Info("Server stopped", log.FieldOperation, log.OpShutdown)
}
