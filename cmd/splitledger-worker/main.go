package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"splitledger/internal/amqp"
	"splitledger/internal/backend"
	"splitledger/internal/cli"
	apphttp "splitledger/internal/http"
	"splitledger/internal/log"
	"splitledger/internal/metrics"
	"splitledger/internal/price"
	"splitledger/internal/services"
	"splitledger/internal/sheets"
	gsheet "splitledger/internal/sheets/google"
	"splitledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker, os.Stdout)

	if err := run(logger); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func run(logger *log.Logger) error {
	logger.Info("Starting splitledger-worker")

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return err
	}
	if err := metrics.Setup(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	repo, err := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	// The worker has no identity: it only reads.
	bcfg, err := backend.FromAppConfig(cfg, true)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Slog()).CreateBackend(ctx, bcfg)
	if err != nil {
		return err
	}
	defer func() { _ = res.Cleanup() }()

	var mirror sheets.ExpenseMirror
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		}, logger.WithComponent(log.ComponentSheets).Slog())
		if err != nil {
			return err
		}
		mirror = client
		logger.Info("Google Sheets mirror enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets mirror disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	snapshots := worker.NewSnapshotWorker(res.Ledger, repo, mirror, worker.Config{
		Reader: services.ReaderConfig{Concurrency: cfg.ReaderConcurrency},
	}, logger.WithComponent(log.ComponentWorker).Slog())

	opts := []apphttp.Option{apphttp.WithOverdueReader(res.Ledger)}
	if cfg.PriceAPIURL != "" {
		oracle := price.NewClient(price.Config{BaseURL: cfg.PriceAPIURL, CacheTTL: cfg.PriceCacheTTL},
			logger.WithComponent(log.ComponentPrice).Slog())
		opts = append(opts, apphttp.WithPriceOracle(oracle, cfg.PriceFiat))
	}
	srv := apphttp.NewServer(":"+cfg.Port, repo, logger, opts...)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		snapshots.Run(gctx, cfg.SnapshotInterval)
		return nil
	})

	if cfg.AMQPEnabled() {
		bus, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			return err
		}
		defer bus.Close()
		g.Go(func() error {
			err := bus.ConsumeLedgerEvents(gctx, snapshots.HandleLedgerEvent)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("AMQP disabled - snapshots refresh on the ticker only", "interval", cfg.SnapshotInterval)
	}

	g.Go(func() error {
		logger.Info("HTTP API listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", log.FieldOperation, log.OpShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
