package main

import (
	"os"

	"budgetly/internal/amqp"
	"budgetly/internal/cli"
	applog "budgetly/internal/log"
	"budgetly/internal/services"
	gsheet "budgetly/internal/sheets/google"
	"budgetly/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadConfig(applog.ComponentWorker)
	logger.Info("Starting budgetly-worker")

	if !cfg.ExportEnabled() {
		logger.Error("GOOGLE_SPREADSHEET_ID is required for the export worker")
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	// The worker only reads the ledger, so its service publishes nothing.
	ledgerCfg := *cfg
	ledgerCfg.AMQPURL = ""
	backend := cli.InitBackend(ctx, logger, &ledgerCfg)
	defer func() {
		if err := backend.Cleanup(); err != nil {
			logger.Error("Cleanup failed", applog.FieldError, err)
		}
	}()

	sheets, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSummarySheetName)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	var consumer worker.EventConsumer
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		consumer = client
	} else {
		logger.Info("AMQP disabled - relying on periodic exports only")
	}

	processorCfg := services.DefaultExportProcessorConfig()
	processorCfg.Interval = cfg.ExportInterval
	processor := services.NewExportProcessor(backend.Service, sheets, processorCfg)

	if err := worker.NewExportWorker(consumer, processor).Run(ctx); err != nil {
		logger.Error("Worker stopped", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete", applog.FieldOperation, applog.OpShutdown)
}
