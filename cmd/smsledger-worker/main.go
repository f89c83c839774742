package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"smsledger/internal/amqp"
	"smsledger/internal/backend"
	"smsledger/internal/cli"
	"smsledger/internal/log"
	"smsledger/internal/services"
	"smsledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting smsledger-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid timezone", log.FieldError, err)
		os.Exit(1)
	}

	store := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer store.Close()
	auditSink := cli.OpenAuditSink(logger, cfg.AuditLogPath)
	defer auditSink.Close()

	ingestService := services.NewIngestService(services.NewAssembler(auditSink, loc), store, logger)

	var amqpClient *amqp.Client
	if cfg.AMQPEnabled() {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPIngestQueue, cfg.AMQPSyncQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		ingestService.WithPublisher(amqpClient, cfg.AMQPSyncQueue)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	ctx, done := cli.GracefulShutdown(logger, 15*time.Second, nil)
	g, gctx := errgroup.WithContext(ctx)

	ingestWorker := worker.NewIngestWorker(ingestService, cfg.BackupDir, logger)
	g.Go(func() error {
		logger.Info("Watching inbox", "dir", cfg.BackupDir, "interval", cfg.ScanInterval.String())
		return ingestWorker.RunScanLoop(gctx, cfg.ScanInterval)
	})

	if amqpClient != nil {
		g.Go(func() error {
			return ignoreCanceled(amqpClient.ConsumeIngestRequests(gctx, cfg.AMQPIngestQueue, ingestWorker.HandleIngestRequest))
		})
	}

	targetCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid sync target", log.FieldError, err)
		os.Exit(1)
	}
	target, err := backend.NewFactory(logger).Create(ctx, targetCfg)
	if err != nil {
		logger.Error("Failed to initialize sync target", log.FieldError, err)
		os.Exit(1)
	}

	if target.Enabled() {
		processor := services.NewSyncProcessor(store, target.Writer, services.SyncProcessorConfig{
			PollInterval: cfg.SyncInterval,
			BatchSize:    cfg.SyncBatchSize,
		})
		syncWorker := worker.NewSyncWorker(processor)

		if err := syncWorker.StartupSyncCheck(ctx); err != nil {
			logger.Error("Failed startup sync check", log.FieldError, err)
		}
		if err := processor.Start(gctx); err != nil {
			logger.Error("Failed to start sync processor", log.FieldError, err)
			os.Exit(1)
		}
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return processor.Stop(stopCtx)
		})

		if amqpClient != nil {
			g.Go(func() error {
				return ignoreCanceled(amqpClient.ConsumeTransactionSync(gctx, cfg.AMQPSyncQueue, syncWorker.HandleSyncMessage))
			})
		}
	}

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
