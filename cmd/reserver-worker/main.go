package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/jcmexdev/order-fulfillment/internal/broker"
	"github.com/jcmexdev/order-fulfillment/internal/pkg/config"
	"github.com/jcmexdev/order-fulfillment/internal/pkg/telemetry"
	"github.com/jcmexdev/order-fulfillment/internal/reserver"
	"github.com/jcmexdev/order-fulfillment/internal/reserver/blob"
)

func main() {
	telemetry.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdown, err := telemetry.SetupTracer(ctx, cfg.ServiceName+"-reserver")
	if err != nil {
		slog.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	queue := broker.NewRedisQueue(cfg.RedisAddr, cfg.QueueName)
	defer queue.Close()

	blobs := blob.NewFsStore(afero.NewOsFs(), cfg.BlobDir)
	notifier := reserver.NewFallbackNotifier(cfg.FallbackURL)
	handler := reserver.NewHandler(blobs, notifier, reserver.Config{})

	worker := reserver.NewWorker(queue, handler, cfg.WorkerConcurrency)
	worker.Start(ctx)

	<-ctx.Done()
	slog.Info("shutting down reservation worker")
	worker.Wait()
}
