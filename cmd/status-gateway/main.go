package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jcmexdev/order-fulfillment/internal/broker"
	docsqlite "github.com/jcmexdev/order-fulfillment/internal/docstore/sqlite"
	"github.com/jcmexdev/order-fulfillment/internal/gateway"
	"github.com/jcmexdev/order-fulfillment/internal/orchestrator"
	instsqlite "github.com/jcmexdev/order-fulfillment/internal/orchestrator/instance/sqlite"
	"github.com/jcmexdev/order-fulfillment/internal/pkg/config"
	"github.com/jcmexdev/order-fulfillment/internal/pkg/telemetry"
	"github.com/jcmexdev/order-fulfillment/internal/submission"
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

	shutdown, err := telemetry.SetupTracer(ctx, cfg.ServiceName+"-gateway")
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

	instances, err := instsqlite.Open(cfg.InstanceDBPath)
	if err != nil {
		slog.Error("failed to open instance store", "path", cfg.InstanceDBPath, "error", err)
		os.Exit(1)
	}
	defer instances.Close()

	docs, err := docsqlite.Open(cfg.DocumentDBPath)
	if err != nil {
		slog.Error("failed to open document store", "path", cfg.DocumentDBPath, "error", err)
		os.Exit(1)
	}
	defer docs.Close()

	queue := broker.NewRedisQueue(cfg.RedisAddr, cfg.QueueName)
	defer queue.Close()

	activity := orchestrator.NewCommitOrderActivity(docs, cfg.ProcessingDelay)
	runner := orchestrator.NewRunner(instances, orchestrator.NewWorkflow(activity))

	// Pick up whatever the previous process left Pending or Running.
	if err := runner.Recover(ctx); err != nil {
		slog.Error("failed to recover orchestrations", "error", err)
		os.Exit(1)
	}

	handler := gateway.NewHandler(instances, runner, submission.NewProducer(queue), cfg.MaxWait, cfg.PollInterval)
	router := gateway.NewRouter(handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, "status-gateway"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("status gateway running", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down status gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	// Let in-flight orchestrations record their terminal state.
	runner.Wait()
	slog.Info("status gateway stopped")
}
