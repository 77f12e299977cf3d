package reserver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jcmexdev/order-fulfillment/internal/broker"
)

// Worker runs a pool of consume loops against the queue. Each loop pulls
// one message at a time and hands it to the handler; a handler failure
// routes the message to the dead-letter queue and the loop continues.
// There is no shared mutable state between invocations.
//
// Cancellation stops consuming; a message already consumed is processed
// to completion (drain), since it cannot be returned to the queue.
type Worker struct {
	queue        broker.Queue
	handler      *Handler
	concurrency  int
	errorBackoff time.Duration
	wg           sync.WaitGroup
}

func NewWorker(queue broker.Queue, handler *Handler, concurrency int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		queue:        queue,
		handler:      handler,
		concurrency:  concurrency,
		errorBackoff: time.Second,
	}
}

// Start launches the consume loops. They exit when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	slog.InfoContext(ctx, "reservation worker starting", "concurrency", w.concurrency)
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.loop(ctx, i)
	}
}

// Wait blocks until every consume loop has exited.
func (w *Worker) Wait() {
	w.wg.Wait()
	slog.Info("reservation worker stopped")
}

func (w *Worker) loop(ctx context.Context, id int) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			slog.Info("consume loop exiting", "worker", id)
			return
		default:
		}

		msg, err := w.queue.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("consume loop exiting", "worker", id)
				return
			}
			// Broker hiccups are tolerated: log, back off, keep pulling.
			slog.WarnContext(ctx, "consume error, retrying", "worker", id, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.errorBackoff):
			}
			continue
		}
		if msg == nil { // idle timeout
			continue
		}

		// The message is already off the queue; if shutdown starts now
		// it must still finish its retry budget and, on failure, reach
		// the dead-letter list, or it is lost.
		mctx := context.WithoutCancel(ctx)
		if err := w.handler.Handle(mctx, msg.Body); err != nil {
			slog.ErrorContext(mctx, "message processing failed, dead-lettering",
				"worker", id, "correlation_id", msg.CorrelationID, "error", err)
			if dlErr := w.queue.DeadLetter(mctx, msg); dlErr != nil {
				slog.ErrorContext(mctx, "CRITICAL: failed to dead-letter message",
					"worker", id, "correlation_id", msg.CorrelationID, "error", dlErr)
			}
		}
	}
}
