package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/solvemate/solvemate-api/internal/logger"
	"github.com/solvemate/solvemate-api/internal/metrics"
)

// Writer performs the fire-and-forget history appends that follow a
// successful analysis. The session controller must never block on
// persistence, so appends are queued and handled by a small worker pool;
// failures are logged and counted but never propagate back.
type Writer struct {
	store        Store
	appendChan   chan appendRequest
	workerPool   sync.WaitGroup
	shutdown     chan struct{}
	closed       atomic.Bool
	timeout      time.Duration
	logger       *logger.Logger
	droppedTotal atomic.Int64
}

type appendRequest struct {
	ownerID string
	item    Item
}

func NewWriter(store Store, poolSize, bufferSize int, timeout time.Duration, logger *logger.Logger) *Writer {
	w := &Writer{
		store:      store,
		appendChan: make(chan appendRequest, bufferSize),
		shutdown:   make(chan struct{}),
		timeout:    timeout,
		logger:     logger,
	}

	for i := 0; i < poolSize; i++ {
		w.workerPool.Add(1)
		go w.worker()
	}

	return w
}

func (w *Writer) worker() {
	defer w.workerPool.Done()

	for {
		select {
		case req := <-w.appendChan:
			w.handleAppend(req)
		case <-w.shutdown:
			// Drain remaining appends before shutdown.
			for {
				select {
				case req := <-w.appendChan:
					w.handleAppend(req)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) handleAppend(req appendRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := w.store.Append(ctx, req.ownerID, req.item); err != nil {
		metrics.IncHistoryWrite("failure")
		w.logger.WithComponent("history-writer").Error("failed to append history item",
			slog.String("user_id", req.ownerID),
			slog.String("item_id", req.item.ID),
			slog.String("error", err.Error()))
		return
	}

	metrics.IncHistoryWrite("success")
}

// AppendAsync queues an append. It returns immediately; the error only
// reports queueing problems (shutdown or full buffer), which callers log.
func (w *Writer) AppendAsync(ownerID string, item Item) error {
	if w.closed.Load() {
		return fmt.Errorf("history writer is shutting down")
	}

	select {
	case w.appendChan <- appendRequest{ownerID: ownerID, item: item}:
		return nil
	default:
		dropped := w.droppedTotal.Add(1)
		w.logger.WithComponent("history-writer").Error("history append queue full, item dropped",
			slog.String("user_id", ownerID),
			slog.String("item_id", item.ID),
			slog.Int64("dropped_total", dropped))
		return fmt.Errorf("history append queue full")
	}
}

// Close stops accepting appends and drains the queue.
func (w *Writer) Close() {
	if w.closed.Swap(true) {
		return
	}
	close(w.shutdown)
	w.workerPool.Wait()
}
