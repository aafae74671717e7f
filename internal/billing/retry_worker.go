package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"callflex/internal/queue"
	"callflex/pkg/logger"
)

// RetryQueueName names the pending and dead-letter keys shared by the API
// and the operator CLI.
const RetryQueueName = "billing-retry"

// RetryWorker drains the queue of events whose tenant was unresolved on
// arrival. Each event is retried with exponential backoff and then parked in
// the dead-letter queue.
type RetryWorker struct {
	queue       queue.Queue
	dlq         queue.DeadLetterQueue
	reconciler  *Reconciler
	config      queue.Config
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

func NewRetryWorker(q queue.Queue, dlq queue.DeadLetterQueue, r *Reconciler, cfg queue.Config) *RetryWorker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = queue.DefaultConfig(cfg.Name).BatchSize
	}
	return &RetryWorker{
		queue:       q,
		dlq:         dlq,
		reconciler:  r,
		config:      cfg,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

func (w *RetryWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop waits for the in-progress batch to finish.
func (w *RetryWorker) Stop() {
	close(w.stopChan)
	<-w.stoppedChan
}

func (w *RetryWorker) run(ctx context.Context) {
	defer close(w.stoppedChan)
	log := logger.From(ctx).With("component", "billing-retry")

	for {
		select {
		case <-w.stopChan:
			log.Info("billing retry worker stopping")
			return
		case <-ctx.Done():
			log.Info("billing retry worker context cancelled")
			return
		default:
			w.processBatch(ctx, log)
		}
	}
}

func (w *RetryWorker) processBatch(ctx context.Context, log *slog.Logger) {
	items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, w.config.BatchTimeout)
	if err != nil {
		if errors.Is(err, queue.ErrQueueClosed) || ctx.Err() != nil {
			w.sleep(ctx, w.config.BatchTimeout)
			return
		}
		log.Error("failed to dequeue billing retries", "err", err)
		w.sleep(ctx, time.Second)
		return
	}
	for _, item := range items {
		if err := w.processItem(ctx, item, log); err != nil {
			log.Warn("billing retry gave up", "err", err)
		}
	}
}

// processItem returns nil once the event reconciles or is moved to the DLQ.
func (w *RetryWorker) processItem(ctx context.Context, item json.RawMessage, log *slog.Logger) error {
	var p PendingEvent
	if err := json.Unmarshal(item, &p); err != nil {
		return w.deadLetter(ctx, item, fmt.Errorf("unmarshal pending event: %w", err), 0, log)
	}
	ev, err := Decode(p.Payload)
	if err != nil {
		return w.deadLetter(ctx, item, err, 0, log)
	}
	log = log.With("stripe_event_id", p.EventID, "event_type", p.EventType)
	ctx = logger.With(ctx, log)

	var lastErr error
	attempt := 0
	for ; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			log.Debug("retrying stripe event", "attempt", attempt, "backoff", backoff)
			if !w.sleep(ctx, backoff) {
				// Shutting down; put it back so the next process picks it up.
				return w.queue.Enqueue(context.WithoutCancel(ctx), item)
			}
		}
		out, err := w.reconciler.Reconcile(ctx, ev)
		if err == nil {
			log.Info("queued stripe event reconciled", "organization_id", out.OrganizationID, "attempt", attempt)
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrMalformedEvent) {
			break
		}
	}
	return w.deadLetter(ctx, item, lastErr, attempt, log)
}

func (w *RetryWorker) deadLetter(ctx context.Context, item json.RawMessage, cause error, retries int, log *slog.Logger) error {
	if w.dlq == nil {
		return fmt.Errorf("dropping stripe event, no dead letter queue: %w", cause)
	}
	dl, err := w.dlq.Add(ctx, item, cause, retries)
	if err != nil {
		return fmt.Errorf("add to dead letter queue: %w", err)
	}
	log.Warn("stripe event moved to DLQ", "dlq_id", dl.ID, "err", cause)
	return nil
}

// sleep waits for d and reports false if the worker was stopped first.
func (w *RetryWorker) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-w.stopChan:
		return false
	case <-ctx.Done():
		return false
	}
}

func (w *RetryWorker) QueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

func (w *RetryWorker) DeadLetters(ctx context.Context, maxItems int) ([]queue.DeadLetterItem, error) {
	if w.dlq == nil {
		return nil, errors.New("dead letter queue not configured")
	}
	return w.dlq.List(ctx, maxItems)
}

// RetryDeadLetter moves a parked event back onto the retry queue.
func (w *RetryWorker) RetryDeadLetter(ctx context.Context, id string) error {
	return Replay(ctx, w.queue, w.dlq, id)
}

// Replay re-enqueues a dead letter and removes it from the DLQ. Used by the
// worker and by the operator CLI, which has no reconciler.
func Replay(ctx context.Context, q queue.Queue, dlq queue.DeadLetterQueue, id string) error {
	if dlq == nil {
		return errors.New("dead letter queue not configured")
	}
	dl, err := dlq.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("dead letter %s: %w", id, err)
	}
	if err := q.Enqueue(ctx, dl.Item); err != nil {
		return fmt.Errorf("failed to re-enqueue item: %w", err)
	}
	if err := dlq.Remove(ctx, id); err != nil {
		return fmt.Errorf("failed to remove from DLQ: %w", err)
	}
	return nil
}
