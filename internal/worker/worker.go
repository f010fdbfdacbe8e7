package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/infinite-story/internal/logger"
	"github.com/jwebster45206/infinite-story/internal/metrics"
	"github.com/jwebster45206/infinite-story/internal/services"
	"github.com/jwebster45206/infinite-story/internal/services/queue"
	"github.com/jwebster45206/infinite-story/pkg/narrative"
	queuePkg "github.com/jwebster45206/infinite-story/pkg/queue"
)

const (
	workerTimeout = 5 * time.Second

	// DefaultMaxAttempts bounds how often a request for a busy session is re-queued.
	DefaultMaxAttempts = 20
)

// StoryRunner advances a session's story.
// *services.StoryService implements it.
type StoryRunner interface {
	ContinueStory(ctx context.Context, sessionID string, in *narrative.Interaction) (*services.SegmentResult, error)
}

// FailurePublisher tells a session's clients that their interaction was dropped.
// *events.Broadcaster implements it.
type FailurePublisher interface {
	PublishInteractionFailed(ctx context.Context, sessionID string, requestID string, errorMsg string) error
}

// Worker processes interactions from the queue
type Worker struct {
	id          string
	queue       *queue.InteractionQueue
	stories     StoryRunner
	events      FailurePublisher
	metrics     *metrics.Metrics
	log         *slog.Logger
	pollTimeout time.Duration
	maxAttempts int
	ctx         context.Context
	cancel      context.CancelFunc
}

type Option func(*Worker)

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithPollTimeout sets how long one BLPOP waits before checking for shutdown.
func WithPollTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pollTimeout = d
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// New creates a new worker instance
func New(q *queue.InteractionQueue, stories StoryRunner, publisher FailurePublisher, log *slog.Logger, workerID string, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}

	w := &Worker{
		id:          workerID,
		queue:       q,
		stories:     stories,
		events:      publisher,
		log:         log.With("worker_id", workerID),
		pollTimeout: workerTimeout,
		maxAttempts: DefaultMaxAttempts,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ID returns the worker id used in logs.
func (w *Worker) ID() string {
	return w.id
}

// Start processes requests until Stop is called.
func (w *Worker) Start() error {
	w.log.Info("Worker starting")

	for {
		select {
		case <-w.ctx.Done():
			w.log.Info("Worker shutting down")
			return nil
		default:
			if err := w.processNextRequest(); err != nil {
				w.log.Error("Error processing request", "error", err)
				// Continue processing even on error
				select {
				case <-w.ctx.Done():
				case <-time.After(time.Second):
				}
			}
		}
	}
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.log.Info("Worker stop requested")
	w.cancel()
}

// processNextRequest pulls the next request from the queue and processes it
func (w *Worker) processNextRequest() error {
	req, err := w.queue.BlockingDequeue(w.ctx, w.pollTimeout)
	if err != nil {
		return fmt.Errorf("failed to dequeue request: %w", err)
	}
	w.reportDepth()

	if req == nil {
		// Queue is empty or timeout occurred - this is normal
		return nil
	}

	w.log.Info("Received request from queue",
		"request_id", req.RequestID,
		"type", req.Type,
		"session_id", req.SessionID,
		"attempts", req.Attempts,
	)
	return w.processRequest(req)
}

func (w *Worker) processRequest(req *queuePkg.Request) error {
	start := time.Now()
	log := logger.WithRequestID(logger.WithSession(w.log, req.SessionID), req.RequestID)

	result, err := w.stories.ContinueStory(w.ctx, req.SessionID, req.Interaction)
	switch {
	case err == nil:
		log.Info("Interaction processed",
			"sequence", result.Segment.SequenceNumber,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil

	case w.ctx.Err() != nil && errors.Is(err, w.ctx.Err()):
		// Shutdown interrupted the request. Hand it back for the next worker.
		log.Info("Worker stopping, returning request to queue")
		if err := w.queue.Enqueue(context.WithoutCancel(w.ctx), req); err != nil {
			return fmt.Errorf("failed to return request to queue: %w", err)
		}
		return nil

	case errors.Is(err, services.ErrSessionBusy) && req.Attempts+1 < w.maxAttempts:
		// Another worker holds the session. Retry after the rest of the queue.
		log.Info("Session busy, re-queueing request", "attempts", req.Attempts+1)
		if err := w.queue.Requeue(w.ctx, req); err != nil {
			return fmt.Errorf("failed to re-queue request: %w", err)
		}
		return nil
	}

	logger.WithError(log, err).Warn("Interaction failed")
	if pubErr := w.events.PublishInteractionFailed(w.ctx, req.SessionID, req.RequestID, err.Error()); pubErr != nil {
		log.Error("Failed to publish failure event", "error", pubErr)
	}
	if services.IsClientError(err) {
		return nil
	}
	return fmt.Errorf("failed to process request %s: %w", req.RequestID, err)
}

func (w *Worker) reportDepth() {
	if w.metrics == nil {
		return
	}
	depth, err := w.queue.Depth(w.ctx)
	if err != nil {
		w.log.Debug("Failed to read queue depth", "error", err)
		return
	}
	w.metrics.SetQueueDepth(depth)
}
