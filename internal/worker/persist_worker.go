package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"chat-orchestrator/internal/domain"
)

const (
	saveTimeout  = 30 * time.Second
	retryBackoff = 1 * time.Second
)

type persistJob struct {
	ref   domain.ConversationRef
	turns []domain.Message
}

// PersistWorker decouples conversation persistence from request
// handling. Save enqueues onto a bounded queue and returns
// immediately; consumer goroutines write through the underlying store.
// A full queue drops the job with a warning rather than blocking the
// response path.
type PersistWorker struct {
	store   domain.ConversationStore
	logger  *slog.Logger
	jobs    chan persistJob
	workers int

	group    errgroup.Group
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewPersistWorker(store domain.ConversationStore, queueSize, workers int, logger *slog.Logger) *PersistWorker {
	if workers < 1 {
		workers = 1
	}
	return &PersistWorker{
		store:   store,
		logger:  logger,
		jobs:    make(chan persistJob, queueSize),
		workers: workers,
		stopCh:  make(chan struct{}),
	}
}

func (w *PersistWorker) Start() {
	w.logger.Info("Starting PersistWorker", slog.Int("workers", w.workers))
	for i := 0; i < w.workers; i++ {
		w.group.Go(func() error {
			w.run()
			return nil
		})
	}
}

// Stop drains the queue and waits for in-flight saves to finish.
func (w *PersistWorker) Stop() {
	w.logger.Info("Stopping PersistWorker")
	w.stopOnce.Do(func() { close(w.stopCh) })
	_ = w.group.Wait()
}

// Save enqueues the turns for asynchronous persistence.
func (w *PersistWorker) Save(ctx context.Context, ref domain.ConversationRef, turns []domain.Message) error {
	select {
	case <-w.stopCh:
		return fmt.Errorf("persist worker stopped")
	case w.jobs <- persistJob{ref: ref, turns: turns}:
		return nil
	default:
		return fmt.Errorf("persist queue full, dropping %d turns for conversation %s", len(turns), ref.ConversationID)
	}
}

func (w *PersistWorker) run() {
	for {
		select {
		case <-w.stopCh:
			// Drain what is already queued before exiting.
			for {
				select {
				case job := <-w.jobs:
					w.process(job)
				default:
					return
				}
			}
		case job := <-w.jobs:
			w.process(job)
		}
	}
}

func (w *PersistWorker) process(job persistJob) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	err := w.store.Save(ctx, job.ref, job.turns)
	if err != nil {
		select {
		case <-ctx.Done():
		case <-time.After(retryBackoff):
			err = w.store.Save(ctx, job.ref, job.turns)
		}
	}
	if err != nil {
		w.logger.Warn("persistence failed, conversation turns lost",
			slog.String("conversation_id", job.ref.ConversationID),
			slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("conversation turns persisted",
		slog.String("conversation_id", job.ref.ConversationID),
		slog.Int("turns", len(job.turns)))
}

var _ domain.ConversationStore = (*PersistWorker)(nil)
