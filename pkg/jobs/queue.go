package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of deferred work, identified by the domain object it
// serves (a report job id, a cache rebuild key).
type Task struct {
	ID      string
	Kind    string
	Payload map[string]string
}

// Handler executes a task. Returning an error requeues the task until the
// retry budget is spent.
type Handler func(ctx context.Context, task Task) error

// Options tunes the worker pool.
type Options struct {
	Workers int
	Buffer  int
	Retries int
	Backoff time.Duration
	Logger  *zap.Logger
}

type queued struct {
	task    Task
	attempt int
}

// Queue runs tasks on a fixed pool of workers with linear-backoff retries.
type Queue struct {
	name    string
	handler Handler
	opts    Options
	logger  *zap.Logger

	tasks  chan queued
	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewQueue builds a queue. Start must be called before Push.
func NewQueue(name string, handler Handler, opts Options) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		name:    name,
		handler: handler,
		opts:    opts,
		logger:  log.With(zap.String("queue", name)),
		tasks:   make(chan queued, opts.Buffer),
	}
}

// Start launches the workers. Cancelling ctx aborts pending retries.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	ctx, q.cancel = context.WithCancel(ctx)
	q.mu.Unlock()

	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
}

// Stop refuses new tasks and waits for the workers to drain the buffer.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started || q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
	if q.cancel != nil {
		q.cancel()
	}
}

// Push schedules a task. It fails instead of blocking when the queue is
// stopped or the buffer is full.
func (q *Queue) Push(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started {
		return fmt.Errorf("queue %s is not started", q.name)
	}
	if q.closed {
		return fmt.Errorf("queue %s is stopped", q.name)
	}
	select {
	case q.tasks <- queued{task: task, attempt: 1}:
		return nil
	default:
		return fmt.Errorf("queue %s is full", q.name)
	}
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()
	for item := range q.tasks {
		if err := q.handler(ctx, item.task); err != nil {
			q.retry(ctx, item, err)
		}
	}
}

func (q *Queue) retry(ctx context.Context, item queued, err error) {
	if item.attempt > q.opts.Retries {
		q.logger.Error("task abandoned",
			zap.String("task", item.task.ID),
			zap.String("kind", item.task.Kind),
			zap.Int("attempts", item.attempt),
			zap.Error(err))
		return
	}
	q.logger.Warn("task failed, retrying",
		zap.String("task", item.task.ID),
		zap.String("kind", item.task.Kind),
		zap.Int("attempt", item.attempt),
		zap.Error(err))

	delay := time.Duration(item.attempt) * q.opts.Backoff
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		select {
		case <-ctx.Done():
		case <-time.After(delay):
			q.requeue(queued{task: item.task, attempt: item.attempt + 1})
		}
	}()
}

func (q *Queue) requeue(item queued) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.tasks <- item:
	default:
		q.logger.Error("dropping task, buffer full",
			zap.String("task", item.task.ID),
			zap.Int("attempt", item.attempt))
	}
}
