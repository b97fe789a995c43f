package actorqueue

import (
	"context"
	"sync"
	"time"

	"vendora/pkg/logger"
)

type Task func(ctx context.Context)

// taskTimeout bounds one queued handler end to end, including classifier and
// gateway calls.
const taskTimeout = 30 * time.Second

// worker holds the pending FIFO for one actor. busy is true while a drain
// goroutine is running, which is what enforces at-most-one in-flight task.
type worker struct {
	pending    []Task
	busy       bool
	lastActive time.Time
}

// Queue serializes task execution per actor key. Tasks for the same key run
// strictly one at a time in arrival order; tasks for different keys run
// concurrently. A panicking task is logged and the queue moves on.
//
// Tasks run after the enqueueing caller has returned, so each task gets its
// own context derived from the queue's base context, never the caller's.
type Queue struct {
	baseCtx context.Context

	mu      sync.Mutex
	workers map[string]*worker

	idleAfter time.Duration
}

func NewQueue(baseCtx context.Context, idleAfter time.Duration) *Queue {
	if idleAfter <= 0 {
		idleAfter = 30 * time.Minute
	}
	return &Queue{
		baseCtx:   baseCtx,
		workers:   make(map[string]*worker),
		idleAfter: idleAfter,
	}
}

func (q *Queue) Enqueue(actorKey string, task Task) {
	q.mu.Lock()
	w, ok := q.workers[actorKey]
	if !ok {
		w = &worker{}
		q.workers[actorKey] = w
	}
	w.pending = append(w.pending, task)
	w.lastActive = time.Now()

	if !w.busy {
		w.busy = true
		go q.drain(actorKey, w)
	}
	q.mu.Unlock()
}

func (q *Queue) drain(actorKey string, w *worker) {
	for {
		q.mu.Lock()
		if len(w.pending) == 0 {
			w.busy = false
			w.lastActive = time.Now()
			q.mu.Unlock()
			return
		}
		task := w.pending[0]
		w.pending = w.pending[1:]
		q.mu.Unlock()

		q.runOne(actorKey, task)
	}
}

// runOne is the queue boundary: failures inside one actor's task must never
// block that actor's later tasks or any other actor.
func (q *Queue) runOne(actorKey string, task Task) {
	ctx, cancel := context.WithTimeout(q.baseCtx, taskTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Actor task panicked: actor=%s panic=%v", actorKey, r)
		}
	}()

	task(ctx)
}

// Pending returns the number of queued (not yet started) tasks for an actor.
func (q *Queue) Pending(actorKey string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if w, ok := q.workers[actorKey]; ok {
		return len(w.pending)
	}
	return 0
}

// Cleanup drops idle workers to bound memory across many one-off buyers.
func (q *Queue) Cleanup() {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for key, w := range q.workers {
		if !w.busy && len(w.pending) == 0 && now.Sub(w.lastActive) > q.idleAfter {
			delete(q.workers, key)
		}
	}
}

func (q *Queue) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(q.idleAfter / 2)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				q.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}
