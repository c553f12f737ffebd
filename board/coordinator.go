// Package board orchestrates drag moves: it allocates a position key,
// applies the move to the canonical store immediately, and persists it
// asynchronously, reconciling the store from the backend when persistence
// fails.
package board

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
	"taskboard-api/store"
)

// Backend is the slice of the record service the coordinator needs.
type Backend interface {
	FetchTasks(ctx context.Context, ownerID string) ([]domain.Task, error)
	UpdateTaskFields(ctx context.Context, ownerID, taskID string, fields domain.TaskPatch) error
}

// Notification is a transient, user-visible message. Move failures degrade
// to a notification plus a reconciled store; they are never fatal.
type Notification struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

// Options tune the coordinator's persistence workers.
type Options struct {
	Workers        int
	QueueSize      int
	PersistTimeout time.Duration
	HandoffTimeout time.Duration
	Notify         func(Notification)
}

type moveJob struct {
	taskID   string
	status   domain.Status
	position float64
}

// MoveResult reports the synchronous outcome of a move. Applied is false
// when the gesture was stale or a no-op; no request is issued in either
// case.
type MoveResult struct {
	Applied  bool    `json:"applied"`
	Position float64 `json:"position"`
}

// Coordinator applies moves optimistically for a single owner's store and
// persists them through a small worker pool.
type Coordinator struct {
	owner   string
	store   *store.TaskStore
	backend Backend
	logger  *log.Logger
	opts    Options

	jobs      chan moveJob
	workerWG  sync.WaitGroup
	inlineWG  sync.WaitGroup
	closeMu   sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewCoordinator starts the persistence workers for one owner session.
func NewCoordinator(owner string, st *store.TaskStore, backend Backend, logger *log.Logger, opts Options) *Coordinator {
	if logger == nil {
		panic("logger is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 30 * time.Second
	}
	if opts.HandoffTimeout < 0 {
		opts.HandoffTimeout = 0
	}

	c := &Coordinator{
		owner:   owner,
		store:   st,
		backend: backend,
		logger:  logger,
		opts:    opts,
		jobs:    make(chan moveJob, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		c.workerWG.Add(1)
		go c.worker()
	}
	return c
}

// Move places the task at index within the destination column. The store is
// mutated before this returns; persistence and any reconciliation happen
// asynchronously.
func (c *Coordinator) Move(taskID string, column domain.Status, index int) MoveResult {
	task, ok := c.store.Get(taskID)
	if !ok {
		// Stale gesture: the task was removed while the drag was in flight.
		return MoveResult{}
	}

	if column == task.Status {
		if current, ok := c.store.IndexInColumn(taskID); ok && current == index {
			return MoveResult{Position: task.Position}
		}
	}

	positions := c.store.ColumnPositions(column, taskID)
	newPosition := domain.AllocatePosition(positions, index)

	c.store.SetStatusAndPosition(taskID, column, newPosition)
	c.dispatch(moveJob{taskID: taskID, status: column, position: newPosition})
	return MoveResult{Applied: true, Position: newPosition}
}

// dispatch hands the job to the worker pool, falling back to an inline
// goroutine when the queue stays saturated past the handoff timeout. A move
// racing Close must still persist, so a closed coordinator degrades to a
// detached persist instead of a fatal send on the closed channel.
func (c *Coordinator) dispatch(job moveJob) {
	queued, open := c.enqueue(job)
	if queued {
		return
	}
	if !open {
		c.logger.WithField("owner", c.owner).Warn("coordinator closed during move; persisting detached")
		go c.persist(job)
		return
	}

	c.logger.WithField("owner", c.owner).Warn("move queue saturated; persisting inline")
	c.inlineWG.Add(1)
	go func() {
		defer c.inlineWG.Done()
		c.persist(job)
	}()
}

// enqueue sends the job to the workers. It holds the close guard across the
// send so Close cannot close the channel mid-send; open reports whether the
// coordinator was still accepting work.
func (c *Coordinator) enqueue(job moveJob) (queued, open bool) {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return false, false
	}

	select {
	case c.jobs <- job:
		return true, true
	default:
	}

	if c.opts.HandoffTimeout > 0 {
		timer := time.NewTimer(c.opts.HandoffTimeout)
		defer timer.Stop()
		select {
		case c.jobs <- job:
			return true, true
		case <-timer.C:
		}
	}
	return false, true
}

func (c *Coordinator) worker() {
	defer c.workerWG.Done()
	for job := range c.jobs {
		c.persist(job)
	}
}

// persist sends the allocator-computed position verbatim; the backend only
// stores the two fields. On failure the authoritative collection replaces
// the optimistic store wholesale.
func (c *Coordinator) persist(job moveJob) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.PersistTimeout)
	defer cancel()

	status := job.status
	position := job.position
	patch := domain.TaskPatch{Status: &status, Position: &position}
	err := c.backend.UpdateTaskFields(ctx, c.owner, job.taskID, patch)
	if err == nil {
		return
	}

	c.logger.WithFields(log.Fields{
		"owner": c.owner,
		"task":  job.taskID,
		"error": err.Error(),
	}).Error("move persistence failed; reconciling")
	c.reconcile(job.taskID)
}

// reconcile discards optimistic state by reloading the authoritative
// collection. This also repairs any other drift the store may have
// accumulated.
func (c *Coordinator) reconcile(taskID string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.PersistTimeout)
	defer cancel()

	tasks, err := c.backend.FetchTasks(ctx, c.owner)
	if err != nil {
		c.logger.WithFields(log.Fields{
			"owner": c.owner,
			"error": err.Error(),
		}).Error("reconciliation fetch failed; store left as-is")
		c.notifyUser(taskID, "could not save the move; the board may be out of date")
		return
	}

	c.store.Load(tasks)
	c.notifyUser(taskID, "could not save the move; the board was reloaded")
}

func (c *Coordinator) notifyUser(taskID, message string) {
	if c.opts.Notify == nil {
		return
	}
	c.opts.Notify(Notification{TaskID: taskID, Message: message})
}

// Close stops the workers after draining queued persistence jobs.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		c.closeMu.Lock()
		c.closed = true
		close(c.jobs)
		c.closeMu.Unlock()
	})
	c.workerWG.Wait()
	c.inlineWG.Wait()
}
