// Package tasksync keeps an in-memory task list in step with the remote task store.
//
// Toggle and delete are optimistic: the local list changes before the remote
// call is made, and a failed call is reconciled by reloading the whole list
// from the server rather than by reverting by hand. Add is not optimistic: a
// task only appears locally once the server has confirmed it and assigned its
// id, since the server also normalizes fields such as the uploaded photo URL.
//
// The engine does not serialize operations per task. Concurrent toggle and
// delete calls on the same id race; the next reload settles the result.
package tasksync

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"todo/internal/service"
)

// Task is one to-do item as held locally.
type Task struct {
	ID          string
	Title       string
	IsCompleted bool
	ImageURI    string
	Location    *service.Location
	CreatedAt   time.Time
}

// Snapshot is the state delivered to listeners.
type Snapshot struct {
	Tasks   []Task
	Loading bool
	LastOp  *Op // operation that caused this change; nil for loads
}

// Listener is notified after every change to the engine's state.
type Listener func(Snapshot)

// Engine owns the local task list. It is safe for concurrent use; its lock is
// never held across a remote call.
type Engine struct {
	svc     service.TaskService
	logger  *slog.Logger
	now     func() time.Time
	cleanup func(ref string) error

	mu        sync.Mutex
	order     []string
	tasks     map[string]Task
	loads     int // loads in flight
	listeners map[int]Listener
	nextID    int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets the clock used for client-assigned creation times.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithImageCleanup sets the function that removes a deleted task's local
// image file. Defaults to RemoveLocalImage.
func WithImageCleanup(fn func(ref string) error) Option {
	return func(e *Engine) { e.cleanup = fn }
}

// New creates an engine with an empty list.
func New(svc service.TaskService, opts ...Option) *Engine {
	e := &Engine{
		svc:       svc,
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
		cleanup:   RemoveLocalImage,
		tasks:     make(map[string]Task),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tasks returns a copy of the list in display order.
func (e *Engine) Tasks() []Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Task returns the task with id.
func (e *Engine) Task(id string) (Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tasks[id]
	return t, ok
}

// Loading reports whether a load is in flight.
func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loads > 0
}

// Subscribe registers l for state changes and returns a function that
// removes it.
func (e *Engine) Subscribe(l Listener) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = l
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// LoadTasks replaces the local list with the server's. On failure the local
// list is left as it was.
func (e *Engine) LoadTasks(ctx context.Context) error {
	e.mu.Lock()
	e.loads++
	e.mu.Unlock()
	e.notify(nil)

	remote, err := e.svc.ListTasks(ctx)

	e.mu.Lock()
	e.loads--
	if err == nil {
		e.replaceLocked(remote)
	}
	e.mu.Unlock()
	e.notify(nil)

	if err != nil {
		e.logger.Warn("failed to load tasks", "err", err)
		return err
	}
	e.logger.Debug("tasks loaded", "count", len(remote))
	return nil
}

// replaceLocked swaps in the remote list, keeping the first of any duplicate ids.
func (e *Engine) replaceLocked(remote []service.RemoteTask) {
	order := make([]string, 0, len(remote))
	tasks := make(map[string]Task, len(remote))
	for _, rt := range remote {
		if _, dup := tasks[rt.ID]; dup {
			e.logger.Warn("duplicate task id from server", "id", rt.ID)
			continue
		}
		tasks[rt.ID] = fromRemote(rt, time.Time{})
		order = append(order, rt.ID)
	}
	e.order = order
	e.tasks = tasks
}

// AddTask creates a task remotely and appends the confirmed record. Nothing
// is inserted locally until the server has answered.
func (e *Engine) AddTask(ctx context.Context, title, imageRef string, location *service.Location) (Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, service.Validation("add task", "title required")
	}

	op := &Op{Kind: OpAdd, State: OpPending}
	e.notify(op)

	rt, err := e.svc.CreateTask(ctx, service.NewTask{Title: title, ImageRef: imageRef, Location: location})
	if err == nil && rt.ID == "" {
		err = service.NewError(service.ErrNetwork, "add task", "server returned no id", nil)
	}
	if err != nil {
		op.fail(err)
		e.notify(op)
		e.logger.Warn("failed to add task", "err", err)
		return Task{}, err
	}

	t := fromRemote(rt, e.now())
	e.mu.Lock()
	if _, exists := e.tasks[t.ID]; !exists {
		e.order = append(e.order, t.ID)
	}
	e.tasks[t.ID] = t
	e.mu.Unlock()

	op.TaskID = t.ID
	op.commit()
	e.notify(op)
	e.logger.Debug("task added", "id", t.ID)
	return t, nil
}

// ToggleCompletion flips a task's completion locally, then sends the new
// value. A failed update is reconciled by reloading.
func (e *Engine) ToggleCompletion(ctx context.Context, id string) error {
	e.mu.Lock()
	t, ok := e.tasks[id]
	if !ok {
		e.mu.Unlock()
		return service.NewError(service.ErrNotFound, "toggle task", "no task "+id, nil)
	}
	t.IsCompleted = !t.IsCompleted
	e.tasks[id] = t
	e.mu.Unlock()

	op := &Op{Kind: OpToggle, TaskID: id, State: OpPending}
	e.notify(op)

	completed := t.IsCompleted
	_, err := e.svc.UpdateTask(ctx, id, service.TaskPatch{Completed: &completed})
	if err != nil {
		return e.reconcile(ctx, op, err)
	}

	op.commit()
	e.notify(op)
	return nil
}

// DeleteTask removes a task locally, then deletes it remotely. A failed
// delete is reconciled by reloading. A task unknown locally is still deleted
// remotely.
func (e *Engine) DeleteTask(ctx context.Context, id string) error {
	e.mu.Lock()
	removed, existed := e.tasks[id]
	if existed {
		delete(e.tasks, id)
		e.order = removeID(e.order, id)
	}
	e.mu.Unlock()

	op := &Op{Kind: OpDelete, TaskID: id, State: OpPending}
	e.notify(op)

	if err := e.svc.DeleteTask(ctx, id); err != nil {
		return e.reconcile(ctx, op, err)
	}

	op.commit()
	e.notify(op)

	if existed && removed.ImageURI != "" && IsLocalImage(removed.ImageURI) {
		if err := e.cleanup(removed.ImageURI); err != nil {
			e.logger.Info("could not remove local image", "path", removed.ImageURI, "err", err)
		}
	}
	return nil
}

// reconcile marks op failed and reloads the authoritative list. The original
// error is returned, joined with the reload error if that fails too.
func (e *Engine) reconcile(ctx context.Context, op *Op, err error) error {
	op.fail(err)
	e.notify(op)
	e.logger.Warn(op.Kind.String()+" failed, reloading", "id", op.TaskID, "err", err)

	if reloadErr := e.LoadTasks(ctx); reloadErr != nil {
		return errors.Join(err, reloadErr)
	}
	return err
}

func (e *Engine) notify(op *Op) {
	e.mu.Lock()
	if len(e.listeners) == 0 {
		e.mu.Unlock()
		return
	}
	snap := Snapshot{Tasks: e.snapshotLocked(), Loading: e.loads > 0}
	if op != nil {
		c := *op
		snap.LastOp = &c
	}
	listeners := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		listeners = append(listeners, l)
	}
	e.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

func (e *Engine) snapshotLocked() []Task {
	out := make([]Task, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.tasks[id])
	}
	return out
}

func fromRemote(rt service.RemoteTask, fallback time.Time) Task {
	t := Task{
		ID:          rt.ID,
		Title:       rt.Title,
		IsCompleted: rt.Completed,
		ImageURI:    rt.PhotoURI,
		Location:    rt.Location,
		CreatedAt:   fallback,
	}
	if rt.CreatedAt != nil {
		t.CreatedAt = *rt.CreatedAt
	}
	return t
}

func removeID(order []string, id string) []string {
	out := make([]string, 0, len(order))
	for _, v := range order {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
