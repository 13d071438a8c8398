// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"todo/internal/service"
)

// FakeService is an in-memory implementation of service.Service for testing.
type FakeService struct {
	mu       sync.RWMutex
	accounts map[string]string // identity -> secret
	tasks    []service.RemoteTask
	nextID   int
	calls    []string

	// Error injection for testing
	LoginErr    error
	RegisterErr error
	ListErr     error
	CreateErr   error
	UpdateErr   error
	DeleteErr   error

	// Hooks run at the start of the matching call, before any state change.
	// Tests use them to observe optimistic state while a call is in flight.
	BeforeList   func()
	BeforeUpdate func(id string)
	BeforeDelete func(id string)
}

// NewFakeService creates an empty FakeService.
func NewFakeService() *FakeService {
	return &FakeService{accounts: make(map[string]string)}
}

// AddAccount registers credentials accepted by Login.
func (f *FakeService) AddAccount(identity, secret string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[identity] = secret
}

// AddTask seeds a remote task and returns it.
func (f *FakeService) AddTask(title string, completed bool) service.RemoteTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := service.RemoteTask{ID: f.newID(), Title: title, Completed: completed}
	f.tasks = append(f.tasks, t)
	return t
}

// SetTasks replaces the remote list verbatim.
func (f *FakeService) SetTasks(tasks []service.RemoteTask) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append([]service.RemoteTask(nil), tasks...)
}

// Tasks returns a copy of the remote list.
func (f *FakeService) Tasks() []service.RemoteTask {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]service.RemoteTask(nil), f.tasks...)
}

// Calls returns the names of the calls received so far.
func (f *FakeService) Calls() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.calls...)
}

// CallCount returns how many times the named call was received.
func (f *FakeService) CallCount(name string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

func (f *FakeService) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

// newID must be called with f.mu held.
func (f *FakeService) newID() string {
	f.nextID++
	return fmt.Sprintf("t%d", f.nextID)
}

// Login implements service.Authenticator.
func (f *FakeService) Login(ctx context.Context, identity, secret string) (service.AuthResult, error) {
	f.record("Login")
	if f.LoginErr != nil {
		return service.AuthResult{}, f.LoginErr
	}
	f.mu.RLock()
	want, ok := f.accounts[identity]
	f.mu.RUnlock()
	if !ok || want != secret {
		return service.AuthResult{}, service.NewError(service.ErrAuth, "login", "invalid credentials", nil)
	}
	return service.AuthResult{Token: "token-" + identity, Identity: identity}, nil
}

// Register implements service.Authenticator.
func (f *FakeService) Register(ctx context.Context, identity, secret string) (service.AuthResult, error) {
	f.record("Register")
	if f.RegisterErr != nil {
		return service.AuthResult{}, f.RegisterErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.accounts[identity]; exists {
		return service.AuthResult{}, service.NewError(service.ErrAuth, "register", "already registered", nil)
	}
	f.accounts[identity] = secret
	return service.AuthResult{Token: "token-" + identity, Identity: identity}, nil
}

// ListTasks implements service.TaskService.
func (f *FakeService) ListTasks(ctx context.Context) ([]service.RemoteTask, error) {
	f.record("ListTasks")
	if f.BeforeList != nil {
		f.BeforeList()
	}
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return f.Tasks(), nil
}

// CreateTask implements service.TaskService.
func (f *FakeService) CreateTask(ctx context.Context, task service.NewTask) (service.RemoteTask, error) {
	f.record("CreateTask")
	if f.CreateErr != nil {
		return service.RemoteTask{}, f.CreateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := service.RemoteTask{
		ID:       f.newID(),
		Title:    task.Title,
		PhotoURI: task.ImageRef,
		Location: task.Location,
	}
	f.tasks = append(f.tasks, t)
	return t, nil
}

// UpdateTask implements service.TaskService.
func (f *FakeService) UpdateTask(ctx context.Context, id string, patch service.TaskPatch) (service.RemoteTask, error) {
	f.record("UpdateTask")
	if f.BeforeUpdate != nil {
		f.BeforeUpdate(id)
	}
	if f.UpdateErr != nil {
		return service.RemoteTask{}, f.UpdateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID != id {
			continue
		}
		if patch.Title != nil {
			f.tasks[i].Title = *patch.Title
		}
		if patch.Completed != nil {
			f.tasks[i].Completed = *patch.Completed
		}
		return f.tasks[i], nil
	}
	return service.RemoteTask{}, service.NewError(service.ErrNotFound, "update task", "task not found", nil)
}

// DeleteTask implements service.TaskService.
func (f *FakeService) DeleteTask(ctx context.Context, id string) error {
	f.record("DeleteTask")
	if f.BeforeDelete != nil {
		f.BeforeDelete(id)
	}
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tasks {
		if t.ID == id {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return nil
		}
	}
	return nil
}
