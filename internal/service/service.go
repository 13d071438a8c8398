// Package service defines the backend-agnostic contract for the remote task store.
package service

import "context"

// Authenticator exchanges credentials for a session token.
type Authenticator interface {
	// Login authenticates an existing account.
	// Returns an ErrAuth-kinded error on a non-success response.
	Login(ctx context.Context, identity, secret string) (AuthResult, error)

	// Register creates an account and authenticates it.
	Register(ctx context.Context, identity, secret string) (AuthResult, error)
}

// TaskService defines the remote task operations.
// Calls are stateless and may be retried by the caller; none retry on their own.
type TaskService interface {
	// ListTasks returns the authoritative task list in server order.
	ListTasks(ctx context.Context) ([]RemoteTask, error)

	// CreateTask creates a task. A local ImageRef is uploaded first and the
	// task references the uploaded URL, never the local path.
	CreateTask(ctx context.Context, task NewTask) (RemoteTask, error)

	// UpdateTask applies a partial update.
	// Returns ErrNotFound if the task does not exist.
	UpdateTask(ctx context.Context, id string, patch TaskPatch) (RemoteTask, error)

	// DeleteTask deletes a task. Deleting a missing task succeeds.
	DeleteTask(ctx context.Context, id string) error
}

// Service is the full remote contract.
// Commands never talk HTTP directly; everything goes through this interface.
type Service interface {
	Authenticator
	TaskService
}
