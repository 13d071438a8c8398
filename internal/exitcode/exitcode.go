// Package exitcode defines exit codes for the CLI.
package exitcode

// Process exit codes.
const (
	// Success indicates successful completion.
	Success = 0

	// UserError indicates a user error (bad args, unknown task, invalid input).
	UserError = 1

	// AuthError indicates a session error: not logged in, rejected
	// credentials, or an unreadable session store.
	AuthError = 2

	// BackendError indicates a backend/API/network error.
	BackendError = 3
)
