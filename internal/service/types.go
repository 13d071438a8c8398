package service

import "time"

// Location is a geographic coordinate pair.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RemoteTask is a task as stored by the server.
type RemoteTask struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Completed bool       `json:"completed"`
	PhotoURI  string     `json:"photoUri,omitempty"`
	Location  *Location  `json:"location,omitempty"`
	UserID    string     `json:"userId,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// NewTask holds the fields for task creation.
type NewTask struct {
	Title    string
	ImageRef string // local path, file:// URI or http(s) URL; empty for none
	Location *Location
}

// TaskPatch holds the fields of a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title     *string `json:"title,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

// AuthResult is the outcome of a successful login or registration.
type AuthResult struct {
	Token    string
	Identity string
}
