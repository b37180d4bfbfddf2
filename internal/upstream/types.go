// Package upstream fetches projects and tasks from a KodBox server.
package upstream

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for upstream failures
var (
	// ErrUnavailable indicates the upstream server could not be reached
	ErrUnavailable = errors.New("upstream unavailable")
	// ErrAuthFailed indicates the upstream rejected the configured credentials
	ErrAuthFailed = errors.New("upstream authentication failed")
	// ErrNotFound indicates the requested project does not exist upstream
	ErrNotFound = errors.New("project not found")
	// ErrMalformedData indicates the upstream payload could not be decoded
	ErrMalformedData = errors.New("malformed upstream data")
)

// TaskStatus is the lifecycle state of a task
type TaskStatus string

const (
	StatusOpen   TaskStatus = "open"
	StatusDoing  TaskStatus = "doing"
	StatusDone   TaskStatus = "done"
	StatusClosed TaskStatus = "closed"
)

// TaskPriority is the urgency level of a task
type TaskPriority string

const (
	PriorityNone     TaskPriority = ""
	PriorityVeryLow  TaskPriority = "very-low"
	PriorityLow      TaskPriority = "low"
	PriorityNormal   TaskPriority = "normal"
	PriorityHigh     TaskPriority = "high"
	PriorityVeryHigh TaskPriority = "very-high"
)

// Project is an upstream project container
type Project struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	ModifiedAt  time.Time
}

// Task is a single work item inside a project. Zero time values mean
// the corresponding field is unset upstream.
type Task struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	Status      TaskStatus
	Priority    TaskPriority
	Assignee    string
	Start       time.Time
	Due         time.Time
	CreatedAt   time.Time
	ModifiedAt  time.Time
}

// Client lists projects and their tasks from the upstream service
type Client interface {
	// ListProjects fetches the current set of projects
	ListProjects(ctx context.Context) ([]Project, error)
	// ListTasks fetches the tasks belonging to one project
	ListTasks(ctx context.Context, projectID string) ([]Task, error)
}
