package queue

import (
	"fmt"
	"strings"
	"time"
)

// Priority is the triage class of a waiting patient. Lower values are more urgent.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityMedium Priority = 2
	PriorityLow    Priority = 3
)

func (p Priority) Valid() bool {
	return p >= PriorityHigh && p <= PriorityLow
}

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "High"
	case PriorityMedium:
		return "Medium"
	case PriorityLow:
		return "Low"
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

// Status is the lifecycle state of a persisted patient row.
type Status string

const (
	StatusQueued Status = "queued"
	StatusServed Status = "served"
)

const (
	MinAge = 1
	MaxAge = 150

	// NoPatientID is the id carried by the zero result of ServeNext on an empty list.
	NoPatientID = -1
)

// Patient is a waiting-list entry.
type Patient struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Age      int      `json:"age"`
	Priority Priority `json:"priority"`
}

// Record maps to the patients table.
type Record struct {
	Patient
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	ServedAt  *time.Time `json:"served_at,omitempty"`
}

// QueueStatus is how many patients wait and who would be served next.
type QueueStatus struct {
	Waiting int      `json:"waiting"`
	Next    *Patient `json:"next"`
}

// MaxFindResults caps a name lookup.
const MaxFindResults = 5

// ValidationError reports an admission argument outside its domain.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

// Validate checks admission arguments. The waiting list itself does not
// re-check them, so callers run this before Admit.
func Validate(name string, age int, priority Priority) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "name", Reason: "name cannot be empty"}
	}
	if age < MinAge || age > MaxAge {
		return &ValidationError{Field: "age", Reason: fmt.Sprintf("age must be between %d and %d", MinAge, MaxAge)}
	}
	if !priority.Valid() {
		return &ValidationError{Field: "priority", Reason: "priority must be 1, 2, or 3"}
	}
	return nil
}
