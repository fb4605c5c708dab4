package queue

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no row matches the requested id and status.
var ErrNotFound = errors.New("patient not found")

// ErrNoLongerQueued is returned by Service.ServeNext when the patient it
// picked had already left the queue in the store. The patient is dropped
// from the list and the next call moves on.
var ErrNoLongerQueued = errors.New("patient no longer queued")

type PatientRepository interface {
	// Insert stores p as queued. Implementations write the stored id back into p.
	Insert(ctx context.Context, p *Patient) error
	MarkServed(ctx context.Context, id int, at time.Time) error
	// ListQueued returns queued patients in serving order.
	ListQueued(ctx context.Context) ([]Patient, error)
	// ListServed returns served patients, most recently served first.
	ListServed(ctx context.Context, limit, offset int) ([]*Record, int, error)
	ClearQueued(ctx context.Context) (int64, error)
	DeleteServed(ctx context.Context, id int) (bool, error)
	Delete(ctx context.Context, id int) error
	ListAll(ctx context.Context) ([]*Record, error)
	MaxID(ctx context.Context) (int, error)
	// FindByName returns rows of any status whose name contains name,
	// ignoring case, lowest id first.
	FindByName(ctx context.Context, name string, limit int) ([]*Record, error)
}
