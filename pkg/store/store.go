// Package store defines the polymorphic job/settings persistence interface
// and its two implementations (spec.md §9, Design Note: "the metadata store
// is a narrow interface with an in-memory implementation for tests and an
// embedded-SQL implementation for the CLI binary"). Grounded on the
// itsmenewbie03-greg teacher-adjacent repo's internal/database package for
// the embedded-SQL shape, generalized from its GORM/glebarez stack to a
// plain database/sql + modernc.org/sqlite driver since the job/settings
// schema here is narrow enough not to need an ORM.
package store

import (
	"context"
	"errors"

	"streamengine/pkg/model"
)

// ErrNotFound is returned when a lookup finds no matching record.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence boundary the engine depends on. Every method
// takes a context so the sqlite implementation can honor cancellation on a
// slow disk.
type Store interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context) ([]*model.Job, error)
	// UpdateJob applies a partial mutation to the stored job record,
	// atomically with respect to other UpdateJob/GetJob calls for the same
	// ID (spec.md §3, Invariants: "progress fields move monotonically
	// under a single writer per job").
	UpdateJob(ctx context.Context, id string, mutate func(*model.Job)) error
	DeleteJob(ctx context.Context, id string) error

	GetSettings(ctx context.Context) (*model.Settings, error)
	SaveSettings(ctx context.Context, s *model.Settings) error

	Close() error
}
