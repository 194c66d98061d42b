package dataset

import (
	"context"
	"errors"
	"time"
)

// ErrLibZFSUnavailable is returned by NewLibZFSDriver in binaries built
// without the libzfs tag.
var ErrLibZFSUnavailable = errors.New("dataset: binary built without libzfs support (rebuild with -tags libzfs)")

// Usage reports space accounting for a single dataset.
type Usage struct {
	UsedBytes      int64
	AvailableBytes int64
}

// Info describes one child dataset under the base.
type Info struct {
	Path           string // full dataset path, e.g. "microvms/storage/states/dev"
	UsedBytes      int64
	AvailableBytes int64
}

// Snapshot describes one snapshot found under a dataset.
type Snapshot struct {
	Dataset   string    // full dataset path the snapshot belongs to
	Name      string    // short name, the part after '@'
	CreatedAt time.Time // zero when the backend's creation time was unparseable
	SizeBytes int64     // referenced bytes
}

// FullName returns the backend reference "dataset@name".
func (s Snapshot) FullName() string {
	return s.Dataset + "@" + s.Name
}

// Driver is the storage backend contract. Implementations map these calls
// onto a copy-on-write storage engine; pkg/state is written purely against
// this interface and never against an engine directly.
//
// Error conventions: DatasetExists reports absence as (false, nil), never
// as an error. All other methods wrap engine failures with the errdefs
// sentinels (ErrNotFound, ErrAlreadyExists, ErrConflict, ErrInternal) so
// callers can classify with errors.Is while the original engine message
// stays in the chain.
type Driver interface {
	// CreateDataset creates path with the given mountpoint, mounted
	// immediately.
	CreateDataset(ctx context.Context, path, mountpoint string) error

	// DestroyDataset destroys path. With recursive set, snapshots and
	// nested descendants go with it; without, the engine's refusal to
	// destroy a dataset that still has dependents is surfaced as an error.
	DestroyDataset(ctx context.Context, path string, recursive bool) error

	// DatasetExists probes for path.
	DatasetExists(ctx context.Context, path string) (bool, error)

	// GetUsage returns space accounting for path.
	GetUsage(ctx context.Context, path string) (Usage, error)

	// ListChildren lists the direct children of base, excluding base
	// itself and any deeper-nested descendants.
	ListChildren(ctx context.Context, base string) ([]Info, error)

	// CreateSnapshot creates dataset@name.
	CreateSnapshot(ctx context.Context, dataset, name string) error

	// DestroySnapshot destroys dataset@name.
	DestroySnapshot(ctx context.Context, dataset, name string) error

	// ListSnapshots lists all snapshots at and below path.
	ListSnapshots(ctx context.Context, path string) ([]Snapshot, error)

	// CloneFromSnapshot creates target from the snapshot reference
	// "dataset@name" with the given mountpoint and immediately promotes
	// it, so the new dataset owns its history and outlives the source.
	CloneFromSnapshot(ctx context.Context, snapshot, target, mountpoint string) error
}
