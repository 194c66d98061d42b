package dataset

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/containerd/errdefs"
)

// MemDriver is a fully in-memory Driver. It models just enough engine
// behavior for pkg/state to be tested without a storage engine on the
// host: path hierarchy, snapshot sets, clone independence, and the
// engine's refusal to destroy datasets that still have dependents.
type MemDriver struct {
	mu       sync.Mutex
	datasets map[string]*memDataset
}

type memDataset struct {
	mountpoint string
	used       int64
	avail      int64
	snapshots  map[string]memSnapshot
	snapOrder  []string
}

type memSnapshot struct {
	createdAt time.Time
	size      int64
}

// NewMemDriver creates an empty in-memory driver.
func NewMemDriver() *MemDriver {
	return &MemDriver{datasets: map[string]*memDataset{}}
}

// SetUsage overrides the reported space accounting for a dataset. Intended
// for tests.
func (m *MemDriver) SetUsage(path string, used, avail int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ds, ok := m.datasets[path]; ok {
		ds.used = used
		ds.avail = avail
	}
}

// Mountpoint reports the mountpoint a dataset was created with. Intended
// for tests.
func (m *MemDriver) Mountpoint(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, ok := m.datasets[path]
	if !ok {
		return "", false
	}
	return ds.mountpoint, true
}

// CreateDataset implements Driver.
func (m *MemDriver) CreateDataset(ctx context.Context, path, mountpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.datasets[path]; ok {
		return fmt.Errorf("dataset %s: %w", path, errdefs.ErrAlreadyExists)
	}
	m.datasets[path] = &memDataset{
		mountpoint: mountpoint,
		used:       24 * 1024,
		avail:      10 * 1024 * 1024 * 1024,
		snapshots:  map[string]memSnapshot{},
	}
	return nil
}

// DestroyDataset implements Driver.
func (m *MemDriver) DestroyDataset(ctx context.Context, path string, recursive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ds, ok := m.datasets[path]
	if !ok {
		return fmt.Errorf("dataset %s: %w", path, errdefs.ErrNotFound)
	}

	var nested []string
	for p := range m.datasets {
		if strings.HasPrefix(p, path+"/") {
			nested = append(nested, p)
		}
	}

	if !recursive {
		if len(ds.snapshots) > 0 {
			return fmt.Errorf("dataset %s has snapshots: %w", path, errdefs.ErrConflict)
		}
		if len(nested) > 0 {
			return fmt.Errorf("dataset %s has children: %w", path, errdefs.ErrConflict)
		}
	}

	for _, p := range nested {
		delete(m.datasets, p)
	}
	delete(m.datasets, path)
	return nil
}

// DatasetExists implements Driver.
func (m *MemDriver) DatasetExists(ctx context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.datasets[path]
	return ok, nil
}

// GetUsage implements Driver.
func (m *MemDriver) GetUsage(ctx context.Context, path string) (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ds, ok := m.datasets[path]
	if !ok {
		return Usage{}, fmt.Errorf("dataset %s: %w", path, errdefs.ErrNotFound)
	}
	return Usage{UsedBytes: ds.used, AvailableBytes: ds.avail}, nil
}

// ListChildren implements Driver.
func (m *MemDriver) ListChildren(ctx context.Context, base string) ([]Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.datasets[base]; !ok {
		return nil, fmt.Errorf("dataset %s: %w", base, errdefs.ErrNotFound)
	}

	var paths []string
	for p := range m.datasets {
		if p == base {
			continue
		}
		rel := strings.TrimPrefix(p, base+"/")
		if rel == p || strings.Contains(rel, "/") {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]Info, 0, len(paths))
	for _, p := range paths {
		ds := m.datasets[p]
		out = append(out, Info{Path: p, UsedBytes: ds.used, AvailableBytes: ds.avail})
	}
	return out, nil
}

// CreateSnapshot implements Driver.
func (m *MemDriver) CreateSnapshot(ctx context.Context, dataset, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ds, ok := m.datasets[dataset]
	if !ok {
		return fmt.Errorf("dataset %s: %w", dataset, errdefs.ErrNotFound)
	}
	if _, ok := ds.snapshots[name]; ok {
		return fmt.Errorf("snapshot %s@%s: %w", dataset, name, errdefs.ErrAlreadyExists)
	}
	ds.snapshots[name] = memSnapshot{createdAt: time.Now(), size: ds.used}
	ds.snapOrder = append(ds.snapOrder, name)
	return nil
}

// DestroySnapshot implements Driver.
func (m *MemDriver) DestroySnapshot(ctx context.Context, dataset, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ds, ok := m.datasets[dataset]
	if !ok {
		return fmt.Errorf("dataset %s: %w", dataset, errdefs.ErrNotFound)
	}
	if _, ok := ds.snapshots[name]; !ok {
		return fmt.Errorf("snapshot %s@%s: %w", dataset, name, errdefs.ErrNotFound)
	}
	delete(ds.snapshots, name)
	for i, n := range ds.snapOrder {
		if n == name {
			ds.snapOrder = append(ds.snapOrder[:i], ds.snapOrder[i+1:]...)
			break
		}
	}
	return nil
}

// ListSnapshots implements Driver.
func (m *MemDriver) ListSnapshots(ctx context.Context, path string) ([]Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.datasets[path]; !ok {
		return nil, fmt.Errorf("dataset %s: %w", path, errdefs.ErrNotFound)
	}

	var paths []string
	for p := range m.datasets {
		if p == path || strings.HasPrefix(p, path+"/") {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	var out []Snapshot
	for _, p := range paths {
		ds := m.datasets[p]
		for _, name := range ds.snapOrder {
			snap := ds.snapshots[name]
			out = append(out, Snapshot{
				Dataset:   p,
				Name:      name,
				CreatedAt: snap.createdAt,
				SizeBytes: snap.size,
			})
		}
	}
	return out, nil
}

// CloneFromSnapshot implements Driver. The clone is modeled as a fully
// independent dataset, and the origin snapshot migrates to it, which is
// what promotion does to the fork point.
func (m *MemDriver) CloneFromSnapshot(ctx context.Context, snapshot, target, mountpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, name, ok := strings.Cut(snapshot, "@")
	if !ok {
		return fmt.Errorf("snapshot reference %q missing '@': %w", snapshot, errdefs.ErrInvalidArgument)
	}
	ds, okSrc := m.datasets[src]
	if !okSrc {
		return fmt.Errorf("dataset %s: %w", src, errdefs.ErrNotFound)
	}
	snap, okSnap := ds.snapshots[name]
	if !okSnap {
		return fmt.Errorf("snapshot %s: %w", snapshot, errdefs.ErrNotFound)
	}
	if _, okDst := m.datasets[target]; okDst {
		return fmt.Errorf("dataset %s: %w", target, errdefs.ErrAlreadyExists)
	}

	m.datasets[target] = &memDataset{
		mountpoint: mountpoint,
		used:       ds.used,
		avail:      ds.avail,
		snapshots:  map[string]memSnapshot{name: snap},
		snapOrder:  []string{name},
	}

	// Promotion hands the origin snapshot to the promoted clone.
	delete(ds.snapshots, name)
	for i, n := range ds.snapOrder {
		if n == name {
			ds.snapOrder = append(ds.snapOrder[:i], ds.snapOrder[i+1:]...)
			break
		}
	}
	return nil
}
