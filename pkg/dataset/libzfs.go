//go:build libzfs

package dataset

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	libzfs "github.com/bicomsystems/go-libzfs"
	"github.com/containerd/errdefs"
	"github.com/docker/go-units"
	"github.com/rs/zerolog"

	"github.com/vmstated/vmstate/pkg/log"
)

// LibZFSDriver drives the storage engine through libzfs bindings instead
// of the command-line tool. It avoids process spawns and output parsing,
// at the cost of a cgo dependency on the zfs development headers.
type LibZFSDriver struct {
	logger zerolog.Logger
}

// NewLibZFSDriver creates a native libzfs-backed driver.
func NewLibZFSDriver() (Driver, error) {
	return &LibZFSDriver{logger: log.WithComponent("dataset")}, nil
}

func mountpointProps(mountpoint string) map[libzfs.Prop]libzfs.Property {
	return map[libzfs.Prop]libzfs.Property{
		libzfs.DatasetPropMountpoint: {Value: mountpoint},
	}
}

// CreateDataset implements Driver.
func (d *LibZFSDriver) CreateDataset(ctx context.Context, path, mountpoint string) error {
	ds, err := libzfs.DatasetCreate(path, libzfs.DatasetTypeFilesystem, mountpointProps(mountpoint))
	if err != nil {
		return fmt.Errorf("libzfs create %s: %v: %w", path, err, errdefs.ErrInternal)
	}
	defer ds.Close()

	if err := ds.Mount("", 0); err != nil {
		return fmt.Errorf("libzfs mount %s: %v: %w", path, err, errdefs.ErrInternal)
	}
	return nil
}

// DestroyDataset implements Driver.
func (d *LibZFSDriver) DestroyDataset(ctx context.Context, path string, recursive bool) error {
	ds, err := libzfs.DatasetOpen(path)
	if err != nil {
		return fmt.Errorf("libzfs open %s: %v: %w", path, err, errdefs.ErrNotFound)
	}
	defer ds.Close()

	if recursive {
		if err := ds.DestroyRecursive(); err != nil {
			return fmt.Errorf("libzfs destroy -r %s: %v: %w", path, err, errdefs.ErrInternal)
		}
		return nil
	}
	if err := ds.Destroy(false); err != nil {
		return fmt.Errorf("libzfs destroy %s: %v: %w", path, err, errdefs.ErrConflict)
	}
	return nil
}

// DatasetExists implements Driver.
func (d *LibZFSDriver) DatasetExists(ctx context.Context, path string) (bool, error) {
	ds, err := libzfs.DatasetOpen(path)
	if err != nil {
		return false, nil
	}
	ds.Close()
	return true, nil
}

// GetUsage implements Driver.
func (d *LibZFSDriver) GetUsage(ctx context.Context, path string) (Usage, error) {
	ds, err := libzfs.DatasetOpen(path)
	if err != nil {
		return Usage{}, fmt.Errorf("libzfs open %s: %v: %w", path, err, errdefs.ErrNotFound)
	}
	defer ds.Close()

	return Usage{
		UsedBytes:      d.numericProp(&ds, libzfs.DatasetPropUsed),
		AvailableBytes: d.numericProp(&ds, libzfs.DatasetPropAvailable),
	}, nil
}

// ListChildren implements Driver.
func (d *LibZFSDriver) ListChildren(ctx context.Context, base string) ([]Info, error) {
	ds, err := libzfs.DatasetOpen(base)
	if err != nil {
		return nil, fmt.Errorf("libzfs open %s: %v: %w", base, err, errdefs.ErrNotFound)
	}
	defer ds.Close()

	out := make([]Info, 0, len(ds.Children))
	for i := range ds.Children {
		child := &ds.Children[i]
		path, perr := child.Path()
		if perr != nil {
			d.logger.Debug().Err(perr).Msg("skipping child dataset without path")
			continue
		}
		out = append(out, Info{
			Path:           path,
			UsedBytes:      d.numericProp(child, libzfs.DatasetPropUsed),
			AvailableBytes: d.numericProp(child, libzfs.DatasetPropAvailable),
		})
	}
	return out, nil
}

// CreateSnapshot implements Driver.
func (d *LibZFSDriver) CreateSnapshot(ctx context.Context, dataset, name string) error {
	snap, err := libzfs.DatasetSnapshot(dataset+"@"+name, false, nil)
	if err != nil {
		return fmt.Errorf("libzfs snapshot %s@%s: %v: %w", dataset, name, err, errdefs.ErrInternal)
	}
	snap.Close()
	return nil
}

// DestroySnapshot implements Driver.
func (d *LibZFSDriver) DestroySnapshot(ctx context.Context, dataset, name string) error {
	ref := dataset + "@" + name
	snap, err := libzfs.DatasetOpen(ref)
	if err != nil {
		return fmt.Errorf("libzfs open %s: %v: %w", ref, err, errdefs.ErrNotFound)
	}
	defer snap.Close()

	if err := snap.Destroy(false); err != nil {
		return fmt.Errorf("libzfs destroy %s: %v: %w", ref, err, errdefs.ErrInternal)
	}
	return nil
}

// ListSnapshots implements Driver.
func (d *LibZFSDriver) ListSnapshots(ctx context.Context, path string) ([]Snapshot, error) {
	ds, err := libzfs.DatasetOpen(path)
	if err != nil {
		return nil, fmt.Errorf("libzfs open %s: %v: %w", path, err, errdefs.ErrNotFound)
	}
	defer ds.Close()

	var out []Snapshot
	if err := d.collectSnapshots(&ds, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *LibZFSDriver) collectSnapshots(ds *libzfs.Dataset, out *[]Snapshot) error {
	snaps, err := ds.Snapshots()
	if err != nil {
		return fmt.Errorf("libzfs snapshots: %v: %w", err, errdefs.ErrInternal)
	}
	for i := range snaps {
		snap := &snaps[i]
		full, perr := snap.Path()
		if perr != nil {
			continue
		}
		dsPath, name, ok := strings.Cut(full, "@")
		if !ok {
			continue
		}
		*out = append(*out, Snapshot{
			Dataset:   dsPath,
			Name:      name,
			CreatedAt: d.creationProp(snap),
			SizeBytes: d.numericProp(snap, libzfs.DatasetPropReferenced),
		})
		snap.Close()
	}
	for i := range ds.Children {
		if err := d.collectSnapshots(&ds.Children[i], out); err != nil {
			return err
		}
	}
	return nil
}

// CloneFromSnapshot implements Driver.
func (d *LibZFSDriver) CloneFromSnapshot(ctx context.Context, snapshot, target, mountpoint string) error {
	snap, err := libzfs.DatasetOpen(snapshot)
	if err != nil {
		return fmt.Errorf("libzfs open %s: %v: %w", snapshot, err, errdefs.ErrNotFound)
	}
	defer snap.Close()

	clone, err := snap.Clone(target, mountpointProps(mountpoint))
	if err != nil {
		return fmt.Errorf("libzfs clone %s: %v: %w", snapshot, err, errdefs.ErrInternal)
	}
	defer clone.Close()

	if err := clone.Promote(); err != nil {
		return fmt.Errorf("libzfs promote %s: %v: %w", target, err, errdefs.ErrInternal)
	}
	if err := clone.Mount("", 0); err != nil {
		return fmt.Errorf("libzfs mount %s: %v: %w", target, err, errdefs.ErrInternal)
	}
	return nil
}

// numericProp reads a byte-count property, degrading to zero when the
// value is missing or unparseable.
func (d *LibZFSDriver) numericProp(ds *libzfs.Dataset, prop libzfs.Prop) int64 {
	p, err := ds.GetProperty(prop)
	if err != nil {
		d.logger.Debug().Err(err).Msg("failed to read dataset property")
		return 0
	}
	if n, err := strconv.ParseInt(p.Value, 10, 64); err == nil {
		return n
	}
	if n, err := units.RAMInBytes(p.Value); err == nil {
		return n
	}
	d.logger.Debug().Str("value", p.Value).Msg("unparseable property value, treating as zero")
	return 0
}

// creationProp reads the creation time, degrading to the zero time.
func (d *LibZFSDriver) creationProp(ds *libzfs.Dataset) time.Time {
	p, err := ds.GetProperty(libzfs.DatasetPropCreation)
	if err != nil {
		return time.Time{}
	}
	if secs, err := strconv.ParseInt(p.Value, 10, 64); err == nil {
		return time.Unix(secs, 0)
	}
	if t, err := time.Parse(creationLayout, p.Value); err == nil {
		return t
	}
	return time.Time{}
}
