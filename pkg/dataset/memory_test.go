package dataset

import (
	"context"
	"errors"
	"testing"

	"github.com/containerd/errdefs"
)

func TestMemDriverCreateAndExists(t *testing.T) {
	m := NewMemDriver()
	ctx := context.Background()

	ok, err := m.DatasetExists(ctx, "p/b/s")
	if err != nil || ok {
		t.Fatalf("DatasetExists() = (%v, %v) before create, want (false, nil)", ok, err)
	}

	if err := m.CreateDataset(ctx, "p/b/s", "/mnt/s"); err != nil {
		t.Fatalf("CreateDataset() error = %v", err)
	}
	ok, err = m.DatasetExists(ctx, "p/b/s")
	if err != nil || !ok {
		t.Fatalf("DatasetExists() = (%v, %v) after create, want (true, nil)", ok, err)
	}
	if mp, _ := m.Mountpoint("p/b/s"); mp != "/mnt/s" {
		t.Errorf("Mountpoint = %q, want /mnt/s", mp)
	}

	err = m.CreateDataset(ctx, "p/b/s", "/mnt/s")
	if !errors.Is(err, errdefs.ErrAlreadyExists) {
		t.Errorf("second CreateDataset() error = %v, want ErrAlreadyExists", err)
	}
}

func TestMemDriverDestroyRefusesDependents(t *testing.T) {
	m := NewMemDriver()
	ctx := context.Background()

	if err := m.CreateDataset(ctx, "p/b/s", "/mnt/s"); err != nil {
		t.Fatalf("CreateDataset() error = %v", err)
	}
	if err := m.CreateSnapshot(ctx, "p/b/s", "snap1"); err != nil {
		t.Fatalf("CreateSnapshot() error = %v", err)
	}

	err := m.DestroyDataset(ctx, "p/b/s", false)
	if !errors.Is(err, errdefs.ErrConflict) {
		t.Errorf("DestroyDataset() with snapshots error = %v, want ErrConflict", err)
	}

	if err := m.DestroyDataset(ctx, "p/b/s", true); err != nil {
		t.Fatalf("DestroyDataset(recursive) error = %v", err)
	}
	if ok, _ := m.DatasetExists(ctx, "p/b/s"); ok {
		t.Error("dataset still exists after recursive destroy")
	}
}

func TestMemDriverSnapshotLifecycle(t *testing.T) {
	m := NewMemDriver()
	ctx := context.Background()

	if err := m.CreateDataset(ctx, "p/b/s", "/mnt/s"); err != nil {
		t.Fatalf("CreateDataset() error = %v", err)
	}
	if err := m.CreateSnapshot(ctx, "p/b/s", "one"); err != nil {
		t.Fatalf("CreateSnapshot() error = %v", err)
	}
	if err := m.CreateSnapshot(ctx, "p/b/s", "two"); err != nil {
		t.Fatalf("CreateSnapshot() error = %v", err)
	}
	if err := m.CreateSnapshot(ctx, "p/b/s", "one"); !errors.Is(err, errdefs.ErrAlreadyExists) {
		t.Errorf("duplicate CreateSnapshot() error = %v, want ErrAlreadyExists", err)
	}

	snaps, err := m.ListSnapshots(ctx, "p/b/s")
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	if len(snaps) != 2 || snaps[0].Name != "one" || snaps[1].Name != "two" {
		t.Fatalf("ListSnapshots() = %+v, want [one two] in creation order", snaps)
	}

	if err := m.DestroySnapshot(ctx, "p/b/s", "one"); err != nil {
		t.Fatalf("DestroySnapshot() error = %v", err)
	}
	if err := m.DestroySnapshot(ctx, "p/b/s", "one"); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("repeat DestroySnapshot() error = %v, want ErrNotFound", err)
	}
}

func TestMemDriverListChildren(t *testing.T) {
	m := NewMemDriver()
	ctx := context.Background()

	for _, ds := range []string{"p/b", "p/b/a", "p/b/c", "p/b/a/nested"} {
		if err := m.CreateDataset(ctx, ds, "/mnt/"+ds); err != nil {
			t.Fatalf("CreateDataset(%s) error = %v", ds, err)
		}
	}

	infos, err := m.ListChildren(ctx, "p/b")
	if err != nil {
		t.Fatalf("ListChildren() error = %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("ListChildren() = %+v, want 2 direct children", infos)
	}
	if infos[0].Path != "p/b/a" || infos[1].Path != "p/b/c" {
		t.Errorf("children = [%s %s], want [p/b/a p/b/c]", infos[0].Path, infos[1].Path)
	}
}

func TestMemDriverCloneIsIndependent(t *testing.T) {
	m := NewMemDriver()
	ctx := context.Background()

	if err := m.CreateDataset(ctx, "p/b/src", "/mnt/src"); err != nil {
		t.Fatalf("CreateDataset() error = %v", err)
	}
	if err := m.CreateSnapshot(ctx, "p/b/src", "clone-for-dst"); err != nil {
		t.Fatalf("CreateSnapshot() error = %v", err)
	}
	if err := m.CloneFromSnapshot(ctx, "p/b/src@clone-for-dst", "p/b/dst", "/mnt/dst"); err != nil {
		t.Fatalf("CloneFromSnapshot() error = %v", err)
	}

	// Promotion hands the origin snapshot to the clone.
	snaps, err := m.ListSnapshots(ctx, "p/b/dst")
	if err != nil {
		t.Fatalf("ListSnapshots(dst) error = %v", err)
	}
	if len(snaps) != 1 || snaps[0].Name != "clone-for-dst" {
		t.Fatalf("clone snapshots = %+v, want the migrated origin snapshot", snaps)
	}
	if srcSnaps, _ := m.ListSnapshots(ctx, "p/b/src"); len(srcSnaps) != 0 {
		t.Errorf("source still holds %d snapshots after promotion", len(srcSnaps))
	}

	// Destroying the source must not take the promoted clone with it.
	if err := m.DestroyDataset(ctx, "p/b/src", true); err != nil {
		t.Fatalf("DestroyDataset(src) error = %v", err)
	}
	ok, err := m.DatasetExists(ctx, "p/b/dst")
	if err != nil || !ok {
		t.Fatalf("clone missing after source destroy: (%v, %v)", ok, err)
	}

	// Cloning from a missing snapshot fails cleanly.
	err = m.CloneFromSnapshot(ctx, "p/b/dst@nope", "p/b/other", "/mnt/other")
	if !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("CloneFromSnapshot(missing snap) error = %v, want ErrNotFound", err)
	}
}
