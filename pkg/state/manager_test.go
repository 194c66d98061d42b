package state

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmstated/vmstate/pkg/dataset"
	"github.com/vmstated/vmstate/pkg/registry"
	"github.com/vmstated/vmstate/pkg/types"
)

const testBase = "microvms/storage/states"

type testEnv struct {
	mgr *Manager
	drv dataset.Driver
	mem *dataset.MemDriver
	reg *registry.File
	cfg Config
}

// newTestEnv builds a manager over the in-memory driver with the base
// dataset already provisioned, the way a prepared host looks.
func newTestEnv(t *testing.T, opts ...func(*testEnv)) *testEnv {
	t.Helper()

	dir := t.TempDir()
	mem := dataset.NewMemDriver()
	require.NoError(t, mem.CreateDataset(context.Background(), testBase, filepath.Join(dir, "states")))

	slots, err := types.NewSlotSet([]string{"slot1", "slot2", "slot3", "slot4", "slot5"})
	require.NoError(t, err)

	env := &testEnv{
		mem: mem,
		drv: mem,
		reg: registry.New(filepath.Join(dir, "assignments.json")),
		cfg: Config{
			Pool:        "microvms",
			BaseDataset: "storage/states",
			StatesDir:   filepath.Join(dir, "states"),
			SlotsDir:    filepath.Join(dir, "slots"),
			Slots:       slots,
			Owner:       NopOwner{},
		},
	}
	for _, opt := range opts {
		opt(env)
	}

	env.mgr, err = NewManager(env.cfg, env.drv, env.reg)
	require.NoError(t, err)
	return env
}

func TestCreateStateThenExists(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.mgr.CreateState(ctx, "web"))

	exists, err := env.mgr.StateExists(ctx, "web")
	require.NoError(t, err)
	assert.True(t, exists)

	info, err := env.mgr.GetStateInfo(ctx, "web")
	require.NoError(t, err)
	assert.Equal(t, "web", info.Name)
	assert.Equal(t, testBase+"/web", info.Dataset)
	assert.GreaterOrEqual(t, info.UsedBytes, int64(0))

	// The dataset mountpoint follows the states directory layout.
	mp, ok := env.mem.Mountpoint(testBase + "/web")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(env.cfg.StatesDir, "web"), mp)
}

func TestCreateStateDuplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.mgr.CreateState(ctx, "web"))
	err := env.mgr.CreateState(ctx, "web")
	assert.ErrorIs(t, err, errdefs.ErrAlreadyExists)
}

func TestCreateStateInvalidNames(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, name := range []string{"", "a/b", "a@b"} {
		err := env.mgr.CreateState(ctx, name)
		assert.ErrorIs(t, err, errdefs.ErrInvalidArgument, "name %q", name)
	}
}

type failingOwner struct{}

func (failingOwner) Apply(string) error { return errors.New("chown: operation not permitted") }

func TestCreateStateOwnershipFailureIsHard(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.cfg.Owner = failingOwner{}
	})
	ctx := context.Background()

	err := env.mgr.CreateState(ctx, "web")
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrPermissionDenied)

	// The dataset is left in place for manual follow-up.
	exists, derr := env.mem.DatasetExists(ctx, testBase+"/web")
	require.NoError(t, derr)
	assert.True(t, exists)
}

func TestDeleteStateNotFound(t *testing.T) {
	env := newTestEnv(t)
	err := env.mgr.DeleteState(context.Background(), "ghost", false)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestDeleteStateRemovesSnapshots(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.mgr.CreateState(ctx, "web"))
	require.NoError(t, env.mgr.CreateSnapshot(ctx, "web", "first"))
	require.NoError(t, env.mgr.CreateSnapshot(ctx, "web", "second"))

	require.NoError(t, env.mgr.DeleteState(ctx, "web", false))

	exists, err := env.mgr.StateExists(ctx, "web")
	require.NoError(t, err)
	assert.False(t, exists)
}

// flakySnapDriver refuses to destroy one particular snapshot.
type flakySnapDriver struct {
	dataset.Driver
	refuse string
}

func (f *flakySnapDriver) DestroySnapshot(ctx context.Context, ds, name string) error {
	if name == f.refuse {
		return fmt.Errorf("snapshot %s@%s: dataset is busy: %w", ds, name, errdefs.ErrInternal)
	}
	return f.Driver.DestroySnapshot(ctx, ds, name)
}

func TestDeleteStateKeepsParentWhenSnapshotSurvives(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.drv = &flakySnapDriver{Driver: e.mem, refuse: "stuck"}
	})
	ctx := context.Background()

	require.NoError(t, env.mgr.CreateState(ctx, "web"))
	require.NoError(t, env.mgr.CreateSnapshot(ctx, "web", "ok"))
	require.NoError(t, env.mgr.CreateSnapshot(ctx, "web", "stuck"))

	err := env.mgr.DeleteState(ctx, "web", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stuck")

	// Parent survives; the sweep still removed the destroyable snapshot.
	exists, derr := env.mgr.StateExists(ctx, "web")
	require.NoError(t, derr)
	assert.True(t, exists)

	snaps, serr := env.mgr.ListSnapshots(ctx, "web")
	require.NoError(t, serr)
	require.Len(t, snaps, 1)
	assert.Equal(t, "stuck", snaps[0].Name)
}

func TestForceDeleteUsesRecursiveDestroy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.mgr.CreateState(ctx, "slot1"))
	require.NoError(t, env.mgr.CreateSnapshot(ctx, "slot1", "keepsake"))

	// slot1's state is in use by slot1's default assignment.
	err := env.mgr.DeleteState(ctx, "slot1", false)
	assert.ErrorIs(t, err, errdefs.ErrConflict)

	require.NoError(t, env.mgr.DeleteState(ctx, "slot1", true))
	exists, derr := env.mgr.StateExists(ctx, "slot1")
	require.NoError(t, derr)
	assert.False(t, exists)
}

func TestCloneStateIndependence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.mgr.CreateState(ctx, "alpha"))
	require.NoError(t, env.mgr.CloneState(ctx, "alpha", "beta"))

	exists, err := env.mgr.StateExists(ctx, "beta")
	require.NoError(t, err)
	assert.True(t, exists)

	// The fork-point snapshot lives on the promoted clone.
	snaps, err := env.mgr.ListSnapshots(ctx, "beta")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "clone-for-beta", snaps[0].Name)

	// Deleting the source leaves the clone fully intact.
	require.NoError(t, env.mgr.DeleteState(ctx, "alpha", false))

	info, err := env.mgr.GetStateInfo(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, testBase+"/beta", info.Dataset)
	assert.GreaterOrEqual(t, info.UsedBytes, int64(0))
}

func TestCloneStateErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.mgr.CloneState(ctx, "missing", "copy")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	require.NoError(t, env.mgr.CreateState(ctx, "alpha"))
	require.NoError(t, env.mgr.CreateState(ctx, "taken"))
	err = env.mgr.CloneState(ctx, "alpha", "taken")
	assert.ErrorIs(t, err, errdefs.ErrAlreadyExists)
}

func TestSnapshotOfMissingState(t *testing.T) {
	env := newTestEnv(t)
	err := env.mgr.CreateSnapshot(context.Background(), "ghost", "snap")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestDeleteSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.mgr.CreateState(ctx, "web"))
	require.NoError(t, env.mgr.CreateSnapshot(ctx, "web", "before"))
	require.NoError(t, env.mgr.DeleteSnapshot(ctx, "web", "before"))

	err := env.mgr.DeleteSnapshot(ctx, "web", "before")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestListStatesExcludesBaseAndNested(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.mgr.CreateState(ctx, "alpha"))
	require.NoError(t, env.mgr.CreateState(ctx, "beta"))
	// Something created outside this tool, nested below a state.
	require.NoError(t, env.mem.CreateDataset(ctx, testBase+"/alpha/inner", "/tmp/inner"))

	states, err := env.mgr.ListStates(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "alpha", states[0].Name)
	assert.Equal(t, "beta", states[1].Name)
	for _, s := range states {
		assert.NotEqual(t, testBase, s.Dataset)
		assert.NotContains(t, s.Name, "/")
	}
}

func TestListStatesFreshSystem(t *testing.T) {
	// No base dataset at all: an unprovisioned host reads as empty.
	dir := t.TempDir()
	slots, err := types.NewSlotSet([]string{"slot1"})
	require.NoError(t, err)

	mgr, err := NewManager(Config{
		Pool:        "microvms",
		BaseDataset: "storage/states",
		StatesDir:   filepath.Join(dir, "states"),
		SlotsDir:    filepath.Join(dir, "slots"),
		Slots:       slots,
		Owner:       NopOwner{},
	}, dataset.NewMemDriver(), registry.New(filepath.Join(dir, "a.json")))
	require.NoError(t, err)

	states, err := mgr.ListStates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, states)

	snaps, err := mgr.ListAllSnapshots(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestFindSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.mgr.CreateState(ctx, "alpha"))
	require.NoError(t, env.mgr.CreateState(ctx, "beta"))
	require.NoError(t, env.mgr.CreateSnapshot(ctx, "alpha", "nightly"))
	require.NoError(t, env.mgr.CreateSnapshot(ctx, "beta", "nightly"))
	require.NoError(t, env.mgr.CreateSnapshot(ctx, "beta", "release"))

	// Bare short name: first match in listing order.
	snap, err := env.mgr.FindSnapshot(ctx, "nightly")
	require.NoError(t, err)
	assert.Equal(t, "alpha", snap.State)
	assert.Equal(t, testBase+"/alpha@nightly", snap.FullName)

	// Qualified reference pins the state.
	snap, err = env.mgr.FindSnapshot(ctx, "beta@nightly")
	require.NoError(t, err)
	assert.Equal(t, "beta", snap.State)

	_, err = env.mgr.FindSnapshot(ctx, "missing")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	_, err = env.mgr.FindSnapshot(ctx, "alpha@release")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestRestoreSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.mgr.CreateState(ctx, "prod"))
	require.NoError(t, env.mgr.CreateSnapshot(ctx, "prod", "before-upgrade"))

	require.NoError(t, env.mgr.RestoreSnapshot(ctx, "before-upgrade", "prod-rollback"))

	exists, err := env.mgr.StateExists(ctx, "prod-rollback")
	require.NoError(t, err)
	assert.True(t, exists)

	// The restored state must survive its origin's deletion.
	require.NoError(t, env.mgr.DeleteState(ctx, "prod", false))
	exists, err = env.mgr.StateExists(ctx, "prod-rollback")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRestoreSnapshotErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.mgr.CreateState(ctx, "prod"))
	require.NoError(t, env.mgr.CreateSnapshot(ctx, "prod", "before"))

	err := env.mgr.RestoreSnapshot(ctx, "missing", "fresh")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	err = env.mgr.RestoreSnapshot(ctx, "before", "prod")
	assert.ErrorIs(t, err, errdefs.ErrAlreadyExists)
}

func TestListSnapshotsMapsStateNames(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.mgr.CreateState(ctx, "alpha"))
	require.NoError(t, env.mgr.CreateSnapshot(ctx, "alpha", "one"))
	require.NoError(t, env.mgr.CreateSnapshot(ctx, "alpha", "two"))

	// A snapshot of the base dataset itself is not a state snapshot.
	require.NoError(t, env.mem.CreateSnapshot(ctx, testBase, "base-level"))

	all, err := env.mgr.ListAllSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, s := range all {
		assert.Equal(t, "alpha", s.State)
		assert.Equal(t, testBase+"/alpha@"+s.Name, s.FullName)
	}

	perState, err := env.mgr.ListSnapshots(ctx, "alpha")
	require.NoError(t, err)
	assert.Len(t, perState, 2)
}
