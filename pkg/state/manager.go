package state

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/rs/zerolog"

	"github.com/vmstated/vmstate/pkg/dataset"
	"github.com/vmstated/vmstate/pkg/log"
	"github.com/vmstated/vmstate/pkg/registry"
	"github.com/vmstated/vmstate/pkg/types"
)

// dataImageName is the disk image every slot binds from its state.
const dataImageName = "data.img"

// Config carries the manager's host layout.
type Config struct {
	Pool        string
	BaseDataset string // dataset path under the pool, e.g. "storage/states"
	StatesDir   string // mountpoint root for state datasets
	SlotsDir    string // root of per-slot directories holding data.img links
	Slots       *types.SlotSet

	// Owner applies the mountpoint ownership policy. Nil selects the
	// standard microvm:kvm policy.
	Owner Ownership

	OwnerUser  string
	OwnerGroup string
}

// Manager implements the state lifecycle over a dataset driver and the
// assignment registry. It holds no cached engine state: every query goes
// back to the driver, so externally created datasets show up without any
// refresh step.
type Manager struct {
	cfg    Config
	driver dataset.Driver
	reg    *registry.File
	owner  Ownership
	logger zerolog.Logger
}

// NewManager wires a manager from its parts.
func NewManager(cfg Config, drv dataset.Driver, reg *registry.File) (*Manager, error) {
	if cfg.Pool == "" || cfg.BaseDataset == "" {
		return nil, fmt.Errorf("pool and base dataset must be set: %w", errdefs.ErrInvalidArgument)
	}
	if cfg.Slots == nil || cfg.Slots.Len() == 0 {
		return nil, fmt.Errorf("slot set must not be empty: %w", errdefs.ErrInvalidArgument)
	}
	if drv == nil || reg == nil {
		return nil, fmt.Errorf("driver and registry must be set: %w", errdefs.ErrInvalidArgument)
	}

	owner := cfg.Owner
	if owner == nil {
		owner = UnixOwner{User: cfg.OwnerUser, Group: cfg.OwnerGroup, Mode: 0o755}
	}
	return &Manager{
		cfg:    cfg,
		driver: drv,
		reg:    reg,
		owner:  owner,
		logger: log.WithComponent("state"),
	}, nil
}

func (m *Manager) basePath() string {
	return m.cfg.Pool + "/" + m.cfg.BaseDataset
}

func (m *Manager) statePath(name string) string {
	return m.basePath() + "/" + name
}

func (m *Manager) stateMountpoint(name string) string {
	return filepath.Join(m.cfg.StatesDir, name)
}

// stateNameFromPath strips the base prefix; the empty string means the
// path was not a direct child of the base.
func (m *Manager) stateNameFromPath(path string) string {
	rel := strings.TrimPrefix(path, m.basePath()+"/")
	if rel == path || rel == "" || strings.Contains(rel, "/") {
		return ""
	}
	return rel
}

// CreateState creates a new empty state dataset and applies the ownership
// policy to its mountpoint.
func (m *Manager) CreateState(ctx context.Context, name string) error {
	if err := types.ValidateStateName(name); err != nil {
		return err
	}

	path := m.statePath(name)
	exists, err := m.driver.DatasetExists(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to check state %q: %w", name, err)
	}
	if exists {
		return fmt.Errorf("state %q already exists: %w", name, errdefs.ErrAlreadyExists)
	}

	mountpoint := m.stateMountpoint(name)
	if err := m.driver.CreateDataset(ctx, path, mountpoint); err != nil {
		return fmt.Errorf("failed to create state %q: %w", name, err)
	}

	if err := m.owner.Apply(mountpoint); err != nil {
		return fmt.Errorf("state %q created but ownership policy failed: %v: %w", name, err, errdefs.ErrPermissionDenied)
	}

	m.logger.Info().Str("state", name).Str("dataset", path).Msg("state created")
	return nil
}

// StateExists reports whether a state dataset is present.
func (m *Manager) StateExists(ctx context.Context, name string) (bool, error) {
	if err := types.ValidateStateName(name); err != nil {
		return false, err
	}
	return m.driver.DatasetExists(ctx, m.statePath(name))
}

// GetStateInfo returns one state with fresh usage numbers.
func (m *Manager) GetStateInfo(ctx context.Context, name string) (types.StateInfo, error) {
	if err := types.ValidateStateName(name); err != nil {
		return types.StateInfo{}, err
	}

	path := m.statePath(name)
	exists, err := m.driver.DatasetExists(ctx, path)
	if err != nil {
		return types.StateInfo{}, fmt.Errorf("failed to check state %q: %w", name, err)
	}
	if !exists {
		return types.StateInfo{}, fmt.Errorf("state %q not found: %w", name, errdefs.ErrNotFound)
	}

	usage, err := m.driver.GetUsage(ctx, path)
	if err != nil {
		return types.StateInfo{}, fmt.Errorf("failed to read usage of state %q: %w", name, err)
	}
	return types.StateInfo{
		Name:           name,
		Dataset:        path,
		UsedBytes:      usage.UsedBytes,
		AvailableBytes: usage.AvailableBytes,
	}, nil
}

// ListStates lists all state datasets under the base. A missing base
// dataset reads as an empty system rather than an error.
func (m *Manager) ListStates(ctx context.Context) ([]types.StateInfo, error) {
	children, err := m.driver.ListChildren(ctx, m.basePath())
	if err != nil {
		if errors.Is(err, errdefs.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list states: %w", err)
	}

	out := make([]types.StateInfo, 0, len(children))
	for _, child := range children {
		name := m.stateNameFromPath(child.Path)
		if name == "" {
			continue
		}
		out = append(out, types.StateInfo{
			Name:           name,
			Dataset:        child.Path,
			UsedBytes:      child.UsedBytes,
			AvailableBytes: child.AvailableBytes,
		})
	}
	return out, nil
}

// CreateSnapshot snapshots a state under the given short name.
func (m *Manager) CreateSnapshot(ctx context.Context, stateName, snapName string) error {
	if err := types.ValidateStateName(stateName); err != nil {
		return err
	}
	if err := types.ValidateSnapshotName(snapName); err != nil {
		return err
	}

	path := m.statePath(stateName)
	exists, err := m.driver.DatasetExists(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to check state %q: %w", stateName, err)
	}
	if !exists {
		return fmt.Errorf("state %q not found: %w", stateName, errdefs.ErrNotFound)
	}

	if err := m.driver.CreateSnapshot(ctx, path, snapName); err != nil {
		return fmt.Errorf("failed to snapshot state %q: %w", stateName, err)
	}
	m.logger.Info().Str("state", stateName).Str("snapshot", snapName).Msg("snapshot created")
	return nil
}

// DeleteSnapshot removes one snapshot of a state.
func (m *Manager) DeleteSnapshot(ctx context.Context, stateName, snapName string) error {
	if err := types.ValidateStateName(stateName); err != nil {
		return err
	}
	if err := types.ValidateSnapshotName(snapName); err != nil {
		return err
	}

	path := m.statePath(stateName)
	exists, err := m.driver.DatasetExists(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to check state %q: %w", stateName, err)
	}
	if !exists {
		return fmt.Errorf("state %q not found: %w", stateName, errdefs.ErrNotFound)
	}

	if err := m.driver.DestroySnapshot(ctx, path, snapName); err != nil {
		return fmt.Errorf("failed to delete snapshot %s@%s: %w", stateName, snapName, err)
	}
	return nil
}

// ListSnapshots lists the snapshots of one state.
func (m *Manager) ListSnapshots(ctx context.Context, stateName string) ([]types.SnapshotInfo, error) {
	if err := types.ValidateStateName(stateName); err != nil {
		return nil, err
	}

	path := m.statePath(stateName)
	exists, err := m.driver.DatasetExists(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to check state %q: %w", stateName, err)
	}
	if !exists {
		return nil, fmt.Errorf("state %q not found: %w", stateName, errdefs.ErrNotFound)
	}

	snaps, err := m.driver.ListSnapshots(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots of %q: %w", stateName, err)
	}
	return m.toSnapshotInfos(snaps), nil
}

// ListAllSnapshots lists every snapshot of every state under the base.
func (m *Manager) ListAllSnapshots(ctx context.Context) ([]types.SnapshotInfo, error) {
	snaps, err := m.driver.ListSnapshots(ctx, m.basePath())
	if err != nil {
		if errors.Is(err, errdefs.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return m.toSnapshotInfos(snaps), nil
}

func (m *Manager) toSnapshotInfos(snaps []dataset.Snapshot) []types.SnapshotInfo {
	out := make([]types.SnapshotInfo, 0, len(snaps))
	for _, s := range snaps {
		state := m.stateNameFromPath(s.Dataset)
		if state == "" {
			// Snapshot of the base itself or of something nested; not a
			// state snapshot.
			continue
		}
		out = append(out, types.SnapshotInfo{
			State:     state,
			Name:      s.Name,
			FullName:  s.FullName(),
			CreatedAt: s.CreatedAt,
			SizeBytes: s.SizeBytes,
		})
	}
	return out
}

// FindSnapshot resolves a snapshot reference. The reference is either
// "state@snapshot" for an exact lookup or a bare short name, which matches
// the first snapshot of that name in listing order.
func (m *Manager) FindSnapshot(ctx context.Context, ref string) (types.SnapshotInfo, error) {
	if ref == "" {
		return types.SnapshotInfo{}, fmt.Errorf("snapshot reference is empty: %w", errdefs.ErrInvalidArgument)
	}

	wantState, wantName, qualified := strings.Cut(ref, "@")
	if !qualified {
		wantName = ref
		wantState = ""
	}

	snaps, err := m.ListAllSnapshots(ctx)
	if err != nil {
		return types.SnapshotInfo{}, err
	}
	for _, s := range snaps {
		if s.Name != wantName {
			continue
		}
		if qualified && s.State != wantState {
			continue
		}
		return s, nil
	}
	return types.SnapshotInfo{}, fmt.Errorf("snapshot %q not found: %w", ref, errdefs.ErrNotFound)
}

// CloneState creates an independent copy of a state. The intermediate
// snapshot (clone-for-<dest>) is kept; promotion moves it to the clone,
// where it records the fork point.
func (m *Manager) CloneState(ctx context.Context, source, dest string) error {
	if err := types.ValidateStateName(source); err != nil {
		return err
	}
	if err := types.ValidateStateName(dest); err != nil {
		return err
	}

	srcPath := m.statePath(source)
	exists, err := m.driver.DatasetExists(ctx, srcPath)
	if err != nil {
		return fmt.Errorf("failed to check state %q: %w", source, err)
	}
	if !exists {
		return fmt.Errorf("state %q not found: %w", source, errdefs.ErrNotFound)
	}

	dstPath := m.statePath(dest)
	exists, err = m.driver.DatasetExists(ctx, dstPath)
	if err != nil {
		return fmt.Errorf("failed to check state %q: %w", dest, err)
	}
	if exists {
		return fmt.Errorf("state %q already exists: %w", dest, errdefs.ErrAlreadyExists)
	}

	snapName := "clone-for-" + dest
	if err := m.driver.CreateSnapshot(ctx, srcPath, snapName); err != nil {
		return fmt.Errorf("failed to snapshot %q for cloning: %w", source, err)
	}

	mountpoint := m.stateMountpoint(dest)
	if err := m.driver.CloneFromSnapshot(ctx, srcPath+"@"+snapName, dstPath, mountpoint); err != nil {
		return fmt.Errorf("failed to clone %q to %q: %w", source, dest, err)
	}

	if err := m.owner.Apply(mountpoint); err != nil {
		return fmt.Errorf("state %q cloned but ownership policy failed: %v: %w", dest, err, errdefs.ErrPermissionDenied)
	}

	m.logger.Info().Str("source", source).Str("dest", dest).Msg("state cloned")
	return nil
}

// RestoreSnapshot materializes a snapshot as a new independent state.
func (m *Manager) RestoreSnapshot(ctx context.Context, snapRef, newState string) error {
	if err := types.ValidateStateName(newState); err != nil {
		return err
	}

	newPath := m.statePath(newState)
	exists, err := m.driver.DatasetExists(ctx, newPath)
	if err != nil {
		return fmt.Errorf("failed to check state %q: %w", newState, err)
	}
	if exists {
		return fmt.Errorf("state %q already exists: %w", newState, errdefs.ErrAlreadyExists)
	}

	snap, err := m.FindSnapshot(ctx, snapRef)
	if err != nil {
		return err
	}

	mountpoint := m.stateMountpoint(newState)
	if err := m.driver.CloneFromSnapshot(ctx, snap.FullName, newPath, mountpoint); err != nil {
		return fmt.Errorf("failed to restore %s as %q: %w", snap.FullName, newState, err)
	}

	if err := m.owner.Apply(mountpoint); err != nil {
		return fmt.Errorf("state %q restored but ownership policy failed: %v: %w", newState, err, errdefs.ErrPermissionDenied)
	}

	m.logger.Info().Str("snapshot", snap.FullName).Str("state", newState).Msg("snapshot restored")
	return nil
}

// DeleteState removes a state and its snapshots. Without force, a state
// assigned to any slot is refused, and the parent dataset survives if any
// of its snapshots could not be destroyed. With force, assignment is
// ignored and the whole subtree goes in one recursive destroy.
func (m *Manager) DeleteState(ctx context.Context, name string, force bool) error {
	if err := types.ValidateStateName(name); err != nil {
		return err
	}

	path := m.statePath(name)
	exists, err := m.driver.DatasetExists(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to check state %q: %w", name, err)
	}
	if !exists {
		return fmt.Errorf("state %q not found: %w", name, errdefs.ErrNotFound)
	}

	if !force {
		inUse, slot, err := m.IsStateInUse(ctx, name)
		if err != nil {
			return err
		}
		if inUse {
			return fmt.Errorf("state %q is in use by %s: %w", name, slot, errdefs.ErrConflict)
		}
	}

	if force {
		if err := m.driver.DestroyDataset(ctx, path, true); err != nil {
			return fmt.Errorf("failed to delete state %q: %w", name, err)
		}
		m.logger.Info().Str("state", name).Bool("force", true).Msg("state deleted")
		return nil
	}

	snaps, err := m.driver.ListSnapshots(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to list snapshots of %q: %w", name, err)
	}

	var failed []error
	for _, s := range snaps {
		if s.Dataset != path {
			// Snapshot of a nested dataset; the parent destroy below
			// handles (or refuses) it.
			continue
		}
		if err := m.driver.DestroySnapshot(ctx, s.Dataset, s.Name); err != nil {
			m.logger.Warn().Str("snapshot", s.FullName()).Err(err).Msg("failed to destroy snapshot")
			failed = append(failed, fmt.Errorf("snapshot %s: %w", s.FullName(), err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("state %q kept, %d snapshot(s) could not be destroyed: %w",
			name, len(failed), errors.Join(failed...))
	}

	if err := m.driver.DestroyDataset(ctx, path, false); err != nil {
		return fmt.Errorf("failed to delete state %q: %w", name, err)
	}
	m.logger.Info().Str("state", name).Msg("state deleted")
	return nil
}
