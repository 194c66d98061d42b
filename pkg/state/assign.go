package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/containerd/errdefs"

	"github.com/vmstated/vmstate/pkg/types"
)

// GetSlotState returns the state assigned to a slot. A slot with no
// explicit registry entry defaults to a state named after the slot itself.
func (m *Manager) GetSlotState(ctx context.Context, slotName string) (string, error) {
	slot, ok := m.cfg.Slots.Lookup(slotName)
	if !ok {
		return "", fmt.Errorf("unknown slot %q: %w", slotName, errdefs.ErrInvalidArgument)
	}

	assignments, err := m.reg.Load()
	if err != nil {
		return "", err
	}
	if state, ok := assignments[slot.Name]; ok && state != "" {
		return state, nil
	}
	return slot.Name, nil
}

// IsStateInUse reports whether any slot's effective assignment points at
// the state, and which slot that is.
func (m *Manager) IsStateInUse(ctx context.Context, stateName string) (bool, string, error) {
	assignments, err := m.reg.Load()
	if err != nil {
		return false, "", err
	}

	for _, slot := range m.cfg.Slots.All() {
		effective := assignments[slot.Name]
		if effective == "" {
			effective = slot.Name
		}
		if effective == stateName {
			return true, slot.Name, nil
		}
	}
	return false, "", nil
}

// AssignState binds a state to a slot: the state is created if absent, the
// assignment is persisted, and the slot's data image symlink is rebound.
// The running VM is untouched; the new binding takes effect on the next
// unit start.
func (m *Manager) AssignState(ctx context.Context, slotName, stateName string) error {
	slot, ok := m.cfg.Slots.Lookup(slotName)
	if !ok {
		return fmt.Errorf("unknown slot %q: %w", slotName, errdefs.ErrInvalidArgument)
	}
	if err := types.ValidateStateName(stateName); err != nil {
		return err
	}

	exists, err := m.StateExists(ctx, stateName)
	if err != nil {
		return err
	}
	if !exists {
		m.logger.Info().Str("state", stateName).Msg("state does not exist yet, creating")
		if err := m.CreateState(ctx, stateName); err != nil {
			return err
		}
	}

	assignments, err := m.reg.Load()
	if err != nil {
		return err
	}
	assignments[slot.Name] = stateName
	if err := m.reg.Save(assignments); err != nil {
		return err
	}

	if err := m.bindSlotImage(slot, stateName); err != nil {
		return err
	}

	m.logger.Info().Str("slot", slot.Name).Str("state", stateName).Msg("state assigned")
	return nil
}

// ListAssignments returns one entry per configured slot, in slot order,
// with defaults filled in for slots absent from the registry.
func (m *Manager) ListAssignments(ctx context.Context) ([]types.SlotAssignment, error) {
	assignments, err := m.reg.Load()
	if err != nil {
		return nil, err
	}

	out := make([]types.SlotAssignment, 0, m.cfg.Slots.Len())
	for _, slot := range m.cfg.Slots.All() {
		state := assignments[slot.Name]
		if state == "" {
			state = slot.Name
		}
		out = append(out, types.SlotAssignment{
			Slot:    slot,
			State:   state,
			Dataset: m.statePath(state),
		})
	}
	return out, nil
}

// bindSlotImage points <slots>/<slot>/data.img at the assigned state's
// image. An existing symlink is replaced; a regular file in the way is
// preserved as data.img.backup rather than destroyed.
func (m *Manager) bindSlotImage(slot types.Slot, stateName string) error {
	slotDir := filepath.Join(m.cfg.SlotsDir, slot.Name)
	if err := os.MkdirAll(slotDir, 0o755); err != nil {
		return fmt.Errorf("failed to create slot directory %s: %w", slotDir, err)
	}

	link := filepath.Join(slotDir, dataImageName)
	target := filepath.Join(m.cfg.StatesDir, stateName, dataImageName)

	if fi, err := os.Lstat(link); err == nil {
		if fi.Mode()&os.ModeSymlink != 0 {
			if err := os.Remove(link); err != nil {
				return fmt.Errorf("failed to remove old symlink %s: %w", link, err)
			}
		} else {
			backup := link + ".backup"
			if err := os.Rename(link, backup); err != nil {
				return fmt.Errorf("failed to back up %s: %w", link, err)
			}
			m.logger.Warn().Str("file", link).Str("backup", backup).Msg("regular file replaced by symlink, original kept")
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to inspect %s: %w", link, err)
	}

	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("failed to link %s to %s: %w", link, target, err)
	}

	// Slot directory ownership is best-effort; the link itself is what
	// matters for the unit.
	if err := m.owner.Apply(slotDir); err != nil {
		m.logger.Debug().Str("dir", slotDir).Err(err).Msg("slot directory ownership not applied")
	}
	return nil
}
