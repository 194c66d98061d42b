package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/containerd/errdefs"
)

// Slot identifies a fixed VM slot. Slots are defined by configuration and
// never created or destroyed at runtime; each slot maps to one systemd unit
// and one network address derived from its position in the slot set.
type Slot struct {
	Name  string
	Index int // 1-based position in the configured slot set
}

// Address returns the guest address derived from the slot's position.
func (s Slot) Address() string {
	return fmt.Sprintf("10.%d.0.2", s.Index)
}

// Unit returns the systemd unit name for the slot, e.g. "microvm@slot1.service".
func (s Slot) Unit(prefix string) string {
	return prefix + s.Name + ".service"
}

// SlotSet is the ordered collection of configured slots.
type SlotSet struct {
	slots []Slot
}

// NewSlotSet builds a slot set from ordered slot names. Names must be
// non-empty, unique, and free of '/' and '@'.
func NewSlotSet(names []string) (*SlotSet, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("slot set is empty: %w", errdefs.ErrInvalidArgument)
	}
	seen := make(map[string]bool, len(names))
	slots := make([]Slot, 0, len(names))
	for i, name := range names {
		if err := validateName("slot", name); err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate slot %q: %w", name, errdefs.ErrInvalidArgument)
		}
		seen[name] = true
		slots = append(slots, Slot{Name: name, Index: i + 1})
	}
	return &SlotSet{slots: slots}, nil
}

// All returns the slots in configuration order.
func (ss *SlotSet) All() []Slot {
	out := make([]Slot, len(ss.slots))
	copy(out, ss.slots)
	return out
}

// Names returns the slot names in configuration order.
func (ss *SlotSet) Names() []string {
	out := make([]string, len(ss.slots))
	for i, s := range ss.slots {
		out[i] = s.Name
	}
	return out
}

// Lookup resolves a slot by name.
func (ss *SlotSet) Lookup(name string) (Slot, bool) {
	for _, s := range ss.slots {
		if s.Name == name {
			return s, true
		}
	}
	return Slot{}, false
}

// Len returns the number of configured slots.
func (ss *SlotSet) Len() int {
	return len(ss.slots)
}

// StateInfo describes one state dataset as reported by the storage backend.
type StateInfo struct {
	Name           string
	Dataset        string
	UsedBytes      int64
	AvailableBytes int64
}

// SnapshotInfo describes one snapshot of a state dataset.
type SnapshotInfo struct {
	State     string // owning state name
	Name      string // short name, the part after '@'
	FullName  string // dataset@name as the backend reports it
	CreatedAt time.Time
	SizeBytes int64
}

// SlotAssignment pairs a slot with the state currently assigned to it.
type SlotAssignment struct {
	Slot    Slot
	State   string
	Dataset string
}

// ValidateStateName reports whether name is usable as a state name.
func ValidateStateName(name string) error {
	return validateName("state", name)
}

// ValidateSnapshotName reports whether name is usable as a snapshot name.
func ValidateSnapshotName(name string) error {
	return validateName("snapshot", name)
}

func validateName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s name is empty: %w", kind, errdefs.ErrInvalidArgument)
	}
	if strings.ContainsAny(name, "/@") {
		return fmt.Errorf("%s name %q contains '/' or '@': %w", kind, name, errdefs.ErrInvalidArgument)
	}
	return nil
}
