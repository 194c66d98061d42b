/*
Package types defines the core data structures used throughout vm-state.

This package contains the fundamental types that represent the domain model:
slots, states, snapshots, and slot assignments. These types are used by all
other packages for backend queries, assignment persistence, and CLI output.

# Core Types

Slots:
  - Slot: A fixed VM slot with a 1-based index in the configured set
  - SlotSet: The ordered, validated collection of configured slots

States and Snapshots:
  - StateInfo: A state dataset with usage as reported by the backend
  - SnapshotInfo: A snapshot with short name, full name, and creation time

Assignments:
  - SlotAssignment: The state currently bound to a slot

# Naming Rules

State and snapshot names must be non-empty and must not contain '/' or '@',
since both characters are structural in dataset paths (pool/base/name) and
snapshot references (dataset@snapshot). Slot names follow the same rule and
must additionally be unique within the set. Validation failures wrap
errdefs.ErrInvalidArgument so callers can classify them with errors.Is.

# Derived Slot Properties

A slot's network address and systemd unit name are derived, never stored:

	slot.Address()          // "10.<index>.0.2"
	slot.Unit("microvm@")   // "microvm@<name>.service"

The default slot set is slot1 through slot5; deployments can inject a
different set through configuration without touching this package.

# Integration Points

This package integrates with:

  - pkg/state: Uses all types for lifecycle operations
  - pkg/registry: Persists slot name to state name mappings
  - pkg/dataset: Reports StateInfo and SnapshotInfo from backends
  - pkg/vmctl: Uses Slot.Unit to address systemd units
  - cmd/vm-state: Renders all types in tables
*/
package types
