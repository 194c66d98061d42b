/*
Package state implements the VM state lifecycle manager.

A "state" is a complete, portable VM disk: one dataset under a fixed base,
mounted under a fixed directory, holding the disk image a slot boots from.
This package owns every transition a state can make (create, snapshot,
clone, restore, delete) and the binding of states to the host's fixed VM
slots.

# Architecture

	┌────────────────── STATE LIFECYCLE MANAGER ──────────────────┐
	│                                                               │
	│   CreateState    CloneState     RestoreSnapshot   DeleteState│
	│   CreateSnapshot DeleteSnapshot FindSnapshot      ListStates │
	│   AssignState    GetSlotState   IsStateInUse   ListAssignments│
	│        │                │                  │                  │
	│  ┌─────▼─────┐   ┌──────▼──────┐   ┌───────▼──────┐          │
	│  │  dataset  │   │  registry   │   │  filesystem  │          │
	│  │  Driver   │   │  JSON file  │   │ symlink+chown│          │
	│  └───────────┘   └─────────────┘   └──────────────┘          │
	└───────────────────────────────────────────────────────────┘

The manager is deliberately stateless: every read goes back to the driver
and the registry, so datasets created behind its back are always visible
and there is no cache to invalidate.

# Naming Scheme

For a state <name> with pool and base from configuration:

	dataset:     <pool>/<base>/<name>      microvms/storage/states/dev
	mountpoint:  <states-dir>/<name>       /var/lib/microvms/states/dev
	snapshot:    <dataset>@<short-name>    .../dev@before-upgrade
	slot image:  <slots-dir>/<slot>/data.img -> <mountpoint>/data.img

# Clone and Restore

Cloning snapshots the source as clone-for-<dest>, clones that snapshot to
the destination dataset, and promotes the clone. Promotion makes the copy
independent: the source can be deleted afterwards without touching the
clone. Restore is the same mechanism driven from an existing snapshot,
found either by exact "state@name" reference or by bare short name (first
match wins).

# Assignments

The registry only stores explicit bindings. A slot that was never assigned
defaults to a state named after itself, so a fresh host with provisioned
slot units behaves sensibly with an empty registry. Assigning a state that
does not exist creates it first; this keeps "assign fresh state to slot"
a single command.

# Deletion Policy

Deleting a state that any slot's effective assignment points at is refused
unless forced. The unforced path destroys the state's snapshots one by one
and keeps the parent dataset if any snapshot survives, reporting exactly
which ones; the forced path hands the engine a single recursive destroy.
*/
package state
