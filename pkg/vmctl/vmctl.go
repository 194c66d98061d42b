package vmctl

import (
	"context"

	"github.com/vmstated/vmstate/pkg/types"
)

// Status is the lifecycle state of a slot's VM unit.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusFailed  Status = "failed"
	StatusUnknown Status = "unknown"
)

// Controller starts and stops the per-slot VM units. Both strategies
// address the same systemd template instances; they differ only in
// transport (D-Bus calls vs the systemctl binary).
type Controller interface {
	Start(ctx context.Context, slot types.Slot) error
	Stop(ctx context.Context, slot types.Slot) error
	Restart(ctx context.Context, slot types.Slot) error
	IsRunning(ctx context.Context, slot types.Slot) (bool, error)
	Status(ctx context.Context, slot types.Slot) (Status, error)
}

func statusFromActiveState(state string) Status {
	switch state {
	case "active", "activating", "reloading":
		return StatusRunning
	case "inactive", "deactivating":
		return StatusStopped
	case "failed":
		return StatusFailed
	default:
		return StatusUnknown
	}
}
