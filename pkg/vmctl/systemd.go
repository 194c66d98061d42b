package vmctl

import (
	"context"
	"fmt"

	"github.com/containerd/errdefs"
	sdbus "github.com/coreos/go-systemd/v22/dbus"
	"github.com/rs/zerolog"

	"github.com/vmstated/vmstate/pkg/log"
	"github.com/vmstated/vmstate/pkg/types"
)

// DBusController drives units through the systemd manager D-Bus API. It
// waits for the enqueued job to finish, so a returned nil means the unit
// actually reached its target state rather than merely being asked to.
type DBusController struct {
	prefix string
	logger zerolog.Logger
}

// NewDBus creates a D-Bus-backed controller.
func NewDBus(prefix string) *DBusController {
	return &DBusController{
		prefix: prefix,
		logger: log.WithComponent("vmctl"),
	}
}

// Start implements Controller.
func (c *DBusController) Start(ctx context.Context, slot types.Slot) error {
	return c.runJob(ctx, slot, "start", func(ctx context.Context, conn *sdbus.Conn, unit string, ch chan<- string) (int, error) {
		return conn.StartUnitContext(ctx, unit, "replace", ch)
	})
}

// Stop implements Controller.
func (c *DBusController) Stop(ctx context.Context, slot types.Slot) error {
	return c.runJob(ctx, slot, "stop", func(ctx context.Context, conn *sdbus.Conn, unit string, ch chan<- string) (int, error) {
		return conn.StopUnitContext(ctx, unit, "replace", ch)
	})
}

// Restart implements Controller.
func (c *DBusController) Restart(ctx context.Context, slot types.Slot) error {
	return c.runJob(ctx, slot, "restart", func(ctx context.Context, conn *sdbus.Conn, unit string, ch chan<- string) (int, error) {
		return conn.RestartUnitContext(ctx, unit, "replace", ch)
	})
}

type jobFunc func(ctx context.Context, conn *sdbus.Conn, unit string, ch chan<- string) (int, error)

func (c *DBusController) runJob(ctx context.Context, slot types.Slot, verb string, job jobFunc) error {
	conn, err := sdbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to systemd: %w", err)
	}
	defer conn.Close()

	unit := slot.Unit(c.prefix)
	done := make(chan string, 1)
	if _, err := job(ctx, conn, unit, done); err != nil {
		return fmt.Errorf("failed to %s %s: %w", verb, unit, err)
	}

	select {
	case result := <-done:
		if result != "done" && result != "skipped" {
			return fmt.Errorf("systemd %s job for %s finished as %q: %w", verb, unit, result, errdefs.ErrInternal)
		}
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s job on %s: %w", verb, unit, ctx.Err())
	}

	c.logger.Debug().Str("unit", unit).Str("verb", verb).Msg("systemd job completed")
	return nil
}

// IsRunning implements Controller.
func (c *DBusController) IsRunning(ctx context.Context, slot types.Slot) (bool, error) {
	status, err := c.Status(ctx, slot)
	if err != nil {
		return false, err
	}
	return status == StatusRunning, nil
}

// Status implements Controller.
func (c *DBusController) Status(ctx context.Context, slot types.Slot) (Status, error) {
	conn, err := sdbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return StatusUnknown, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	defer conn.Close()

	props, err := conn.GetUnitPropertiesContext(ctx, slot.Unit(c.prefix))
	if err != nil {
		return StatusUnknown, fmt.Errorf("failed to query unit %s: %w", slot.Unit(c.prefix), err)
	}
	state, _ := props["ActiveState"].(string)
	return statusFromActiveState(state), nil
}
