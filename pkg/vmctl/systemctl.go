package vmctl

import (
	"context"
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/rs/zerolog"

	"github.com/vmstated/vmstate/pkg/log"
	"github.com/vmstated/vmstate/pkg/runner"
	"github.com/vmstated/vmstate/pkg/types"
)

const systemctlBinary = "systemctl"

// SystemctlController drives units through the systemctl binary.
type SystemctlController struct {
	run    runner.Runner
	prefix string
	logger zerolog.Logger
}

// NewSystemctl creates a systemctl-backed controller. A nil runner gets
// the default ExecRunner.
func NewSystemctl(run runner.Runner, prefix string) *SystemctlController {
	if run == nil {
		run = runner.New()
	}
	return &SystemctlController{
		run:    run,
		prefix: prefix,
		logger: log.WithComponent("vmctl"),
	}
}

// Start implements Controller.
func (c *SystemctlController) Start(ctx context.Context, slot types.Slot) error {
	return c.invoke(ctx, "start", slot)
}

// Stop implements Controller.
func (c *SystemctlController) Stop(ctx context.Context, slot types.Slot) error {
	return c.invoke(ctx, "stop", slot)
}

// Restart implements Controller.
func (c *SystemctlController) Restart(ctx context.Context, slot types.Slot) error {
	return c.invoke(ctx, "restart", slot)
}

func (c *SystemctlController) invoke(ctx context.Context, verb string, slot types.Slot) error {
	unit := slot.Unit(c.prefix)
	res, err := c.run.Run(ctx, systemctlBinary, verb, unit)
	if err != nil {
		return fmt.Errorf("failed to run systemctl %s: %w", verb, err)
	}
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", res.ExitCode)
		}
		return fmt.Errorf("systemctl %s %s: %s: %w", verb, unit, msg, errdefs.ErrInternal)
	}
	c.logger.Debug().Str("unit", unit).Str("verb", verb).Msg("unit state change requested")
	return nil
}

// IsRunning implements Controller. The is-active exit code is the answer;
// a non-zero exit means not running, not a probe failure.
func (c *SystemctlController) IsRunning(ctx context.Context, slot types.Slot) (bool, error) {
	res, err := c.run.Run(ctx, systemctlBinary, "is-active", "--quiet", slot.Unit(c.prefix))
	if err != nil {
		return false, fmt.Errorf("failed to run systemctl is-active: %w", err)
	}
	return res.ExitCode == 0, nil
}

// Status implements Controller.
func (c *SystemctlController) Status(ctx context.Context, slot types.Slot) (Status, error) {
	res, err := c.run.Run(ctx, systemctlBinary, "is-active", slot.Unit(c.prefix))
	if err != nil {
		return StatusUnknown, fmt.Errorf("failed to run systemctl is-active: %w", err)
	}
	return statusFromActiveState(strings.TrimSpace(res.Stdout)), nil
}
