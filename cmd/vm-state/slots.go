package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/vmstated/vmstate/pkg/types"
)

var assignCmd = &cobra.Command{
	Use:   "assign SLOT STATE",
	Short: "Assign a state to a slot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		slot, err := app.slot(args[0])
		if err != nil {
			return err
		}
		stateName := args[1]

		running := false
		if up, err := app.vms.IsRunning(ctx, slot); err == nil {
			running = up
		}
		if running {
			warn(fmt.Sprintf("%s is currently running. Assignment will take effect after restart.", slot.Name))
		}

		if exists, err := app.mgr.StateExists(ctx, stateName); err == nil && !exists {
			warn(fmt.Sprintf("State '%s' doesn't exist yet. Creating it...", stateName))
		}

		err = app.mgr.AssignState(ctx, slot.Name, stateName)
		app.finish(ctx, "assign", args, err)
		if err != nil {
			return err
		}

		info(fmt.Sprintf("Created symlink: %s -> %s",
			filepath.Join(app.cfg.SlotsDir, slot.Name, "data.img"),
			filepath.Join(app.cfg.StatesDir, stateName, "data.img")))
		success(fmt.Sprintf("Assigned state '%s' to %s", stateName, slot.Name))

		if running {
			info(fmt.Sprintf("Restart the slot to use the new state: systemctl restart %s", app.unitHint(slot)))
		} else {
			info(fmt.Sprintf("Start the slot with: systemctl start %s", app.unitHint(slot)))
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate STATE SLOT",
	Short: "Stop slot, assign state, start slot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		stateName := args[0]
		slot, err := app.slot(args[1])
		if err != nil {
			return err
		}

		info(fmt.Sprintf("Migrating state '%s' to %s...", stateName, slot.Name))

		err = runMigrate(ctx, slot, stateName)
		app.finish(ctx, "migrate", args, err)
		if err != nil {
			return err
		}

		success(fmt.Sprintf("Migration complete. %s is now running state '%s'", slot.Name, stateName))
		return nil
	},
}

// runMigrate is the stop, reassign, start sequence. The grace sleep after
// stop gives the guest time to flush before its image is rebound.
func runMigrate(ctx context.Context, slot types.Slot, stateName string) error {
	if up, err := app.vms.IsRunning(ctx, slot); err == nil && up {
		info(fmt.Sprintf("Stopping %s...", slot.Name))
		if err := app.vms.Stop(ctx, slot); err != nil {
			return fmt.Errorf("Failed to stop %s: %w", slot.Name, err)
		}
		time.Sleep(app.cfg.StopGracePeriod.Std())
	}

	if err := app.mgr.AssignState(ctx, slot.Name, stateName); err != nil {
		return err
	}

	info(fmt.Sprintf("Starting %s with state '%s'...", slot.Name, stateName))
	if err := app.vms.Start(ctx, slot); err != nil {
		return fmt.Errorf("Failed to start %s: %w", slot.Name, err)
	}
	return nil
}

var startCmd = &cobra.Command{
	Use:   "start SLOT",
	Short: "Start a slot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		slot, err := app.slot(args[0])
		if err != nil {
			return err
		}

		info(fmt.Sprintf("Starting %s...", slot.Name))

		err = app.vms.Start(ctx, slot)
		app.finish(ctx, "start", args, err)
		if err != nil {
			return err
		}

		success(fmt.Sprintf("%s started", slot.Name))
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop SLOT",
	Short: "Stop a slot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		slot, err := app.slot(args[0])
		if err != nil {
			return err
		}

		info(fmt.Sprintf("Stopping %s...", slot.Name))

		err = app.vms.Stop(ctx, slot)
		app.finish(ctx, "stop", args, err)
		if err != nil {
			return err
		}

		success(fmt.Sprintf("%s stopped", slot.Name))
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart SLOT",
	Short: "Restart a slot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		slot, err := app.slot(args[0])
		if err != nil {
			return err
		}

		info(fmt.Sprintf("Restarting %s...", slot.Name))

		err = app.vms.Restart(ctx, slot)
		app.finish(ctx, "restart", args, err)
		if err != nil {
			return err
		}

		success(fmt.Sprintf("%s restarted", slot.Name))
		return nil
	},
}
