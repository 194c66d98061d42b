package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a new empty state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name := args[0]

		info(fmt.Sprintf("Creating state '%s'...", name))

		err := app.mgr.CreateState(ctx, name)
		app.finish(ctx, "create", args, err)
		if err != nil {
			return err
		}

		success(fmt.Sprintf("State '%s' created at %s", name, filepath.Join(app.cfg.StatesDir, name)))
		info(fmt.Sprintf("Assign it to a slot with: vm-state assign <slot> %s", name))
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot SLOT NAME",
	Short: "Snapshot the current state of a slot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		slot, err := app.slot(args[0])
		if err != nil {
			return err
		}
		snapName := args[1]

		stateName, err := app.mgr.GetSlotState(ctx, slot.Name)
		if err != nil {
			return err
		}

		info(fmt.Sprintf("Creating snapshot of state '%s' (from %s)...", stateName, slot.Name))

		if up, err := app.vms.IsRunning(ctx, slot); err == nil && up {
			warn(fmt.Sprintf("%s is running - snapshot will be crash-consistent", slot.Name))
			warn(fmt.Sprintf("For a clean snapshot, stop the slot first: systemctl stop %s", app.unitHint(slot)))
		}

		err = app.mgr.CreateSnapshot(ctx, stateName, snapName)
		app.finish(ctx, "snapshot", args, err)
		if err != nil {
			return err
		}

		ds := stateName
		if si, err := app.mgr.GetStateInfo(ctx, stateName); err == nil {
			ds = si.Dataset
		}
		success(fmt.Sprintf("Snapshot created: %s@%s", ds, snapName))
		return nil
	},
}

var cloneCmd = &cobra.Command{
	Use:   "clone SOURCE DEST",
	Short: "Clone a state to a new name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		src, dst := args[0], args[1]

		info(fmt.Sprintf("Cloning state '%s' to '%s'...", src, dst))

		err := app.mgr.CloneState(ctx, src, dst)
		app.finish(ctx, "clone", args, err)
		if err != nil {
			return err
		}

		success(fmt.Sprintf("State '%s' cloned to '%s'", src, dst))
		info(fmt.Sprintf("Assign it to a slot with: vm-state assign <slot> %s", dst))
		return nil
	},
}

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a state (must not be in use)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name := args[0]

		if !deleteForce {
			inUse, slot, err := app.mgr.IsStateInUse(ctx, name)
			if err != nil {
				return err
			}
			if inUse {
				return fmt.Errorf("State '%s' is assigned to %s. Reassign first with: vm-state assign %s <other-state>",
					name, slot, slot)
			}

			warn(fmt.Sprintf("This will permanently delete state '%s' and all its data!", name))
			if !confirmDelete() {
				return errors.New("Aborted")
			}
		}

		info(fmt.Sprintf("Deleting state '%s'...", name))

		err := app.mgr.DeleteState(ctx, name, deleteForce)
		app.finish(ctx, "delete", args, err)
		if err != nil {
			return err
		}

		success(fmt.Sprintf("State '%s' deleted", name))
		return nil
	},
}

// confirmDelete requires the destruction phrase to be typed back. A
// non-interactive stdin fails the prompt and therefore aborts.
func confirmDelete() bool {
	var answer string
	prompt := &survey.Input{Message: "Type 'DELETE' to confirm:"}
	if err := survey.AskOne(prompt, &answer); err != nil {
		return false
	}
	return strings.TrimSpace(answer) == "DELETE"
}

var restoreCmd = &cobra.Command{
	Use:   "restore SNAPSHOT NEW_STATE",
	Short: "Restore a snapshot to a new state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		snapshot, newState := args[0], args[1]

		info(fmt.Sprintf("Restoring snapshot '%s' to state '%s'...", snapshot, newState))

		err := app.mgr.RestoreSnapshot(ctx, snapshot, newState)
		app.finish(ctx, "restore", args, err)
		if err != nil {
			return err
		}

		success(fmt.Sprintf("Snapshot restored to state '%s'", newState))
		info(fmt.Sprintf("Assign it to a slot with: vm-state assign <slot> %s", newState))
		return nil
	},
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteForce, "force", false,
		"Skip confirmation and destroy the state recursively, even while assigned")
}
