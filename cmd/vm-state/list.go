package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

const snapshotListCap = 20

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all states and slot assignments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd.Context())
	},
}

func runList(ctx context.Context) error {
	info("States and assignments:")
	fmt.Println()

	assignments, err := app.mgr.ListAssignments(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SLOT\tSTATE\tRUNNING\tZFS DATASET")
	fmt.Fprintln(w, "----\t-----\t-------\t-----------")
	for _, a := range assignments {
		running := "unknown"
		if up, err := app.vms.IsRunning(ctx, a.Slot); err == nil {
			running = "no"
			if up {
				running = "yes"
			}
		}

		ds := a.Dataset
		if exists, err := app.mgr.StateExists(ctx, a.State); err == nil && !exists {
			ds = "(not found)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Slot.Name, a.State, running, ds)
	}
	w.Flush()

	fmt.Println()
	info("Available states (ZFS datasets):")

	states, err := app.mgr.ListStates(ctx)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		fmt.Println("  (no states created yet)")
	} else {
		for _, s := range states {
			fmt.Printf("  %-20s used: %-8s avail: %s\n",
				s.Name, formatSize(s.UsedBytes), formatSize(s.AvailableBytes))
		}
	}

	fmt.Println()
	info("Snapshots:")

	snapshots, err := app.mgr.ListAllSnapshots(ctx)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		fmt.Println("  (no snapshots)")
	} else {
		for i, s := range snapshots {
			if i == snapshotListCap {
				fmt.Printf("  ... and %d more\n", len(snapshots)-snapshotListCap)
				break
			}
			fmt.Printf("  %s\n", s.FullName)
		}
	}

	return nil
}
