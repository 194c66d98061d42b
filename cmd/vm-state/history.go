package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vmstated/vmstate/pkg/journal"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently recorded operations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if app.cfg.JournalFile == "" {
			info("Journal is disabled (journal_file not set)")
			return nil
		}

		j, err := journal.Open(app.cfg.JournalFile)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer j.Close()

		entries, err := j.Recent(historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("  (no operations recorded)")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TIME\tOPERATION\tARGUMENTS\tRESULT")
		for _, e := range entries {
			result := "ok"
			if !e.OK {
				result = e.Error
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				e.Time.Local().Format("2006-01-02 15:04:05"),
				e.Op,
				strings.Join(e.Args, " "),
				result)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show")
}
