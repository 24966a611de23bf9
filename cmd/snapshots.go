package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Inspect the snapshot cache of a SQL event log",
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		e, err := setup(cmd, false)
		if err != nil {
			return err
		}
		defer e.Close()
		if e.db == nil {
			return fmt.Errorf("snapshot cache needs a SQL event log (sqlite:// or postgres://), got %q", e.cfg.EventLog)
		}

		snaps, err := e.db.SnapshotRepo().List(cmd.Context(), limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(snaps) == 0 {
			fmt.Fprintln(out, "No snapshots found.")
			return nil
		}
		fmt.Fprintf(out, "%-10s  %-19s  %-8s  %-36s  %s\n", "As of", "Created", "Entities", "Run", "ID")
		fmt.Fprintln(out, strings.Repeat("─", 120))
		for _, s := range snaps {
			fmt.Fprintf(out, "%-10s  %-19s  %-8d  %-36s  %s\n",
				s.AsOf,
				s.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				s.Entities,
				s.RunID,
				s.ID,
			)
		}
		return nil
	},
}

func init() {
	snapshotsListCmd.Flags().Int("limit", 20, "Maximum number of snapshots to list (0 for all)")

	snapshotsCmd.AddCommand(snapshotsListCmd)
}
