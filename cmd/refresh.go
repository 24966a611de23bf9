package cmd

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/abhisek/cohortwatch/internal/report"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild the cohort as of the run date and write the reports",
	Long: `Replay the event log onto the base table as of the run date, classify every
entity and write three dated artifacts: the reconstructed snapshot, the
per-entity recommendations and the per-category bottom line.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd, false)
		if err != nil {
			return err
		}
		defer e.Close()

		day, err := e.cfg.RunDay()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := e.openSinks(ctx); err != nil {
			return err
		}

		res, err := e.runner.Refresh(ctx, day)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, loc := range res.Locations {
			fmt.Fprintln(out, "Wrote", loc)
		}
		fmt.Fprintln(out)
		styled := out == os.Stdout && isatty.IsTerminal(os.Stdout.Fd())
		fmt.Fprint(out, report.Render(fmt.Sprintf("Bottom line as of %s", day), res.Summary, styled))
		return nil
	},
}
