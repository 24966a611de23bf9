package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/cohortwatch/internal/eventgen"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Append a week of synthetic update events to the log",
	Long: `Draw a seeded batch of plausible stage and engagement updates, dated on the
run date, against the cohort as reconstructed on that date, and append them to
the event log. Exact duplicates are skipped; the whole log is validated before
anything is written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd, true)
		if err != nil {
			return err
		}
		defer e.Close()

		day, err := e.cfg.RunDay()
		if err != nil {
			return err
		}
		genCfg := eventgen.DefaultConfig()
		genCfg.Count = e.cfg.EventCount

		res, err := e.runner.Generate(cmd.Context(), day, eventgen.New(e.cfg.Seed, genCfg))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Appended %d events dated %s to %s (%d duplicates skipped, %d total).\n",
			len(res.Added), day, e.cfg.EventLog, res.Duplicates, res.Total)
		return nil
	},
}

func init() {
	generateCmd.Flags().Uint64("seed", 42, "Random seed")
	generateCmd.Flags().Int("count", 6, "Number of events to generate")
}
