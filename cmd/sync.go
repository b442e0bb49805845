package cmd

import (
	"github.com/Another0Noob/mangadex-sync/internal/shared"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Follow, update status and mark progress on MangaDex to match the source list",
	Long: `sync reads both lists, matches every source title against your MangaDex follows (and the
MangaDex catalog for titles you do not follow yet), and applies the missing changes.

It exits with status 2 when every title failed, which usually means MangaDex is down
or the credentials lost their rights mid-run. Individual failures are listed in the report.`,
	RunE: runSync,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the changes sync would make without applying them",
	RunE:  runPlan,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(planCmd)

	addSourceFlags(syncCmd)
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan and report without changing MangaDex")

	addSourceFlags(planCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	r, err := newRunner(cmd)
	if err != nil {
		return err
	}
	engine, err := r.engine(inputFile, dryRun)
	if err != nil {
		return err
	}

	report, err := engine.Run(cmd.Context(), shared.GenerateID())
	if err != nil {
		return err
	}

	if jsonOut {
		err = r.writeJSON(report)
	} else {
		err = r.writePlain("%s", renderReport(report))
	}
	if err != nil {
		return err
	}
	return report.Err()
}

func runPlan(cmd *cobra.Command, _ []string) error {
	r, err := newRunner(cmd)
	if err != nil {
		return err
	}
	engine, err := r.engine(inputFile, true)
	if err != nil {
		return err
	}

	ctx, cancel := r.withTimeout(cmd.Context())
	defer cancel()

	plans, err := engine.Plan(ctx)
	if err != nil {
		return err
	}
	if jsonOut {
		return r.writeJSON(plans)
	}
	return r.writePlain("%s", renderPlans(plans))
}
