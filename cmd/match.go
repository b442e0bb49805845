package cmd

import (
	"github.com/spf13/cobra"
)

// matchCmd represents the match command
var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Show how each source title matched on MangaDex",
	Long: `match reads both lists and prints, for every source title, the MangaDex title it matched
and how: exact, alternate-title, fuzzy (with its similarity score) or none.

Nothing is changed on MangaDex.`,
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)
	addSourceFlags(matchCmd)
}

func runMatch(cmd *cobra.Command, _ []string) error {
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

	results, err := engine.Match(ctx)
	if err != nil {
		return err
	}

	views := matchViews(results)
	if jsonOut {
		return r.writeJSON(views)
	}
	return r.writePlain("%s", renderMatches(views))
}
