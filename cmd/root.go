package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Another0Noob/mangadex-sync/internal/apperr"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	envFile   string
	verbose   bool
	inputFile string
	dryRun    bool
	jsonOut   bool
)

var rootCmd = &cobra.Command{
	Use:   "mangadex-sync",
	Short: "Bring your MangaDex follows in line with your AniList manga list",
	Long: `mangadex-sync reads your AniList manga list (or an exported MAL/Comick file), finds
each title on MangaDex and follows it with the matching reading status and chapter progress.

The source list always wins. Running it twice in a row changes nothing the second time.
Without a subcommand it runs sync.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSync,
}

// Execute runs the root command and exits non-zero on failure: 2 when every title of a run
// failed, 1 for anything else.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, apperr.ErrSystemicFailure) {
		return 2
	}
	return 1
}

func init() {
	rootCmd.PersistentFlags().StringVarP(
		&cfgFile,
		"config",
		"c",
		"",
		"path to config file (.ini, .toml, .yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&envFile,
		"env-file",
		"",
		"path to a .env file with credentials (default ./.env if present)",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"log debug output",
	)

	addSourceFlags(rootCmd)
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan and report without changing MangaDex")
}

// addSourceFlags binds the flags shared by every command that reads the source list.
func addSourceFlags(c *cobra.Command) {
	c.Flags().StringVarP(
		&inputFile,
		"input",
		"i",
		"",
		"read the source list from a MAL xml or Comick csv export instead of AniList",
	)
	c.Flags().BoolVar(&jsonOut, "json", false, "print JSON instead of a table")
}
