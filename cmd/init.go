package cmd

import (
	"github.com/Another0Noob/mangadex-sync/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write an annotated example config file (default config.ini)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.ini"
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.WriteExample(path); err != nil {
			return err
		}
		cmd.Printf("Wrote %s. Fill in your MangaDex client credentials or set them in .env.\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
