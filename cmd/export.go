package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Another0Noob/mangadex-sync/internal/shared"
	"github.com/spf13/cobra"
)

var exportDir string

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the URLs of every followed MangaDex title to a dated file",
	Long: `export writes one https://mangadex.org/title/<id> line per followed title to
YYYY-MM-DD-mangadex.txt, which is handy as a backup before the first sync.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(
		&exportDir,
		"output",
		"o",
		".",
		"directory to write the export to",
	)
}

func runExport(cmd *cobra.Command, _ []string) error {
	r, err := newRunner(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := r.withTimeout(cmd.Context())
	defer cancel()

	followed, err := r.mangadex().GetAllFollowed(ctx)
	if err != nil {
		return fmt.Errorf("request follows: %w", err)
	}
	r.logger.Info("fetched follows", "count", len(followed))

	ids := make([]string, len(followed))
	for i, m := range followed {
		ids[i] = m.ID
	}
	path, err := writeExport(exportDir, time.Now(), ids)
	if err != nil {
		return err
	}
	return r.writePlain("Wrote %d titles to %s\n", len(ids), path)
}

func writeExport(dir string, t time.Time, ids []string) (string, error) {
	path := filepath.Join(dir, t.Format("2006-01-02")+"-mangadex.txt")
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}

	w := bufio.NewWriter(file)
	for _, id := range ids {
		if _, err := fmt.Fprintln(w, shared.TitleURL(id)); err != nil {
			file.Close()
			return "", fmt.Errorf("write export file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return "", fmt.Errorf("write export file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close export file: %w", err)
	}
	return path, nil
}
