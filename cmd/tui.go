package cmd

import (
	"fmt"

	"crmimport/internal/backup"
	"crmimport/internal/importer"
	"crmimport/internal/logging"
	"crmimport/internal/mapping"
	"crmimport/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Start the interactive import TUI (same as running without a command)",
	Long: `Start the terminal UI. It walks an upload through column mapping, row
correction, the pre-import summary, the chunked import and the final report,
and offers a snapshot of the contact collection.

Without --endpoint the TUI connects to MongoDB at start-up.`,
	RunE: runTUI,
}

func init() {
	tuiCmd.Flags().StringVarP(&mappingFile, "mapping", "m", "", "YAML mapping profile applied to every upload")
	tuiCmd.Flags().StringVar(&backupDir, "backup-dir", "", "snapshot the target collection into this directory before each import")
	tuiCmd.Flags().StringVar(&endpoint, "endpoint", "", "submit chunks to this insert-or-update URL instead of MongoDB")
}

func runTUI(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if cmd.Flags().Changed("endpoint") {
		cfg.Endpoint = endpoint
	}

	opts := tui.Options{ChunkSize: cfg.ChunkSize, Collection: cfg.Collection, BackupDir: backupDir, Tie: cfg.DedupTie}
	if mappingFile != "" {
		profile, err := mapping.LoadProfile(mappingFile)
		if err != nil {
			return err
		}
		opts.Profile = &profile.Mapping
	}

	if cfg.Endpoint != "" {
		opts.Submitter = importer.NewHTTPSubmitter(cfg.Endpoint, cfg.HTTPTimeout)
		opts.Target = cfg.Endpoint
	}
	if cfg.Endpoint == "" || backupDir != "" {
		db, err := connect(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.EnsureIndexes(ctx); err != nil {
			return err
		}
		opts.Backup = backup.NewService(db)
		if opts.Submitter == nil {
			opts.Submitter = importer.StoreSubmitter{Store: db}
			opts.Target = fmt.Sprintf("MongoDB %s.%s", cfg.DBName, cfg.Collection)
		}
	}

	// Log lines would tear the alternate screen.
	logging.Discard()

	p := tea.NewProgram(
		tui.NewModel(opts),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
