package cmd

import (
	"fmt"

	"crmimport/internal/backup"
	"crmimport/internal/logging"

	"github.com/spf13/cobra"
)

var (
	outputDir    string
	backupFormat string
	backupAll    bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot the contact collection",
	Long: `Backup writes the contact collection (or, with --all, every collection of the
database) to BSON or JSON files. Imports are not transactional; take a
snapshot first, or pass --backup-dir to import, to be able to roll back.`,
	Args: cobra.NoArgs,
	RunE: runBackup,
}

func init() {
	backupCmd.Flags().StringVarP(&outputDir, "output", "o", "./backups", "output directory for backup files")
	backupCmd.Flags().StringVarP(&backupFormat, "format", "f", "bson", "backup format: bson or json")
	backupCmd.Flags().BoolVar(&backupAll, "all", false, "back up every collection in the database")
}

func runBackup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	log := logging.FromContext(ctx)

	db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := backup.NewService(db)

	if !backupAll {
		log.Info().Str("collection", cfg.Collection).Str("format", backupFormat).Msg("starting backup")
		snap, err := svc.BackupCollection(ctx, cfg.Collection, outputDir, backupFormat)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d documents\n", snap.Path, snap.Documents)
		return nil
	}

	log.Info().Str("database", cfg.DBName).Str("format", backupFormat).Msg("starting backup of all collections")
	snaps, err := svc.BackupDatabase(ctx, outputDir, backupFormat)
	for _, snap := range snaps {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d documents\n", snap.Path, snap.Documents)
	}
	return err
}
