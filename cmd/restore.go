package cmd

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"crmimport/internal/backup"
	pipelineerrors "crmimport/internal/errors"
	"crmimport/internal/logging"

	"github.com/spf13/cobra"
)

var (
	inputFile         string
	restoreCollection string
	dropExisting      bool
	skipConfirmation  bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Reload a collection snapshot",
	Long: `Restore loads a BSON or JSON snapshot written by backup (or by import
--backup-dir). Use --drop to replace the collection, which is how a failed
import is rolled back.`,
	Args: cobra.NoArgs,
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().StringVarP(&inputFile, "input", "i", "", "backup file to restore (required)")
	restoreCmd.Flags().StringVarP(&restoreCollection, "target", "t", "", "target collection (defaults to the collection named in the file)")
	restoreCmd.Flags().BoolVar(&dropExisting, "drop", false, "drop the existing collection before restoring")
	restoreCmd.Flags().BoolVarP(&skipConfirmation, "yes", "y", false, "skip the confirmation prompt")

	_ = restoreCmd.MarkFlagRequired("input")
}

// collectionFromFile recovers the collection from a backup_<name>_<date>_<time>.<ext> file name.
func collectionFromFile(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if !strings.HasPrefix(base, "backup_") {
		return ""
	}
	parts := strings.Split(strings.TrimPrefix(base, "backup_"), "_")
	if len(parts) < 3 {
		return ""
	}
	return strings.Join(parts[:len(parts)-2], "_")
}

func runRestore(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	log := logging.FromContext(ctx)

	format, err := backup.FormatOf(inputFile)
	if err != nil {
		return err
	}
	if err := backup.ValidateBackupFile(inputFile, format); err != nil {
		return fmt.Errorf("backup file validation failed: %w", err)
	}

	target := restoreCollection
	if target == "" {
		target = collectionFromFile(inputFile)
	}
	if target == "" {
		return fmt.Errorf("cannot tell the target collection from %s, pass --target: %w", inputFile, pipelineerrors.ErrInvalidInput)
	}

	if !skipConfirmation {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "About to restore %s into %s.%s (%s)\n", inputFile, cfg.DBName, target, format)
		if dropExisting {
			fmt.Fprintln(out, "WARNING: the existing collection will be DROPPED")
		}
		if !confirmAction(cmd.InOrStdin(), out, "Do you want to continue?") {
			fmt.Fprintln(out, "Restore cancelled")
			return nil
		}
	}

	db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info().Str("collection", target).Str("file", inputFile).Bool("drop", dropExisting).Msg("starting restore")
	n, err := backup.NewService(db).RestoreCollection(ctx, target, inputFile, dropExisting)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "restored %d documents into %s\n", n, target)
	return nil
}

func confirmAction(in io.Reader, out io.Writer, message string) bool {
	fmt.Fprintf(out, "%s (y/N): ", message)
	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && response == "" {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
