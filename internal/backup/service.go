// Package backup writes and reloads snapshot files of the contact
// collection. Imports are not transactional, so a snapshot taken before
// the first chunk is the recovery path when a run fails halfway.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crmimport/internal/database"
	pipelineerrors "crmimport/internal/errors"
)

// Store is the part of database.MongoDB the service needs.
type Store interface {
	BackupCollection(ctx context.Context, collectionName string, w io.Writer, format string) (int, error)
	RestoreCollection(ctx context.Context, collectionName string, r io.Reader, format string, dropExisting bool) (int, error)
	ListCollections(ctx context.Context) ([]string, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Snapshot describes one written backup file.
type Snapshot struct {
	Path       string
	Collection string
	Documents  int
}

func (s *Service) BackupCollection(ctx context.Context, collectionName, outputDir, format string) (*Snapshot, error) {
	format, err := checkFormat(format)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := s.now().Format("20060102_150405")
	filename := fmt.Sprintf("backup_%s_%s.%s", collectionName, timestamp, format)
	path := filepath.Join(outputDir, filename)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup file: %w", err)
	}

	n, err := s.store.BackupCollection(ctx, collectionName, file, format)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("backup failed: %w", err)
	}

	return &Snapshot{Path: path, Collection: collectionName, Documents: n}, nil
}

// Collections lists the collections that can be snapshotted.
func (s *Service) Collections(ctx context.Context) ([]string, error) {
	collections, err := s.store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	var out []string
	for _, c := range collections {
		if !strings.HasPrefix(c, "system.") {
			out = append(out, c)
		}
	}
	return out, nil
}

// BackupDatabase snapshots every collection, skipping system collections.
func (s *Service) BackupDatabase(ctx context.Context, outputDir, format string) ([]*Snapshot, error) {
	collections, err := s.Collections(ctx)
	if err != nil {
		return nil, err
	}

	if len(collections) == 0 {
		return nil, fmt.Errorf("no collections found in database")
	}

	var snapshots []*Snapshot
	for _, collection := range collections {
		snap, err := s.BackupCollection(ctx, collection, outputDir, format)
		if err != nil {
			return snapshots, fmt.Errorf("failed to backup collection %s: %w", collection, err)
		}
		snapshots = append(snapshots, snap)
	}

	return snapshots, nil
}

func (s *Service) RestoreCollection(ctx context.Context, collectionName, inputFile string, dropExisting bool) (int, error) {
	format, err := FormatOf(inputFile)
	if err != nil {
		return 0, err
	}
	if err := ValidateBackupFile(inputFile, format); err != nil {
		return 0, err
	}

	file, err := os.Open(inputFile)
	if err != nil {
		return 0, fmt.Errorf("failed to open backup file: %w", err)
	}
	defer file.Close()

	n, err := s.store.RestoreCollection(ctx, collectionName, file, format, dropExisting)
	if err != nil {
		return n, fmt.Errorf("restore failed: %w", err)
	}
	return n, nil
}

// FormatOf infers the snapshot format from the file extension.
func FormatOf(filename string) (string, error) {
	return checkFormat(strings.TrimPrefix(filepath.Ext(filename), "."))
}

func ValidateBackupFile(filename, expectedFormat string) error {
	info, err := os.Stat(filename)
	if err != nil {
		return fmt.Errorf("cannot open backup file: %w", err)
	}

	if info.Size() == 0 {
		return fmt.Errorf("backup file %s is empty: %w", filename, pipelineerrors.ErrInvalidInput)
	}

	extension := strings.TrimPrefix(filepath.Ext(filename), ".")
	if extension != expectedFormat {
		return fmt.Errorf("expected %s file but got .%s: %w", strings.ToUpper(expectedFormat), extension, pipelineerrors.ErrInvalidInput)
	}

	return nil
}

func checkFormat(format string) (string, error) {
	switch strings.ToLower(format) {
	case database.FormatBSON, "":
		return database.FormatBSON, nil
	case database.FormatJSON:
		return database.FormatJSON, nil
	}
	return "", fmt.Errorf("unknown backup format %q: %w", format, pipelineerrors.ErrInvalidInput)
}
