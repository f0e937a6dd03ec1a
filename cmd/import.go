package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"crmimport/internal/backup"
	"crmimport/internal/csv"
	pipelineerrors "crmimport/internal/errors"
	"crmimport/internal/importer"
	"crmimport/internal/logging"
	"crmimport/internal/mapping"
	"crmimport/internal/models"
	"crmimport/internal/pipeline"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	mappingFile string
	dryRun      bool
	reportFile  string
	backupDir   string
	endpoint    string
	chunkSize   int
	delimiter   string
	sheet       string
	strict      bool
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Map, validate, deduplicate and import a contact file",
	Long: `Import runs the whole pipeline without the TUI: the mapping is suggested from
the headers (or read from --mapping), rows are normalized and deduplicated and
the ready rows are sent in chunks either to MongoDB or to --endpoint.

Rows with critical errors are skipped unless --strict is set, in which case
the import refuses to start.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	flags := importCmd.Flags()
	flags.StringVarP(&mappingFile, "mapping", "m", "", "YAML mapping profile to apply instead of the suggested mapping")
	flags.BoolVar(&dryRun, "dry-run", false, "run every stage but write nothing to the store")
	flags.StringVarP(&reportFile, "report", "r", "", "write per-row outcomes to this CSV file")
	flags.StringVar(&backupDir, "backup-dir", "", "snapshot the target collection into this directory before importing")
	flags.StringVar(&endpoint, "endpoint", "", "submit chunks to this insert-or-update URL instead of MongoDB")
	flags.IntVar(&chunkSize, "chunk-size", 0, "rows per chunk")
	flags.StringVar(&delimiter, "delimiter", "", `CSV delimiter (",", ";", "|" or "tab"); sniffed when empty`)
	flags.StringVar(&sheet, "sheet", "", "workbook sheet to read (first sheet when empty)")
	flags.BoolVar(&strict, "strict", false, "refuse to import when any row has a critical error")
}

func parseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	}
	r := []rune(s)
	if len(r) != 1 {
		return 0, fmt.Errorf("delimiter %q must be a single character: %w", s, pipelineerrors.ErrInvalidInput)
	}
	return r[0], nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if cmd.Flags().Changed("endpoint") {
		cfg.Endpoint = endpoint
	}
	if cmd.Flags().Changed("chunk-size") {
		cfg.ChunkSize = chunkSize
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	jobID := uuid.NewString()
	ctx = logging.WithJob(ctx, jobID)
	log := logging.FromContext(ctx)

	session, err := prepareSession(ctx, args[0])
	if err != nil {
		return err
	}

	if err := session.Advance(); err != nil {
		return err
	}
	out := session.Outcome()
	log.Info().Int("ready", len(out.Ready)).Int("skipped", len(out.Skipped)).Int("critical", session.CriticalCount()).Msg("summary")
	if !strict {
		session.AcceptCritical()
	}

	submitter, cleanup, err := newSubmitter(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	orch := &importer.Orchestrator{
		ChunkSize: cfg.ChunkSize,
		Submitter: submitter,
		JobID:     jobID,
		Progress: func(p importer.Progress) {
			log.Info().Int("chunk", p.Chunk).Int("chunks", p.ChunksTotal).Int("processed", p.Processed).Int("total", p.Total).Msg("progress")
		},
	}
	result, runErr := session.Import(ctx, orch)

	if reportFile != "" {
		if err := csv.WriteReportFile(reportFile, session.Report()); err != nil {
			log.Error().Err(err).Msg("failed to write report")
		} else {
			log.Info().Str("file", reportFile).Msg("report written")
		}
	}
	if result != nil {
		printResult(cmd.OutOrStdout(), result, out)
	}
	if pipelineerrors.IsTransportError(runErr) && backupDir != "" {
		log.Warn().Str("dir", backupDir).Msg("import interrupted after partial writes; use restore --drop with the snapshot to roll back")
	}
	return runErr
}

// prepareSession loads file and settles the mapping, leaving the session at
// the mapping stage.
func prepareSession(ctx context.Context, file string) (*pipeline.Session, error) {
	log := logging.FromContext(ctx)

	delim, err := parseDelimiter(delimiter)
	if err != nil {
		return nil, err
	}
	table, err := csv.NewParser(file, csv.Options{Delimiter: delim, Sheet: sheet}).Parse()
	if err != nil {
		return nil, err
	}
	log.Info().Str("file", table.Source).Int("rows", len(table.Rows)).Strs("headers", table.Headers).Msg("file loaded")

	session := pipeline.NewSession()
	if err := session.SetTieRule(cfg.DedupTie); err != nil {
		return nil, err
	}
	if err := session.Load(table); err != nil {
		return nil, err
	}
	if err := session.Advance(); err != nil {
		return nil, err
	}

	if mappingFile != "" {
		profile, err := mapping.LoadProfile(mappingFile)
		if err != nil {
			return nil, err
		}
		dropped, err := session.ApplyProfile(profile.Mapping)
		if err != nil {
			return nil, err
		}
		if len(dropped) > 0 {
			log.Warn().Strs("columns", dropped).Msg("profile columns not present in file")
		}
	}

	m := session.Mapping()
	for _, f := range models.Fields {
		if m.IsMapped(f) {
			log.Debug().Str("field", string(f)).Str("column", describeBinding(m, f)).Msg("mapped")
		}
	}
	return session, nil
}

func describeBinding(m mapping.FieldMapping, f models.Field) string {
	switch {
	case f == models.FieldName && m.NameMode == mapping.NameModeSplit:
		return m.FirstName + " + " + m.LastName
	case f == models.FieldNotes:
		return strings.Join(m.Notes, " + ")
	}
	return m.Column(f)
}

// newSubmitter picks the transport: nothing for a dry run, HTTP when an
// endpoint is configured and MongoDB otherwise. A requested backup needs
// the database in every mode but the dry run.
func newSubmitter(ctx context.Context) (importer.Submitter, func(), error) {
	log := logging.FromContext(ctx)
	noop := func() {}

	if dryRun {
		log.Info().Msg("dry run: nothing will be written")
		return importer.DryRunSubmitter{}, noop, nil
	}

	if cfg.Endpoint != "" && backupDir == "" {
		log.Info().Str("endpoint", cfg.Endpoint).Msg("submitting over HTTP")
		return importer.NewHTTPSubmitter(cfg.Endpoint, cfg.HTTPTimeout), noop, nil
	}

	db, err := connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close MongoDB connection")
		}
	}

	if backupDir != "" {
		snap, err := backup.NewService(db).BackupCollection(ctx, cfg.Collection, backupDir, "")
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("pre-import snapshot failed: %w", err)
		}
		log.Info().Str("file", snap.Path).Int("documents", snap.Documents).Msg("snapshot written")
	}

	if cfg.Endpoint != "" {
		log.Info().Str("endpoint", cfg.Endpoint).Msg("submitting over HTTP")
		return importer.NewHTTPSubmitter(cfg.Endpoint, cfg.HTTPTimeout), cleanup, nil
	}

	if err := db.EnsureIndexes(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	if n, err := db.Count(ctx); err == nil {
		log.Info().Str("collection", cfg.Collection).Int64("documents", n).Msg("writing to MongoDB")
	}
	return importer.StoreSubmitter{Store: db}, cleanup, nil
}

func printResult(w io.Writer, result *models.ImportBatchResult, out models.DedupOutcome) {
	fmt.Fprintf(w, "Job %s\n", result.JobID)
	fmt.Fprintf(w, "  chunks:   %d/%d\n", result.ChunksCompleted, result.ChunksTotal)
	fmt.Fprintf(w, "  inserted: %d\n", result.Inserted)
	fmt.Fprintf(w, "  updated:  %d\n", result.Updated)
	fmt.Fprintf(w, "  skipped:  %d by store, %d before import\n", result.Skipped, len(out.Skipped))
	if pending := result.Total - result.Processed; pending > 0 {
		fmt.Fprintf(w, "  not submitted: %d\n", pending)
	}
	for _, issue := range result.Errors {
		fmt.Fprintf(w, "  error   row %d: %s\n", issue.OriginalIndex+1, issue.Reason)
	}
	for _, issue := range result.Warnings {
		fmt.Fprintf(w, "  warning row %d: %s\n", issue.OriginalIndex+1, issue.Reason)
	}
}
