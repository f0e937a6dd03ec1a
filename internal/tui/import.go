package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"crmimport/internal/backup"
	"crmimport/internal/csv"
	"crmimport/internal/edits"
	pipelineerrors "crmimport/internal/errors"
	"crmimport/internal/importer"
	"crmimport/internal/models"
	"crmimport/internal/pipeline"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ImportModel is the import wizard. Its screen follows the session stage.
type ImportModel struct {
	opts    Options
	session *pipeline.Session

	fileInput    textinput.Model
	files        []string
	selectedFile int
	showingFiles bool
	loading      bool

	pane       pane
	fieldRow   int
	editField  int
	notePick   string
	rows       table.Model
	cellInput  textinput.Model
	skipOffset int

	progress    progress.Model
	progressVal float64
	lastChunk   importer.Progress
	events      <-chan tea.Msg
	cancel      context.CancelFunc
	canceling   bool
	snapshot    *backup.Snapshot

	notice string
	err    error
	width  int
	height int
}

type fileLoadedMsg struct {
	table *csv.Table
	err   error
}

type importProgressMsg importer.Progress

type snapshotMsg struct {
	snapshot *backup.Snapshot
}

type importDoneMsg struct {
	result *models.ImportBatchResult
	err    error
}

type reportWrittenMsg struct {
	path string
	err  error
}

func NewImportModel(opts Options) *ImportModel {
	fileInput := textinput.New()
	fileInput.Placeholder = "path/to/contacts.csv or .xlsx"
	fileInput.Focus()

	cellInput := textinput.New()
	cellInput.CharLimit = 256

	session := pipeline.NewSession()
	_ = session.SetTieRule(opts.Tie)

	return &ImportModel{
		opts:      opts,
		session:   session,
		fileInput: fileInput,
		cellInput: cellInput,
		rows:      newRowsTable(),
		progress: progress.New(
			progress.WithSolidFill("#00aadd"),
			progress.WithoutPercentage(),
		),
	}
}

func (m *ImportModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *ImportModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.rows.SetWidth(frameWidth(width))
	m.rows.SetHeight(max(height-22, 5))
	m.progress.Width = min(frameWidth(width)-10, 80)
}

// Busy reports whether keys must reach this screen unfiltered.
func (m *ImportModel) Busy() bool {
	if m.showingFiles || m.loading {
		return true
	}
	switch m.session.Stage() {
	case pipeline.StageImporting:
		return true
	case pipeline.StageMapping:
		return m.session.Workflow().State() != edits.Viewing
	}
	return false
}

func (m *ImportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case fileLoadedMsg:
		m.loading = false
		return m, m.loaded(msg)

	case snapshotMsg:
		m.snapshot = msg.snapshot
		return m, waitForEvent(m.events)

	case importProgressMsg:
		m.lastChunk = importer.Progress(msg)
		if msg.Total > 0 {
			m.progressVal = float64(msg.Processed) / float64(msg.Total)
		}
		return m, waitForEvent(m.events)

	case importDoneMsg:
		m.cancel = nil
		m.events = nil
		m.canceling = false
		if err := m.session.FinishImport(msg.result, msg.err); err != nil {
			m.err = err
		}
		return m, nil

	case reportWrittenMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.notice = "Report written to " + msg.path
		}
		return m, nil

	case tea.KeyMsg:
		m.err = nil
		switch m.session.Stage() {
		case pipeline.StageUpload:
			return m.updateUpload(msg)
		case pipeline.StageMapping:
			return m.updateMapping(msg)
		case pipeline.StageSummary:
			return m.updateSummary(msg)
		case pipeline.StageImporting:
			if msg.String() == "x" && m.cancel != nil && !m.canceling {
				m.canceling = true
				m.cancel()
			}
			return m, nil
		case pipeline.StageReport:
			return m.updateReport(msg)
		}
	}
	return m, nil
}

func (m *ImportModel) updateUpload(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showingFiles {
		return m.updateFileSelect(msg)
	}
	if m.loading {
		return m, nil
	}

	switch msg.String() {
	case "ctrl+f":
		return m, m.browseFiles()
	case "enter":
		path := strings.TrimSpace(m.fileInput.Value())
		if path == "" {
			return m, nil
		}
		m.loading = true
		return m, loadFile(path)
	}

	var cmd tea.Cmd
	m.fileInput, cmd = m.fileInput.Update(msg)
	return m, cmd
}

func (m *ImportModel) updateFileSelect(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.selectedFile > 0 {
			m.selectedFile--
		}
	case "down", "j":
		if m.selectedFile < len(m.files)-1 {
			m.selectedFile++
		}
	case "enter":
		if len(m.files) > 0 {
			m.fileInput.SetValue(m.files[m.selectedFile])
		}
		m.showingFiles = false
	case "esc":
		m.showingFiles = false
	}
	return m, nil
}

func (m *ImportModel) browseFiles() tea.Cmd {
	cwd, err := os.Getwd()
	if err != nil {
		return ShowError(err)
	}
	var files []string
	for _, pattern := range []string{"*.csv", "*.txt", "*.xlsx", "*.xlsm"} {
		matches, err := filepath.Glob(filepath.Join(cwd, pattern))
		if err != nil {
			return ShowError(err)
		}
		for _, f := range matches {
			rel, _ := filepath.Rel(cwd, f)
			files = append(files, rel)
		}
	}
	m.files = files
	m.selectedFile = 0
	m.showingFiles = true
	return nil
}

func loadFile(path string) tea.Cmd {
	return func() tea.Msg {
		table, err := csv.NewParser(path, csv.Options{}).Parse()
		return fileLoadedMsg{table: table, err: err}
	}
}

func (m *ImportModel) loaded(msg fileLoadedMsg) tea.Cmd {
	if msg.err != nil {
		m.err = msg.err
		return nil
	}
	if err := m.session.Load(msg.table); err != nil {
		m.err = err
		return nil
	}
	if err := m.session.Advance(); err != nil {
		m.err = err
		return nil
	}

	m.notice = fmt.Sprintf("Loaded %d rows and %d columns from %s", len(msg.table.Rows), len(msg.table.Headers), msg.table.Source)
	if m.opts.Profile != nil {
		dropped, err := m.session.ApplyProfile(*m.opts.Profile)
		if err != nil {
			m.err = err
		} else if len(dropped) > 0 {
			m.notice += fmt.Sprintf("; profile columns not in this file: %s", strings.Join(dropped, ", "))
		}
	}
	m.pane = fieldsPane
	m.fieldRow, m.editField, m.notePick = 0, 0, ""
	m.refreshRows()
	return nil
}

func (m *ImportModel) updateSummary(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "a":
		m.session.AcceptCritical()
	case "up", "k":
		if m.skipOffset > 0 {
			m.skipOffset--
		}
	case "down", "j":
		if m.skipOffset < len(m.session.Outcome().Skipped)-1 {
			m.skipOffset++
		}
	case "b":
		if err := m.session.Back(); err != nil {
			m.err = err
		}
		m.refreshRows()
	case "enter":
		return m, m.startImport()
	}
	return m, nil
}

// startImport moves the session to importing and runs the orchestrator in
// the background. Progress arrives as messages on events; the session is
// only touched again when importDoneMsg reaches Update.
func (m *ImportModel) startImport() tea.Cmd {
	ready, err := m.session.StartImport()
	if err != nil {
		m.err = err
		return nil
	}

	events := make(chan tea.Msg, 8)
	ctx, cancel := context.WithCancel(context.Background())
	m.events, m.cancel = events, cancel
	m.progressVal, m.lastChunk, m.snapshot = 0, importer.Progress{}, nil

	orch := &importer.Orchestrator{
		ChunkSize: m.opts.ChunkSize,
		Submitter: m.opts.Submitter,
		Progress:  func(p importer.Progress) { events <- importProgressMsg(p) },
	}
	svc, dir, coll := m.opts.Backup, m.opts.BackupDir, m.opts.Collection

	go func() {
		defer close(events)
		defer cancel()
		if svc != nil && dir != "" {
			snap, err := svc.BackupCollection(ctx, coll, dir, "")
			if err != nil {
				events <- importDoneMsg{result: &models.ImportBatchResult{Total: len(ready)}, err: fmt.Errorf("pre-import snapshot failed: %w", err)}
				return
			}
			events <- snapshotMsg{snapshot: snap}
		}
		result, err := orch.Run(ctx, ready)
		events <- importDoneMsg{result: result, err: err}
	}()
	return waitForEvent(events)
}

func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

func (m *ImportModel) updateReport(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "w":
		return m, m.writeReport()
	case "enter":
		if err := m.session.Back(); err != nil {
			m.err = err
		}
		m.notice = ""
		m.fileInput.SetValue("")
		m.fileInput.Focus()
	}
	return m, nil
}

func (m *ImportModel) writeReport() tea.Cmd {
	lines := m.session.Report()
	base := "import"
	if t := m.session.Table(); t != nil && t.Source != "" {
		base = strings.TrimSuffix(t.Source, filepath.Ext(t.Source))
	}
	path := base + ".report.csv"
	return func() tea.Msg {
		return reportWrittenMsg{path: path, err: csv.WriteReportFile(path, lines)}
	}
}

func (m *ImportModel) View() string {
	var body string
	switch m.session.Stage() {
	case pipeline.StageUpload:
		body = m.viewUpload()
	case pipeline.StageMapping:
		body = m.viewMapping()
	case pipeline.StageSummary:
		body = m.viewSummary()
	case pipeline.StageImporting:
		body = m.viewProgress()
	case pipeline.StageReport:
		body = m.viewReport()
	}

	parts := []string{m.viewStages(), body}
	if m.notice != "" {
		parts = append(parts, dimStyle.Render(m.notice))
	}
	if m.err != nil {
		parts = append(parts, errorStyle.Render(describe(m.err)))
	}
	return lipgloss.NewStyle().Margin(0, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m *ImportModel) viewStages() string {
	stages := []pipeline.Stage{pipeline.StageUpload, pipeline.StageMapping, pipeline.StageSummary, pipeline.StageImporting, pipeline.StageReport}
	labels := make([]string, len(stages))
	for i, s := range stages {
		style := stageStyle
		if s == m.session.Stage() {
			style = activeStageStyle
		}
		labels[i] = style.Render(s.String())
	}
	return titleStyle.Render("Import contacts") + "\n" + strings.Join(labels, dimStyle.Render(" › "))
}

func (m *ImportModel) viewUpload() string {
	if m.showingFiles {
		if len(m.files) == 0 {
			return lipgloss.JoinVertical(lipgloss.Left,
				warningStyle.Render("No CSV or workbook files in the current directory"),
				helpStyle.Render("Esc: back to form"))
		}
		var list string
		for i, f := range m.files {
			cursor, style := " ", menuItemStyle
			if i == m.selectedFile {
				cursor, style = ">", selectedMenuItemStyle
			}
			list += fmt.Sprintf("%s %s\n", cursor, style.Render(f))
		}
		return lipgloss.JoinVertical(lipgloss.Left, list, helpStyle.Render("↑/↓: navigate • Enter: select • Esc: cancel"))
	}

	form := formStyle.Width(frameWidth(m.width) - 4).Render(
		labelStyle.Render("Contact file:") + "\n" + m.fileInput.View() + "\n\n" +
			labelStyle.Render("Destination:") + " " + m.opts.Target,
	)
	status := ""
	if m.loading {
		status = dimStyle.Render("Reading file...")
	}
	return lipgloss.JoinVertical(lipgloss.Left, form, status,
		helpStyle.Render("Ctrl+F: browse files • Enter: load • Esc: back to menu"))
}

func (m *ImportModel) viewSummary() string {
	out := m.session.Outcome()
	records := m.session.Records()
	critical := m.session.CriticalCount()

	var b strings.Builder
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("Rows uploaded:"), len(records))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Ready to import:"), successStyle.Render(fmt.Sprint(len(out.Ready))))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Skipped:"), warningStyle.Render(fmt.Sprint(len(out.Skipped))))
	flagged := 0
	for _, r := range out.Ready {
		if r.Status == models.StatusError {
			flagged++
		}
	}
	if flagged > 0 {
		fmt.Fprintf(&b, "%s %d (imported as warnings and flagged)\n", labelStyle.Render("Rows with errors:"), flagged)
	}
	if edits := m.session.Workflow().Ledger().ConfirmedCount(); edits > 0 {
		fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("Manual corrections:"), edits)
	}

	if len(out.Skipped) > 0 {
		b.WriteString("\n" + labelStyle.Render("Skipped rows") + "\n")
		end := min(m.skipOffset+8, len(out.Skipped))
		for _, s := range out.Skipped[m.skipOffset:end] {
			reasons := make([]string, len(s.Reasons))
			for i, r := range s.Reasons {
				reasons[i] = r.Text
			}
			name := s.Record.Value(models.FieldName)
			if name == "" {
				name = dimStyle.Render("(no name)")
			}
			fmt.Fprintf(&b, "  row %-5d %-30s %s\n", s.Record.OriginalIndex+1, name, dimStyle.Render(strings.Join(reasons, "; ")))
		}
		if end < len(out.Skipped) {
			fmt.Fprintf(&b, "  %s\n", dimStyle.Render(fmt.Sprintf("... %d more", len(out.Skipped)-end)))
		}
	}

	if reasons := m.session.Blockers(); len(reasons) > 0 {
		b.WriteString("\n")
		for _, r := range reasons {
			b.WriteString(warningStyle.Render("! "+r) + "\n")
		}
	}

	help := "Enter: start import • b: back to mapping • ↑/↓: scroll skipped rows"
	if critical > 0 {
		help = "a: accept skipping critical rows • " + help
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		formStyle.Width(frameWidth(m.width)-4).Render(b.String()),
		helpStyle.Render(help))
}

func (m *ImportModel) viewProgress() string {
	status := fmt.Sprintf("Chunk %d of %d • %d of %d rows",
		m.lastChunk.Chunk, m.lastChunk.ChunksTotal, m.lastChunk.Processed, m.lastChunk.Total)
	if m.snapshot != nil {
		status += "\n" + dimStyle.Render(fmt.Sprintf("Snapshot of %d documents saved to %s", m.snapshot.Documents, m.snapshot.Path))
	}
	help := "x: stop after the current chunk"
	if m.canceling {
		help = "Stopping after the current chunk..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		"",
		m.progress.ViewAs(m.progressVal),
		status,
		helpStyle.Render(help))
}

func (m *ImportModel) viewReport() string {
	result, runErr := m.session.Result()

	var status string
	switch {
	case runErr == nil:
		status = successStyle.Render("Import completed")
	case errors.Is(runErr, pipelineerrors.ErrCanceled):
		status = warningStyle.Render("Import stopped: " + runErr.Error())
	case pipelineerrors.IsTransportError(runErr):
		status = errorStyle.Render("Import interrupted, earlier chunks stay applied: " + runErr.Error())
	default:
		status = errorStyle.Render("Import failed: " + describe(runErr))
	}

	var b strings.Builder
	if result != nil {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Job:"), result.JobID)
		fmt.Fprintf(&b, "%s %d of %d\n", labelStyle.Render("Chunks:"), result.ChunksCompleted, result.ChunksTotal)
		fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("Inserted:"), result.Inserted)
		fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("Updated:"), result.Updated)
		fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("Skipped by store:"), result.Skipped)
		fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("Skipped before import:"), len(m.session.Outcome().Skipped))
		if n := result.Total - result.Processed; n > 0 {
			fmt.Fprintf(&b, "%s %d\n", warningStyle.Render("Not submitted:"), n)
		}
		for _, issue := range firstIssues(result.Errors, 5) {
			b.WriteString(errorStyle.Render(issue) + "\n")
		}
		for _, issue := range firstIssues(result.Warnings, 5) {
			b.WriteString(warningStyle.Render(issue) + "\n")
		}
	}
	if ledger := m.session.Workflow().Ledger(); ledger.ConfirmedCount() > 0 {
		b.WriteString(labelStyle.Render("Manual corrections:") + "\n")
		for _, cell := range ledger.ConfirmedKeys() {
			value, _ := ledger.Confirmed(cell)
			fmt.Fprintf(&b, "  row %d %s: %q\n", cell.OriginalIndex+1, cell.Field.Label(), value)
		}
	}
	if m.snapshot != nil {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Snapshot:"), m.snapshot.Path)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		status,
		formStyle.Width(frameWidth(m.width)-4).Render(b.String()),
		helpStyle.Render("w: write per-row report CSV • Enter: import another file • Esc: back to menu"))
}

func firstIssues(issues []models.RowIssue, n int) []string {
	var out []string
	for i, issue := range issues {
		if i == n {
			out = append(out, fmt.Sprintf("... %d more", len(issues)-n))
			break
		}
		out = append(out, fmt.Sprintf("row %d: %s", issue.OriginalIndex+1, issue.Reason))
	}
	return out
}

// describe puts each reason of a blocked-stage error on its own line.
func describe(err error) string {
	return strings.ReplaceAll(err.Error(), "; ", "\n  ")
}
