package tui

import (
	"fmt"
	"slices"
	"strings"

	"crmimport/internal/edits"
	"crmimport/internal/mapping"
	"crmimport/internal/models"
	"crmimport/internal/normalize"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type pane int

const (
	fieldsPane pane = iota
	rowsPane
)

// fieldLine is one selectable line of the mapping pane. part is "first"
// or "last" for the halves of a split name.
type fieldLine struct {
	field models.Field
	part  string
}

func (l fieldLine) label() string {
	switch l.part {
	case "first":
		return "Name (first)"
	case "last":
		return "Name (last)"
	}
	return l.field.Label()
}

func (l fieldLine) column(m mapping.FieldMapping) string {
	switch {
	case l.part == "first":
		return m.FirstName
	case l.part == "last":
		return m.LastName
	case l.field == models.FieldNotes:
		return strings.Join(m.Notes, " + ")
	}
	return m.Column(l.field)
}

func (l fieldLine) bind(m *mapping.FieldMapping, column string) error {
	switch l.part {
	case "first":
		return m.SetSplitName(column, m.LastName)
	case "last":
		return m.SetSplitName(m.FirstName, column)
	}
	if l.field == models.FieldNotes {
		if column == "" {
			return m.SetNotes(nil)
		}
		return m.SetNotes(toggleNote(m.Notes, column))
	}
	return m.Set(l.field, column)
}

// toggleNote adds column to the aggregated notes or takes it out.
func toggleNote(notes []string, column string) []string {
	if i := slices.Index(notes, column); i >= 0 {
		return slices.Delete(slices.Clone(notes), i, i+1)
	}
	return append(slices.Clone(notes), column)
}

func fieldLines(m mapping.FieldMapping) []fieldLine {
	var lines []fieldLine
	for _, f := range models.Fields {
		if f == models.FieldName && m.NameMode == mapping.NameModeSplit {
			lines = append(lines, fieldLine{field: f, part: "first"}, fieldLine{field: f, part: "last"})
			continue
		}
		lines = append(lines, fieldLine{field: f})
	}
	return lines
}

var rowColumns = []models.Field{models.FieldName, models.FieldEmail, models.FieldPhone, models.FieldVATNumber, models.FieldCompany}

func newRowsTable() table.Model {
	cols := []table.Column{{Title: "Row", Width: 5}, {Title: "Status", Width: 14}}
	for _, f := range rowColumns {
		cols = append(cols, table.Column{Title: f.Label(), Width: 22})
	}
	cols = append(cols, table.Column{Title: "Issues", Width: 40})

	t := table.New(table.WithColumns(cols), table.WithHeight(10))
	styles := table.DefaultStyles()
	styles.Header = styles.Header.BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).Bold(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("#000000")).Background(lipgloss.Color("#00aadd"))
	t.SetStyles(styles)
	return t
}

// refreshRows rebuilds the table from the session's current records.
func (m *ImportModel) refreshRows() {
	records := m.session.Records()
	rows := make([]table.Row, len(records))
	for i, rec := range records {
		row := table.Row{fmt.Sprint(rec.OriginalIndex + 1), string(rec.Status)}
		for _, f := range rowColumns {
			row = append(row, rec.Value(f))
		}
		texts := make([]string, len(rec.Messages))
		for j, msg := range rec.Messages {
			texts[j] = msg.Text
		}
		rows[i] = append(row, strings.Join(texts, "; "))
	}
	m.rows.SetRows(rows)
	if c := m.rows.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.rows.SetCursor(len(rows) - 1)
	}
}

func (m *ImportModel) updateMapping(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	wf := m.session.Workflow()
	switch wf.State() {
	case edits.Editing:
		return m.updateEditing(msg)
	case edits.PendingConfirmation:
		switch msg.String() {
		case "y", "enter":
			if err := wf.Confirm(); err != nil {
				m.err = err
			}
			m.refreshRows()
		case "n", "esc":
			if err := wf.Cancel(); err != nil {
				m.err = err
			}
		}
		return m, nil
	}

	switch msg.String() {
	case "tab":
		if m.pane == fieldsPane {
			m.pane = rowsPane
			m.rows.Focus()
		} else {
			m.pane = fieldsPane
			m.rows.Blur()
		}
		return m, nil
	case "n":
		if err := m.session.Advance(); err != nil {
			m.err = err
			return m, nil
		}
		m.skipOffset = 0
		return m, nil
	case "b":
		if err := m.session.Back(); err != nil {
			m.err = err
		}
		m.fileInput.Focus()
		return m, nil
	}

	if m.pane == fieldsPane {
		return m.updateFields(msg)
	}
	return m.updateRows(msg)
}

func (m *ImportModel) updateFields(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	current := m.session.Mapping()
	lines := fieldLines(current)
	m.fieldRow = min(m.fieldRow, len(lines)-1)

	switch msg.String() {
	case "up", "k":
		if m.fieldRow > 0 {
			m.fieldRow--
		}
	case "down", "j":
		if m.fieldRow < len(lines)-1 {
			m.fieldRow++
		}
	case "left", "h", "right", "l", " ":
		delta := 1
		if s := msg.String(); s == "left" || s == "h" {
			delta = -1
		}
		line := lines[m.fieldRow]
		if line.field == models.FieldNotes {
			if msg.String() == " " {
				pick := m.notePick
				m.applyMapping(func(fm *mapping.FieldMapping) error { return line.bind(fm, pick) })
			} else {
				m.notePick = m.cycleNotePick(delta)
			}
			break
		}
		next := m.cycleColumn(line.column(current), delta)
		m.applyMapping(func(fm *mapping.FieldMapping) error { return line.bind(fm, next) })
	case "s":
		mode := mapping.NameModeSplit
		if current.NameMode == mapping.NameModeSplit {
			mode = mapping.NameModeFull
		}
		m.applyMapping(func(fm *mapping.FieldMapping) error { return fm.SetNameMode(mode) })
	case "x", "delete", "backspace":
		line := lines[m.fieldRow]
		m.applyMapping(func(fm *mapping.FieldMapping) error { return line.bind(fm, "") })
	}
	return m, nil
}

// cycleColumn steps through the headers, with "unmapped" between the last
// and the first.
func (m *ImportModel) cycleColumn(current string, delta int) string {
	options := append([]string{""}, m.session.Table().Headers...)
	i := slices.Index(options, current)
	if i < 0 {
		i = 0
	}
	return options[(i+delta+len(options))%len(options)]
}

// cycleNotePick moves the notes cursor over the headers without changing
// the mapping; space then adds or removes the picked header.
func (m *ImportModel) cycleNotePick(delta int) string {
	headers := m.session.Table().Headers
	if len(headers) == 0 {
		return ""
	}
	i := slices.Index(headers, m.notePick)
	switch {
	case i >= 0:
		i = (i + delta + len(headers)) % len(headers)
	case delta > 0:
		i = 0
	default:
		i = len(headers) - 1
	}
	return headers[i]
}

func (m *ImportModel) applyMapping(fn func(*mapping.FieldMapping) error) {
	if err := m.session.UpdateMapping(fn); err != nil {
		m.err = err
		return
	}
	m.refreshRows()
}

func (m *ImportModel) updateRows(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "left", "h":
		m.editField = (m.editField - 1 + len(normalize.Sensitive)) % len(normalize.Sensitive)
		return m, nil
	case "right", "l":
		m.editField = (m.editField + 1) % len(normalize.Sensitive)
		return m, nil
	case "e", "enter":
		records := m.session.Records()
		if len(records) == 0 {
			return m, nil
		}
		cell := models.CellKey{OriginalIndex: records[m.rows.Cursor()].OriginalIndex, Field: normalize.Sensitive[m.editField]}
		if err := m.session.BeginEdit(cell); err != nil {
			m.err = err
			return m, nil
		}
		m.cellInput.SetValue(m.session.Workflow().Draft())
		m.cellInput.CursorEnd()
		return m, m.cellInput.Focus()
	}

	var cmd tea.Cmd
	m.rows, cmd = m.rows.Update(msg)
	return m, cmd
}

func (m *ImportModel) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	wf := m.session.Workflow()
	switch msg.String() {
	case "enter":
		if err := wf.Commit(m.cellInput.Value()); err != nil {
			m.err = err
		}
		m.cellInput.Blur()
		return m, nil
	case "esc":
		if err := wf.Cancel(); err != nil {
			m.err = err
		}
		m.cellInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.cellInput, cmd = m.cellInput.Update(msg)
	wf.SetDraft(m.cellInput.Value())
	return m, cmd
}

func (m *ImportModel) viewMapping() string {
	current := m.session.Mapping()
	lines := fieldLines(current)

	var fields strings.Builder
	for i, line := range lines {
		col := line.column(current)
		value := dimStyle.Render("unmapped")
		if col != "" {
			value = col
			if current.Overridden[line.field] {
				value += dimStyle.Render(" (manual)")
			}
		}
		if slices.Contains(mapping.Required, line.field) && col == "" {
			value = errorStyle.Render("required")
		}
		cursor := " "
		if m.pane == fieldsPane && i == m.fieldRow {
			cursor = ">"
		}
		fmt.Fprintf(&fields, "%s %-14s %s\n", cursor, line.label(), value)
		if line.field == models.FieldNotes && cursor == ">" && m.notePick != "" {
			mark := "add"
			if slices.Contains(current.Notes, m.notePick) {
				mark = "remove"
			}
			fmt.Fprintf(&fields, "  %-14s %s\n", "", dimStyle.Render(fmt.Sprintf("space: %s %q", mark, m.notePick)))
		}
	}
	mode := "full name column"
	if current.NameMode == mapping.NameModeSplit {
		mode = "first + last columns"
	}
	fields.WriteString(dimStyle.Render("Name from " + mode))

	counts := map[models.Status]int{}
	for _, r := range m.session.Records() {
		counts[r.Status]++
	}
	tally := fmt.Sprintf("%s %d  %s %d  %s %d  %s %d  %s %d",
		successStyle.Render("ok"), counts[models.StatusOK],
		warningStyle.Render("warning"), counts[models.StatusWarning],
		errorStyle.Render("error"), counts[models.StatusError],
		errorStyle.Render("critical"), counts[models.StatusErrorCritical],
		dimStyle.Render("empty"), counts[models.StatusSkip])

	parts := []string{
		formStyle.Render(fields.String()),
		tally,
		dimStyle.Render("Edit field: ") + labelStyle.Render(normalize.Sensitive[m.editField].Label()),
		m.rows.View(),
	}
	parts = append(parts, m.viewEdit()...)
	for _, r := range m.session.Blockers() {
		parts = append(parts, warningStyle.Render("! "+r))
	}

	help := "Tab: switch pane • ←/→: change column • s: split/full name • x: unmap • n: next • b: back"
	if m.pane == rowsPane {
		help = "Tab: switch pane • ←/→: field to edit • e/Enter: edit cell • n: next • b: back"
	}
	parts = append(parts, helpStyle.Render(help))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *ImportModel) viewEdit() []string {
	wf := m.session.Workflow()
	cell := wf.Cell()
	switch wf.State() {
	case edits.Editing:
		return []string{
			labelStyle.Render(fmt.Sprintf("Row %d %s:", cell.OriginalIndex+1, cell.Field.Label())) + " " + m.cellInput.View(),
			dimStyle.Render("Enter: review • Esc: discard"),
		}
	case edits.PendingConfirmation:
		value, _ := wf.Preview()
		return []string{
			warningStyle.Render(fmt.Sprintf("Set %s on row %d to %q?", cell.Field.Label(), cell.OriginalIndex+1, value)),
			dimStyle.Render("y/Enter: confirm • n/Esc: discard"),
		}
	}
	return nil
}
