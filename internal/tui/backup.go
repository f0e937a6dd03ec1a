package tui

import (
	"context"
	"fmt"
	"strings"

	"crmimport/internal/backup"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type BackupState int

const (
	BackupInputState BackupState = iota
	BackupCollectionSelectState
	BackupProgressState
	BackupResultState
)

var backupFormats = []string{"bson", "json"}

type BackupModel struct {
	service *backup.Service

	state           BackupState
	collectionInput textinput.Model
	outputDirInput  textinput.Model
	focusedInput    int
	formatSelection int

	collections  []string
	selectedColl int

	snapshot *backup.Snapshot
	err      error
	width    int
	height   int
}

type backupDoneMsg struct {
	snapshot *backup.Snapshot
	err      error
}

type collectionsMsg struct {
	names []string
	err   error
}

func NewBackupModel(service *backup.Service, collection string) *BackupModel {
	collectionInput := textinput.New()
	collectionInput.Placeholder = "contacts"
	collectionInput.SetValue(collection)
	collectionInput.Focus()

	outputDirInput := textinput.New()
	outputDirInput.Placeholder = "./backups"
	outputDirInput.SetValue("./backups")

	return &BackupModel{
		service:         service,
		collectionInput: collectionInput,
		outputDirInput:  outputDirInput,
	}
}

func (m *BackupModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *BackupModel) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Busy keeps the root from leaving while a snapshot is being written.
func (m *BackupModel) Busy() bool {
	return m.state == BackupProgressState || m.state == BackupCollectionSelectState
}

func (m *BackupModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case collectionsMsg:
		if msg.err != nil {
			return m, ShowError(msg.err)
		}
		m.collections = msg.names
		m.selectedColl = 0
		m.state = BackupCollectionSelectState
		return m, nil

	case backupDoneMsg:
		m.snapshot, m.err = msg.snapshot, msg.err
		m.state = BackupResultState
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case BackupInputState:
			return m.updateInputState(msg)
		case BackupCollectionSelectState:
			return m.updateCollectionSelectState(msg)
		case BackupResultState:
			if msg.String() == "enter" || msg.String() == " " {
				m.state = BackupInputState
				m.snapshot, m.err = nil, nil
			}
		}
	}
	return m, nil
}

func (m *BackupModel) updateInputState(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab", "down", "shift+tab", "up":
		m.focusedInput = 1 - m.focusedInput
		if m.focusedInput == 0 {
			m.outputDirInput.Blur()
			return m, m.collectionInput.Focus()
		}
		m.collectionInput.Blur()
		return m, m.outputDirInput.Focus()
	case "ctrl+f":
		m.formatSelection = (m.formatSelection + 1) % len(backupFormats)
		return m, nil
	case "ctrl+l":
		return m, m.listCollections()
	case "enter":
		if m.isFormValid() {
			return m, m.startBackup()
		}
		return m, nil
	}

	var cmd tea.Cmd
	if m.focusedInput == 0 {
		m.collectionInput, cmd = m.collectionInput.Update(msg)
	} else {
		m.outputDirInput, cmd = m.outputDirInput.Update(msg)
	}
	return m, cmd
}

func (m *BackupModel) updateCollectionSelectState(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.selectedColl > 0 {
			m.selectedColl--
		}
	case "down", "j":
		if m.selectedColl < len(m.collections)-1 {
			m.selectedColl++
		}
	case "enter":
		if len(m.collections) > 0 {
			m.collectionInput.SetValue(m.collections[m.selectedColl])
		}
		m.state = BackupInputState
	case "esc":
		m.state = BackupInputState
	}
	return m, nil
}

func (m *BackupModel) listCollections() tea.Cmd {
	svc := m.service
	return func() tea.Msg {
		names, err := svc.Collections(context.Background())
		return collectionsMsg{names: names, err: err}
	}
}

func (m *BackupModel) isFormValid() bool {
	return strings.TrimSpace(m.collectionInput.Value()) != "" &&
		strings.TrimSpace(m.outputDirInput.Value()) != ""
}

func (m *BackupModel) startBackup() tea.Cmd {
	m.state = BackupProgressState
	svc := m.service
	collection := strings.TrimSpace(m.collectionInput.Value())
	dir := strings.TrimSpace(m.outputDirInput.Value())
	format := backupFormats[m.formatSelection]
	return func() tea.Msg {
		snap, err := svc.BackupCollection(context.Background(), collection, dir, format)
		return backupDoneMsg{snapshot: snap, err: err}
	}
}

func (m *BackupModel) View() string {
	title := titleStyle.Render("Back up contact collection")

	var body, help string
	switch m.state {
	case BackupInputState:
		body = formStyle.Render(
			labelStyle.Render("Collection:") + "\n" + m.collectionInput.View() + "\n\n" +
				labelStyle.Render("Output directory:") + "\n" + m.outputDirInput.View() + "\n\n" +
				labelStyle.Render("Format:") + " " + strings.ToUpper(backupFormats[m.formatSelection]),
		)
		help = "Tab: switch field • Ctrl+F: toggle format • Ctrl+L: list collections • Enter: back up • Esc: menu"

	case BackupCollectionSelectState:
		if len(m.collections) == 0 {
			body = warningStyle.Render("No collections found in database")
		}
		for i, coll := range m.collections {
			cursor, style := " ", menuItemStyle
			if i == m.selectedColl {
				cursor, style = ">", selectedMenuItemStyle
			}
			body += fmt.Sprintf("%s %s\n", cursor, style.Render(coll))
		}
		help = "↑/↓: navigate • Enter: select • Esc: cancel"

	case BackupProgressState:
		body = dimStyle.Render("Writing snapshot...")

	case BackupResultState:
		if m.err != nil {
			body = errorStyle.Render(fmt.Sprintf("Backup failed: %v", m.err))
		} else {
			body = successStyle.Render("Backup completed") + "\n\n" +
				fmt.Sprintf("%s %s\n%s %s\n%s %d",
					labelStyle.Render("Collection:"), m.snapshot.Collection,
					labelStyle.Render("File:"), m.snapshot.Path,
					labelStyle.Render("Documents:"), m.snapshot.Documents)
		}
		help = "Enter: another backup • Esc: menu"
	}

	return lipgloss.NewStyle().Margin(0, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, body, helpStyle.Render(help)))
}
