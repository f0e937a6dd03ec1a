// Package tui is the interactive front end: a menu, the import wizard that
// walks a pipeline.Session through its stages, and a collection backup
// screen.
package tui

import (
	"fmt"

	"crmimport/internal/backup"
	"crmimport/internal/dedup"
	"crmimport/internal/importer"
	"crmimport/internal/mapping"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type Screen int

const (
	MenuScreen Screen = iota
	ImportScreen
	BackupScreen
)

// Options wires the screens to the outside world.
type Options struct {
	Submitter importer.Submitter
	ChunkSize int
	// Backup is nil when no database is reachable; the backup screen and
	// pre-import snapshots are then unavailable.
	Backup     *backup.Service
	Collection string
	// BackupDir, when set, snapshots Collection before each import.
	BackupDir string
	// Profile, when set, replaces the suggested mapping of every upload.
	Profile *mapping.FieldMapping
	// Tie settles duplicates of equal completeness.
	Tie dedup.TieRule
	// Target names where rows go, for display only.
	Target string
}

// busy is implemented by screens that own the keyboard for a while, such
// as a text input or a running import.
type busy interface {
	Busy() bool
}

type Model struct {
	currentScreen Screen
	menuModel     *MenuModel
	importModel   *ImportModel
	backupModel   *BackupModel
	err           error
	quitting      bool
	width         int
	height        int
}

func NewModel(opts Options) Model {
	return Model{
		currentScreen: MenuScreen,
		menuModel:     NewMenuModel(opts.Backup != nil),
		importModel:   NewImportModel(opts),
		backupModel:   NewBackupModel(opts.Backup, opts.Collection),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) active() tea.Model {
	switch m.currentScreen {
	case ImportScreen:
		return m.importModel
	case BackupScreen:
		return m.backupModel
	}
	return m.menuModel
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.menuModel.SetSize(msg.Width, msg.Height)
		m.importModel.SetSize(msg.Width, msg.Height)
		m.backupModel.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		if b, ok := m.active().(busy); ok && b.Busy() {
			break
		}
		switch msg.String() {
		case "q":
			if m.currentScreen == MenuScreen {
				m.quitting = true
				return m, tea.Quit
			}
		case "esc":
			if m.currentScreen != MenuScreen {
				m.currentScreen = MenuScreen
				m.err = nil
				return m, nil
			}
		}

	case ScreenChangeMsg:
		m.currentScreen = msg.Screen
		m.err = nil
		if msg.Screen == ImportScreen {
			return m, m.importModel.Init()
		}
		return m, nil

	case ErrorMsg:
		m.err = msg.Err
		return m, nil
	}

	var cmd tea.Cmd
	switch m.currentScreen {
	case MenuScreen:
		_, cmd = m.menuModel.Update(msg)
	case ImportScreen:
		_, cmd = m.importModel.Update(msg)
	case BackupScreen:
		_, cmd = m.backupModel.Update(msg)
	}
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return "Bye.\n"
	}

	content := m.active().View()
	if m.err != nil {
		content = lipgloss.JoinVertical(lipgloss.Left, content, errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}
	return content
}

type ScreenChangeMsg struct {
	Screen Screen
}

type ErrorMsg struct {
	Err error
}

func ChangeScreen(screen Screen) tea.Cmd {
	return func() tea.Msg {
		return ScreenChangeMsg{Screen: screen}
	}
}

func ShowError(err error) tea.Cmd {
	return func() tea.Msg {
		return ErrorMsg{Err: err}
	}
}
