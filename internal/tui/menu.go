package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type menuChoice struct {
	label  string
	screen Screen
	quit   bool
}

type MenuModel struct {
	choices []menuChoice
	cursor  int
	width   int
	height  int
}

func NewMenuModel(withBackup bool) *MenuModel {
	choices := []menuChoice{{label: "Import contacts", screen: ImportScreen}}
	if withBackup {
		choices = append(choices, menuChoice{label: "Back up contact collection", screen: BackupScreen})
	}
	choices = append(choices, menuChoice{label: "Exit", quit: true})
	return &MenuModel{choices: choices}
}

func (m *MenuModel) Init() tea.Cmd {
	return nil
}

func (m *MenuModel) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *MenuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.choices)-1 {
				m.cursor++
			}
		case "enter", " ":
			choice := m.choices[m.cursor]
			if choice.quit {
				return m, tea.Quit
			}
			return m, ChangeScreen(choice.screen)
		}
	}
	return m, nil
}

func (m *MenuModel) View() string {
	title := titleStyle.Render("CRM contact import")

	var menu string
	for i, choice := range m.choices {
		cursor := " "
		label := menuItemStyle.Render(choice.label)
		if m.cursor == i {
			cursor = ">"
			label = selectedMenuItemStyle.Render(choice.label)
		}
		menu += fmt.Sprintf("%s %s\n", cursor, label)
	}

	help := helpStyle.Render("↑/↓ (or j/k) to navigate • Enter to select • q to quit")

	content := lipgloss.JoinVertical(lipgloss.Center, title, menu, help)
	if m.width > 0 {
		content = lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	return content
}
