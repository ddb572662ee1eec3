// Package tui provides terminal UI components for the treasury agent
// using Bubble Tea. It currently includes a document dashboard showing
// the number of tracked documents and one document's commands with their
// status, result, and last update.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/docwallet-hq/agent/pkg/model"
	"github.com/docwallet-hq/agent/pkg/repository"
)

// ------------------------------------------------------------------
// Styles
// ------------------------------------------------------------------

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7B68EE")).
			PaddingLeft(1).
			PaddingRight(1)

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB347"))

	approvedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF88"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF4444"))

	rejectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999"))

	cellStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			PaddingRight(1)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#555555")).
			Padding(0, 1)

	summaryPending = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFB347"))

	summaryDone = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FF88"))
)

// ------------------------------------------------------------------
// Messages
// ------------------------------------------------------------------

type tickMsg time.Time
type commandsMsg []*model.Command
type docsMsg []*model.Document

// ------------------------------------------------------------------
// Model
// ------------------------------------------------------------------

// DocDashboard is the Bubble Tea model for the document status TUI.
type DocDashboard struct {
	repo     repository.Repository
	docID    model.DocumentID
	docs     []*model.Document
	commands []*model.Command
	err      error
	width    int
	height   int
	quitting bool
}

// NewDocDashboard creates a dashboard model scoped to one tracked
// document. With an empty docID no commands are listed and the dashboard
// shows only the tracked-document count.
func NewDocDashboard(repo repository.Repository, docID model.DocumentID) DocDashboard {
	return DocDashboard{
		repo:  repo,
		docID: docID,
		width: 80, height: 24,
	}
}

func (m DocDashboard) Init() tea.Cmd {
	return tea.Batch(m.fetchDocs, m.fetchCommands, tickCmd())
}

func (m DocDashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, tea.Batch(m.fetchDocs, m.fetchCommands)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetchDocs, m.fetchCommands, tickCmd())

	case docsMsg:
		m.docs = []*model.Document(msg)
		return m, nil

	case commandsMsg:
		m.commands = []*model.Command(msg)
		return m, nil
	}

	return m, nil
}

func (m DocDashboard) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Document Wallet Agent"))
	b.WriteString("\n")

	counts := summarizeStatuses(m.commands)
	summaryLine := fmt.Sprintf(
		"%s  %s  %s  %s",
		summaryPending.Render(fmt.Sprintf("● %d pending", counts[model.StatusPending])),
		approvedStyle.Render(fmt.Sprintf("◐ %d approved", counts[model.StatusApproved])),
		summaryDone.Render(fmt.Sprintf("✓ %d done", counts[model.StatusDone])),
		failedStyle.Render(fmt.Sprintf("✗ %d failed", counts[model.StatusFailed])),
	)
	b.WriteString(boxStyle.Render(fmt.Sprintf("Documents: %d  │  Commands: %d  │  %s",
		len(m.docs), len(m.commands), summaryLine)))
	b.WriteString("\n\n")

	if len(m.commands) == 0 {
		b.WriteString(footerStyle.Render("  No commands discovered yet."))
		b.WriteString("\n")
	} else {
		header := fmt.Sprintf("%-14s %-10s %-10s %-30s %s",
			headerStyle.Render("COMMAND"),
			headerStyle.Render("KIND"),
			headerStyle.Render("STATUS"),
			headerStyle.Render("RESULT"),
			headerStyle.Render("UPDATED"),
		)
		b.WriteString(header)
		b.WriteString("\n")
		b.WriteString(strings.Repeat("─", clampInt(m.width, 85)))
		b.WriteString("\n")

		for _, c := range m.commands {
			row := fmt.Sprintf("%-14s %-10s %-10s %-30s %s",
				cellStyle.Render(string(c.ID)),
				cellStyle.Render(string(c.Kind)),
				renderStatus(c.Status),
				cellStyle.Render(truncate(c.ResultText, 28)),
				cellStyle.Render(renderLastSeen(c.UpdatedAt)),
			)
			b.WriteString(row)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(footerStyle.Render(fmt.Sprintf("  [r] refresh  [q] quit  │  Updated: %s",
		time.Now().Format("15:04:05"))))

	return b.String()
}

// ------------------------------------------------------------------
// Helpers
// ------------------------------------------------------------------

func summarizeStatuses(commands []*model.Command) map[model.CommandStatus]int {
	counts := make(map[model.CommandStatus]int)
	for _, c := range commands {
		counts[c.Status]++
	}
	return counts
}

func renderStatus(status model.CommandStatus) string {
	switch status {
	case model.StatusPending:
		return pendingStyle.Render("● pending")
	case model.StatusApproved, model.StatusExecuting:
		return approvedStyle.Render("◐ " + string(status))
	case model.StatusDone:
		return doneStyle.Render("✓ done")
	case model.StatusFailed:
		return failedStyle.Render("✗ failed")
	case model.StatusInvalid:
		return failedStyle.Render("! invalid")
	case model.StatusRejected, model.StatusExpired:
		return rejectedStyle.Render(string(status))
	default:
		return cellStyle.Render(string(status))
	}
}

func renderLastSeen(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	if d < time.Second {
		return "just now"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}

func truncate(s string, maxLen int) string {
	if s == "" {
		return "-"
	}
	if len(s) > maxLen {
		return s[:maxLen-1] + "…"
	}
	return s
}

func tickCmd() tea.Cmd {
	return tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m DocDashboard) fetchDocs() tea.Msg {
	docs, err := m.repo.ListDocuments(context.Background())
	if err != nil {
		return docsMsg(nil)
	}
	return docsMsg(docs)
}

func (m DocDashboard) fetchCommands() tea.Msg {
	if m.docID == "" {
		return commandsMsg(nil)
	}
	commands, err := m.repo.ListCommandsByDocument(context.Background(), m.docID)
	if err != nil {
		return commandsMsg(nil)
	}
	return commandsMsg(commands)
}

func clampInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// RunDocDashboard starts the Bubble Tea document dashboard.
func RunDocDashboard(repo repository.Repository, docID model.DocumentID) error {
	dashboard := NewDocDashboard(repo, docID)
	p := tea.NewProgram(dashboard, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
