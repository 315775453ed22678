package chattui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/palaverhq/palaver/internal/models"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	offlineStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	senderStyle  = lipgloss.NewStyle().Bold(true)
	metaStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Italic(true)
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	typingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).Italic(true)
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
)

// View implements tea.Model.
func (a *App) View() string {
	var b strings.Builder

	b.WriteString(a.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(a.renderMessages())
	b.WriteString("\n")
	b.WriteString(a.renderTypingLine())
	b.WriteString("\n")
	b.WriteString(promptStyle.Render("> ") + a.input)
	b.WriteString("\n")
	return b.String()
}

func (a *App) renderHeader() string {
	title := headerStyle.Render("#" + a.view.Channel)

	conn := a.view.Connection
	status := ""
	switch {
	case conn.Err != nil:
		status = offlineStyle.Render("  access denied, sign in again")
	case conn.Reconnecting:
		status = offlineStyle.Render("  reconnecting…")
	case !conn.Connected:
		status = metaStyle.Render("  connecting…")
	}

	roster := ""
	if n := len(a.view.OnlineUsers); n > 0 {
		names := make([]string, 0, n)
		for _, u := range a.view.OnlineUsers {
			names = append(names, u.Name)
		}
		roster = metaStyle.Render(fmt.Sprintf("  online: %s", strings.Join(names, ", ")))
	}

	more := ""
	if a.view.IsPaginating {
		more = metaStyle.Render("  loading…")
	} else if a.view.HasMoreHistory {
		more = metaStyle.Render("  pgup for older")
	}

	return title + status + roster + more
}

func (a *App) renderMessages() string {
	if len(a.view.Messages) == 0 {
		return metaStyle.Render("No messages yet. Start the conversation!")
	}

	visible := a.view.Messages
	if max := a.messageRows(); len(visible) > max {
		visible = visible[len(visible)-max:]
	}

	lines := make([]string, 0, len(visible))
	for _, m := range visible {
		lines = append(lines, a.renderMessage(m))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderMessage(m models.Message) string {
	name := m.Sender.Name
	if name == "" {
		name = m.Sender.ID
	}
	sender := senderStyle.Copy().Foreground(lipgloss.Color(senderColor(m.Sender))).Render(name)

	text := m.Text
	if m.File != nil {
		text = strings.TrimSpace("[" + m.File.Name + "] " + text)
	}

	line := fmt.Sprintf("%s %s  %s", metaStyle.Render(m.CreatedAt.Format("15:04")), sender, text)

	switch m.Status {
	case models.StatusPending:
		line += pendingStyle.Render("  ◌ sending")
	case models.StatusFailed:
		line += failedStyle.Render("  ✗ failed")
	}

	if len(m.Reactions) > 0 {
		parts := make([]string, 0, len(m.Reactions))
		for value, entries := range m.Reactions {
			parts = append(parts, fmt.Sprintf("%s %d", value, len(entries)))
		}
		line += "  " + metaStyle.Render(strings.Join(parts, " "))
	}

	if readers := a.view.ReadBy(m.Token); len(readers) > 0 {
		line += metaStyle.Render(fmt.Sprintf("  ✓ read by %d", len(readers)))
	}
	return line
}

func (a *App) renderTypingLine() string {
	if len(a.view.TypingUsers) == 0 {
		return ""
	}
	names := make([]string, 0, len(a.view.TypingUsers))
	for _, t := range a.view.TypingUsers {
		names = append(names, t.Name)
	}
	verb := "is typing…"
	if len(names) > 1 {
		verb = "are typing…"
	}
	return typingStyle.Render(strings.Join(names, ", ") + " " + verb)
}

func (a *App) messageRows() int {
	// Header, blank, typing line, prompt, margin.
	rows := a.height - 5
	if rows < 5 {
		rows = 20
	}
	return rows
}

func senderColor(s models.Sender) string {
	if s.Color != "" {
		return s.Color
	}
	// Stable fallback palette keyed on the user id.
	palette := []string{"39", "45", "118", "178", "205", "213"}
	sum := 0
	for _, r := range s.ID {
		sum += int(r)
	}
	return palette[sum%len(palette)]
}
