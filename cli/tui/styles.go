// ABOUTME: Shared lipgloss styles for the interactive screens
// ABOUTME: Palette plus the clipped JSON body rendering search and watch both use

package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Core palette
	primary = lipgloss.Color("#7C3AED") // Purple
	green   = lipgloss.Color("#10B981") // OK
	amber   = lipgloss.Color("#F59E0B") // Refreshing
	red     = lipgloss.Color("#EF4444") // Errors
	gray    = lipgloss.Color("#6B7280") // Muted

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primary)

	okStyle = lipgloss.NewStyle().
		Foreground(green)

	warnStyle = lipgloss.NewStyle().
			Foreground(amber)

	errorStyle = lipgloss.NewStyle().
			Foreground(red).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(gray)

	helpStyle = lipgloss.NewStyle().
			Foreground(gray)
)

// defaultBodyLines bounds payload rendering before the first WindowSizeMsg.
const defaultBodyLines = 40

// bodyBudget converts the terminal height into a payload line budget,
// reserving chrome lines for the title, status, and help rows.
func bodyBudget(height, chrome int) int {
	if height <= 0 {
		return defaultBodyLines
	}
	budget := height - chrome
	if budget < 3 {
		budget = 3
	}
	return budget
}

// renderBody pretty-prints a JSON payload clipped to maxLines. Payloads that
// fail to indent are shown as-is.
func renderBody(body []byte, maxLines int) string {
	text := string(body)
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err == nil {
		text = buf.String()
	}

	lines := strings.Split(text, "\n")
	if maxLines > 0 && len(lines) > maxLines {
		clipped := len(lines) - maxLines
		lines = append(lines[:maxLines], mutedStyle.Render(fmt.Sprintf("... %d more lines", clipped)))
	}
	return strings.Join(lines, "\n")
}
