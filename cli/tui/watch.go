// ABOUTME: Polling screen: each committed snapshot replaces the view in place
// ABOUTME: Fetch failures are shown without discarding the last good payload

package tui

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lmmcdev/compliance-frontend-sub001/query"
)

// watchChromeLines is the rows the watch screen spends on everything that
// is not the payload.
const watchChromeLines = 5

// snapshotMsg delivers a committed poll result to the program.
type snapshotMsg struct {
	snap query.Snapshot[json.RawMessage]
}

// Watch renders a polled resource. The engine owns the polling clock; the
// screen just shows whatever snapshot was published last.
type Watch struct {
	feed     *Feed[query.Snapshot[json.RawMessage]]
	refetch  func()
	path     string
	interval time.Duration

	snap   query.Snapshot[json.RawMessage]
	width  int
	height int
}

// NewWatch builds the watch screen. refetch is invoked off the UI goroutine
// when the user asks for an immediate poll.
func NewWatch(path string, interval time.Duration, feed *Feed[query.Snapshot[json.RawMessage]], refetch func()) *Watch {
	return &Watch{
		feed:     feed,
		refetch:  refetch,
		path:     path,
		interval: interval,
	}
}

// waitForSnapshot re-arms after every delivery, one message per snapshot.
func waitForSnapshot(feed *Feed[query.Snapshot[json.RawMessage]]) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg{snap: feed.Recv()}
	}
}

// Init implements tea.Model
func (m *Watch) Init() tea.Cmd {
	return waitForSnapshot(m.feed)
}

// Update implements tea.Model
func (m *Watch) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "r":
			// Refetch blocks until the fetch commits, so it runs as a
			// command; the result comes back through the feed.
			return m, func() tea.Msg {
				m.refetch()
				return nil
			}
		}
		return m, nil

	case snapshotMsg:
		m.snap = msg.snap
		return m, waitForSnapshot(m.feed)
	}

	return m, nil
}

// View implements tea.Model
func (m *Watch) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Watching " + m.path))
	b.WriteString("\n")
	b.WriteString(m.viewStatus())
	b.WriteString("\n\n")
	if m.snap.Data != nil {
		b.WriteString(renderBody(*m.snap.Data, bodyBudget(m.height, watchChromeLines)))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("r to refresh now, q to quit"))

	return b.String()
}

func (m *Watch) viewStatus() string {
	switch {
	case m.snap.Err != nil:
		return errorStyle.Render("Fetch failed: " + m.snap.Err.Error())
	case m.snap.Loading || m.snap.LastFetchedAt.IsZero():
		return mutedStyle.Render("Loading...")
	default:
		status := okStyle.Render("Last updated " + m.snap.LastFetchedAt.Format("15:04:05"))
		if m.snap.Refreshing {
			status += "  " + warnStyle.Render("refreshing")
		}
		status += "  " + mutedStyle.Render(fmt.Sprintf("every %s", m.interval))
		return status
	}
}
