// ABOUTME: Interactive search screen: a text input wired to the debounced search
// ABOUTME: Every keystroke lands in SetQuery; results arrive through the feed

package tui

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lmmcdev/compliance-frontend-sub001/search"
)

// searchChromeLines is the rows the search screen spends on everything that
// is not the result payload.
const searchChromeLines = 7

// searchStateMsg delivers a search state transition to the program.
type searchStateMsg struct {
	state search.State[json.RawMessage]
}

// Search is the interactive search screen. Keystrokes flow into the
// debounced search immediately; fetching happens on its clock, not the
// program's, so the view only ever renders states the data layer published.
type Search struct {
	search    *search.Search[json.RawMessage]
	feed      *Feed[search.State[json.RawMessage]]
	path      string
	minLength int

	input  textinput.Model
	state  search.State[json.RawMessage]
	width  int
	height int
}

// NewSearch builds the search screen around an already-constructed search.
func NewSearch(s *search.Search[json.RawMessage], feed *Feed[search.State[json.RawMessage]], path string, minLength int) *Search {
	ti := textinput.New()
	ti.Placeholder = "type to search"
	ti.CharLimit = 256
	ti.Width = 60
	ti.Focus()

	if minLength <= 0 {
		minLength = search.DefaultMinLength
	}

	return &Search{
		search:    s,
		feed:      feed,
		path:      path,
		minLength: minLength,
		input:     ti,
	}
}

// waitForSearchState re-arms after every delivery, one message per state.
func waitForSearchState(feed *Feed[search.State[json.RawMessage]]) tea.Cmd {
	return func() tea.Msg {
		return searchStateMsg{state: feed.Recv()}
	}
}

// Init implements tea.Model
func (m *Search) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForSearchState(m.feed))
}

// Update implements tea.Model
func (m *Search) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}
		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if value := m.input.Value(); value != before {
			m.search.SetQuery(value)
		}
		return m, cmd

	case searchStateMsg:
		m.state = msg.state
		return m, waitForSearchState(m.feed)
	}

	return m, nil
}

// View implements tea.Model
func (m *Search) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Search " + m.path))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(m.viewResult())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("esc to quit"))

	return b.String()
}

func (m *Search) viewResult() string {
	result := m.state.Result

	switch {
	case m.input.Value() != "" && utf8.RuneCountInString(m.input.Value()) < m.minLength:
		return mutedStyle.Render(fmt.Sprintf("Type at least %d characters", m.minLength))
	case result.Loading:
		return mutedStyle.Render("Searching...")
	case result.Err != nil:
		return errorStyle.Render("Error: " + result.Err.Error())
	case result.Data != nil:
		body := renderBody(*result.Data, bodyBudget(m.height, searchChromeLines))
		if result.Refreshing {
			return warnStyle.Render("Refreshing...") + "\n" + body
		}
		return body
	default:
		return mutedStyle.Render("Start typing to search")
	}
}
