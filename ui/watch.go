// Package ui implements the "-watch" live view: a bubbletea program polling
// a running daemon's RPC surface and rendering one row per tracked family,
// adapted from xtop's ui.Model tick-and-collect shape (ui/app.go) to a much
// narrower table instead of xtop's multi-page dashboard.
package ui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// pollInterval matches xtop's default 1s refresh cadence.
const pollInterval = time.Second

// entry is one family's row, decoded from the RPC sink's last_prediction
// response (connectors.lastPredictionEntry's wire shape).
type entry struct {
	AppName   string  `json:"appname"`
	Timestamp string  `json:"timestamp"`
	FamilyID  uint64  `json:"family_id"`
	Score     float32 `json:"score"`
	State     string  `json:"state"`
}

type rpcEnvelope struct {
	Result []entry `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type tickMsg time.Time

type pollResultMsg struct {
	entries []entry
	err     error
}

// Model is the bubbletea model backing -watch.
type Model struct {
	addr    string
	client  *http.Client
	entries []entry
	err     error
	width   int
}

// NewModel builds a watch Model polling the JSON-RPC surface at addr.
func NewModel(addr string) Model {
	return Model{addr: addr, client: &http.Client{Timeout: 2 * time.Second}}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), poll(m.addr, m.client))
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func poll(addr string, client *http.Client) tea.Cmd {
	return func() tea.Msg {
		body := bytes.NewBufferString(`{"jsonrpc":"2.0","method":"last_prediction","id":"1"}`)
		resp, err := client.Post(fmt.Sprintf("http://%s/", addr), "application/json", body)
		if err != nil {
			return pollResultMsg{err: err}
		}
		defer resp.Body.Close()

		var env rpcEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return pollResultMsg{err: err}
		}
		if env.Error != nil {
			return pollResultMsg{err: fmt.Errorf("rpc: %s", env.Error.Message)}
		}
		sort.Slice(env.Result, func(i, j int) bool { return env.Result[i].FamilyID < env.Result[j].FamilyID })
		return pollResultMsg{entries: env.Result}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		return m, poll(m.addr, m.client)
	case pollResultMsg:
		m.entries = msg.entries
		m.err = msg.err
	}
	return m, nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	killedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	suspStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	runStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func stateStyle(state string) lipgloss.Style {
	switch state {
	case "Killed":
		return killedStyle
	case "Suspended":
		return suspStyle
	default:
		return runStyle
	}
}

func (m Model) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "owlyshield-predict — watching %s (q to quit)\n\n", m.addr)
	if m.err != nil {
		fmt.Fprintf(&b, "poll error: %v\n", m.err)
		return b.String()
	}
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-10s %-24s %-10s %-8s %s", "GID", "APP", "STATE", "SCORE", "LAST SEEN")))
	b.WriteString("\n")
	if len(m.entries) == 0 {
		b.WriteString("(no tracked families yet)\n")
		return b.String()
	}
	for _, e := range m.entries {
		row := fmt.Sprintf("%-10d %-24s %-10s %-8.2f %s", e.FamilyID, truncate(e.AppName, 24), e.State, e.Score, e.Timestamp)
		b.WriteString(stateStyle(e.State).Render(row))
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
