// Package dashboard is the terminal view of a running daemon: active
// sessions with their countdowns and the analytics summary.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	daemondto "focusguard/internal/modules/daemon/dto"
	sessiondto "focusguard/internal/modules/session/dto"
	"focusguard/internal/ui/theme"
)

const (
	pollInterval = 2 * time.Second
	callTimeout  = 3 * time.Second
)

type Port interface {
	Status(ctx context.Context) (sessiondto.Status, error)
	Summary(ctx context.Context) (daemondto.SummaryOutput, error)
}

type snapshotMsg struct {
	status  sessiondto.Status
	summary daemondto.SummaryOutput
	err     error
	at      time.Time
}

type tickMsg time.Time

type keyMap struct {
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Refresh, k.Help, k.Quit}}
}

var keys = keyMap{
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type Model struct {
	port    Port
	now     func() time.Time
	help    help.Model
	spinner spinner.Model

	status  sessiondto.Status
	summary daemondto.SummaryOutput
	err     error
	loaded  bool
	fetched time.Time
	width   int
}

func NewModel(port Port) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Peach)
	return Model{port: port, now: time.Now, help: help.New(), spinner: sp}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(), m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) fetchCmd() tea.Cmd {
	port := m.port
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		status, err := port.Status(ctx)
		if err != nil {
			return snapshotMsg{err: err, at: time.Now()}
		}
		summary, err := port.Summary(ctx)
		return snapshotMsg{status: status, summary: summary, err: err, at: time.Now()}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Refresh):
			return m, m.fetchCmd()
		case key.Matches(msg, keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
		return m, nil
	case tickMsg:
		return m, tea.Batch(m.fetchCmd(), tick())
	case snapshotMsg:
		m.fetched = msg.at
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.summary = msg.summary
			m.loaded = true
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(theme.Title.Render("focusguard"))
	if !m.fetched.IsZero() {
		b.WriteString(theme.Muted.Render("  updated " + m.fetched.Format("15:04:05")))
	}
	b.WriteString("\n\n")

	switch {
	case m.err != nil && !m.loaded:
		b.WriteString(theme.Hot.Render("daemon unreachable: " + m.err.Error()))
	case !m.loaded:
		b.WriteString(m.spinner.View() + " loading")
	default:
		if m.err != nil {
			b.WriteString(theme.Hot.Render("last refresh failed: "+m.err.Error()) + "\n\n")
		}
		sessions := theme.PaneActive.Render(m.renderSessions())
		summary := theme.Pane.Render(m.renderSummary())
		if m.width > 0 && m.width < 90 {
			b.WriteString(lipgloss.JoinVertical(lipgloss.Left, sessions, summary))
		} else {
			b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, sessions, " ", summary))
		}
	}
	b.WriteString("\n\n" + m.help.View(keys))
	return theme.App.Render(b.String())
}

func (m Model) renderSessions() string {
	var b strings.Builder
	b.WriteString(theme.Title.Render("Active sessions") + "\n")
	if len(m.status.ActiveSessions) == 0 {
		b.WriteString(theme.Muted.Render("no intention is running"))
		return b.String()
	}
	now := m.now().UnixMilli()
	for _, s := range m.status.ActiveSessions {
		remaining := s.Remaining(now)
		fraction := 0.0
		if s.DurationMs > 0 {
			fraction = float64(remaining) / float64(s.DurationMs)
		}
		fmt.Fprintf(&b, "tab %-5d %-10s %s  %s\n",
			s.TabID,
			s.Site,
			theme.Remaining(fraction).Render(formatCountdown(remaining)),
			theme.Muted.Render(truncate(s.Intention, 40)),
		)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderSummary() string {
	var b strings.Builder
	b.WriteString(theme.Title.Render("Summary") + "\n")
	fmt.Fprintf(&b, "sessions %d  reflections %d  activities %d\n",
		m.summary.TotalSessions, m.summary.TotalReflections, m.summary.TotalActivities)
	b.WriteString("intention score " + theme.Score(m.summary.IntentionScore).Render(fmt.Sprintf("%d", m.summary.IntentionScore)) + "\n")

	sites := make([]string, 0, len(m.summary.TimeSpentMs))
	var longest int64
	for site, ms := range m.summary.TimeSpentMs {
		sites = append(sites, site)
		if ms > longest {
			longest = ms
		}
	}
	sort.Strings(sites)
	for _, site := range sites {
		ms := m.summary.TimeSpentMs[site]
		fmt.Fprintf(&b, "%-10s %s %d min\n", site, theme.Bar.Render(bar(ms, longest, 20)), (ms+30_000)/60_000)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCountdown(ms int64) string {
	if ms <= 0 {
		return "00:00"
	}
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func bar(value, longest int64, width int) string {
	if longest <= 0 || value <= 0 {
		return strings.Repeat("·", width)
	}
	filled := int(value * int64(width) / longest)
	if filled < 1 {
		filled = 1
	}
	return strings.Repeat("█", filled) + strings.Repeat("·", width-filled)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
