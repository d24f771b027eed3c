// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/lantern/pkg/node"
	"github.com/Thermoquad/lantern/pkg/sim"
)

const refreshInterval = 100 * time.Millisecond

// Event log entry
type eventEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// nodeItem implements list.Item
type nodeItem struct {
	report sim.Report
}

func (i nodeItem) Title() string { return i.report.Name }

func (i nodeItem) Description() string {
	return fmt.Sprintf("%s  %s", i.report.Address, i.report.State)
}

func (i nodeItem) FilterValue() string { return i.report.Name }

// simModel is the simulation viewer
type simModel struct {
	net        *sim.Network
	layoutName string
	nodes      list.Model
	reports    []sim.Report
	events     []eventEntry
	maxEvents  int
	width      int
	height     int
	quitting   bool
}

// Messages
type simTickMsg time.Time
type simEventMsg string

// eventWriter feeds log lines into the viewer's event box
type eventWriter struct {
	program *tea.Program
}

func (w eventWriter) Write(p []byte) (int, error) {
	w.program.Send(simEventMsg(strings.TrimSpace(string(p))))
	return len(p), nil
}

func initialSimModel(net *sim.Network, layoutName string) simModel {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	nodes := list.New([]list.Item{}, delegate, 28, 10)
	nodes.Title = "Beacons"
	nodes.SetShowStatusBar(false)
	nodes.SetShowHelp(false)
	nodes.SetFilteringEnabled(false)

	m := simModel{
		net:        net,
		layoutName: layoutName,
		nodes:      nodes,
		maxEvents:  100,
		width:      80,
		height:     24,
	}
	m.refresh()
	return m
}

func (m simModel) Init() tea.Cmd {
	return tea.Batch(
		simTickCmd(),
		tea.EnterAltScreen,
	)
}

func simTickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return simTickMsg(t)
	})
}

func (m simModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "f":
			m.press("fire", m.net.PressFire)
			return m, nil
		case "r":
			m.press("reset", m.net.PressReset)
			return m, nil
		case "e":
			m.press("exit toggle", m.net.ToggleExit)
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		listHeight := m.height - 12
		if listHeight < 5 {
			listHeight = 5
		}
		m.nodes.SetSize(28, listHeight)
		return m, nil

	case simTickMsg:
		m.refresh()
		return m, simTickCmd()

	case simEventMsg:
		m.addEvent(string(msg), strings.Contains(string(msg), "WRN") || strings.Contains(string(msg), "ERR"))
		return m, nil
	}

	var cmd tea.Cmd
	m.nodes, cmd = m.nodes.Update(msg)
	return m, cmd
}

func (m *simModel) press(what string, fn func(string) error) {
	item, ok := m.nodes.SelectedItem().(nodeItem)
	if !ok {
		return
	}
	if err := fn(item.report.Name); err != nil {
		m.addEvent(err.Error(), true)
		return
	}
	m.addEvent(fmt.Sprintf("%s: %s", item.report.Name, what), false)
}

func (m *simModel) refresh() {
	m.reports = m.net.Reports()
	items := make([]list.Item, len(m.reports))
	for i, r := range m.reports {
		items[i] = nodeItem{report: r}
	}
	m.nodes.SetItems(items)
}

func (m *simModel) addEvent(message string, isError bool) {
	m.events = append(m.events, eventEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	fireStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	noteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// stateStyle colours a state name
func stateStyle(state string) lipgloss.Style {
	switch state {
	case node.StateFire.String():
		return fireStyle
	case node.StateConfig.String():
		return noteStyle
	default:
		return valueStyle
	}
}

// lampStyle renders an indicator colour as a coloured block
func lampStyle(c node.Color) string {
	if c == node.ColorOff {
		return headerStyle.Render("○")
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fmt.Sprintf("#%06x", uint32(c)))).Render("●")
}

func orNone(v []string) string {
	if len(v) == 0 {
		return "none"
	}
	return strings.Join(v, " ")
}

func (m simModel) details(r sim.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s   %s %s\n",
		labelStyle.Render("Address:"), r.Address,
		labelStyle.Render("State:"), stateStyle(r.State).Render(r.State))

	for ch, e := range r.Edges {
		peer := e
		if peer == "" {
			peer = headerStyle.Render("unverified")
		}
		fmt.Fprintf(&b, "%s %s %s  pending=%d\n",
			labelStyle.Render(fmt.Sprintf("ch%d:", ch)), lampStyle(node.Color(r.Colors[ch])), peer, r.Pending[ch])
	}

	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Known:"), orNone(r.Known))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Exits:"), orNone(r.Exits))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Burning:"), fireStyle.Render(orNone(r.Burning)))
	path := orNone(r.Path)
	if r.PulseOn {
		path += " " + noteStyle.Render("(pulse)")
	}
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Path:"), path)
	fmt.Fprintf(&b, "%s collisions=%d capacity=%d suppressed=%d held_off=%d unknown=%d\n",
		labelStyle.Render("Stats:"), r.Stats.Collisions, r.Stats.CapacityErrors,
		r.Stats.Suppressed, r.Stats.HeldOff, r.Stats.Unknown)

	if matrix, ok := m.net.Topology(r.Name); ok && len(r.Known) > 0 {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("Topology:"))
		b.WriteString("\n")
		b.WriteString(matrix.Format(len(r.Known)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m simModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("LANTERN - SIMULATION"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Layout: %s | Elapsed: %s | f fire  r reset  e exit  q quit",
		m.layoutName, m.net.Elapsed().Truncate(time.Millisecond))))
	s.WriteString("\n\n")

	detail := headerStyle.Render("(no beacon selected)")
	if item, ok := m.nodes.SelectedItem().(nodeItem); ok {
		detail = m.details(item.report)
	}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.nodes.View(),
		boxStyle.Render(detail),
	))
	s.WriteString("\n\n")

	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - lipgloss.Height(s.String()) - 3
	if logHeight < 3 {
		logHeight = 3
	}
	startIdx := len(m.events) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	var log strings.Builder
	if len(m.events) == 0 {
		log.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, entry := range m.events[startIdx:] {
		ts := headerStyle.Render(entry.timestamp.Format("15:04:05.000"))
		if entry.isError {
			log.WriteString(fmt.Sprintf("%s %s\n", ts, fireStyle.Render("✗ "+entry.message)))
		} else {
			log.WriteString(fmt.Sprintf("%s %s\n", ts, noteStyle.Render("ℹ "+entry.message)))
		}
	}

	width := m.width - 4
	if width < 20 {
		width = 20
	}
	s.WriteString(boxStyle.Width(width).Render(strings.TrimRight(log.String(), "\n")))
	return s.String()
}
