package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wasmhive/hive/host"
	"github.com/wasmhive/hive/store"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	moduleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	trapStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type viewState int

const (
	viewModules viewState = iota
	viewColumns
	viewInputTicks
)

type inspectorModel struct {
	err      error
	h        *host.Host
	plugins  map[string]string
	outcomes []host.TickOutcome
	ticksIn  textinput.Model
	selected int
	tick     uint64
	state    viewState
}

type loadedMsg struct {
	err error
	h   *host.Host
}

type tickedMsg struct {
	outcomes []host.TickOutcome
	tick     uint64
}

func newInspectorModel(plugins map[string]string) *inspectorModel {
	ti := textinput.New()
	ti.Placeholder = "ticks"
	ti.Prompt = "run: "
	ti.Width = 10
	return &inspectorModel{
		plugins: plugins,
		ticksIn: ti,
		state:   viewModules,
	}
}

func (m *inspectorModel) Init() tea.Cmd {
	return m.loadPlugins
}

func (m *inspectorModel) loadPlugins() tea.Msg {
	ctx := context.Background()

	cfg, err := host.ConfigFromEnv()
	if err != nil {
		return loadedMsg{err: err}
	}
	h, err := host.New(ctx, cfg)
	if err != nil {
		return loadedMsg{err: err}
	}

	names := make([]string, 0, len(m.plugins))
	for name := range m.plugins {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := os.ReadFile(m.plugins[name])
		if err != nil {
			h.Close(ctx)
			return loadedMsg{err: fmt.Errorf("read %s: %w", name, err)}
		}
		if _, err := h.Load(ctx, name, data); err != nil {
			h.Close(ctx)
			return loadedMsg{err: fmt.Errorf("load %s: %w", name, err)}
		}
	}

	return loadedMsg{h: h}
}

func (m *inspectorModel) step(n int) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		var report host.TickReport
		for i := 0; i < n; i++ {
			report = m.h.Scheduler().Run(ctx)
		}
		// Copy out: the report's buffer is reused by the scheduler.
		outcomes := make([]host.TickOutcome, len(report.Outcomes))
		copy(outcomes, report.Outcomes)
		return tickedMsg{tick: report.Tick, outcomes: outcomes}
	}
}

func (m *inspectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == viewInputTicks {
			switch msg.String() {
			case "enter":
				n, err := strconv.Atoi(m.ticksIn.Value())
				m.state = viewModules
				m.ticksIn.Blur()
				if err == nil && n > 0 && m.h != nil {
					return m, m.step(n)
				}
				return m, nil
			case "esc":
				m.state = viewModules
				m.ticksIn.Blur()
				return m, nil
			}
			var cmd tea.Cmd
			m.ticksIn, cmd = m.ticksIn.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			if m.h != nil {
				m.h.Close(context.Background())
			}
			return m, tea.Quit

		case "tab":
			if m.state == viewModules {
				m.state = viewColumns
			} else {
				m.state = viewModules
			}
			m.selected = 0

		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.selected < m.rowCount()-1 {
				m.selected++
			}

		case " ", "enter":
			if m.h != nil {
				return m, m.step(1)
			}

		case "t":
			m.ticksIn.SetValue("")
			m.ticksIn.Focus()
			m.state = viewInputTicks
			return m, textinput.Blink
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.h = msg.h

	case tickedMsg:
		m.tick = msg.tick
		m.outcomes = msg.outcomes
	}

	return m, nil
}

func (m *inspectorModel) rowCount() int {
	if m.h == nil {
		return 0
	}
	if m.state == viewColumns {
		return len(m.h.Store().Columns())
	}
	return len(m.h.Scheduler().Instances())
}

func (m *inspectorModel) View() string {
	if m.err != nil {
		return trapStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.h == nil {
		return "Loading plugins..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Hive Inspector"))
	b.WriteString(fmt.Sprintf("  tick %d\n\n", m.tick))

	switch m.state {
	case viewModules, viewInputTicks:
		m.viewModules(&b)
	case viewColumns:
		m.viewColumns(&b)
	}

	if m.state == viewInputTicks {
		b.WriteString("\n")
		b.WriteString(m.ticksIn.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter run • esc cancel"))
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("space tick • t run n • tab view • ↑/↓ select • q quit"))
	return b.String()
}

func (m *inspectorModel) viewModules(b *strings.Builder) {
	insts := m.h.Scheduler().Instances()
	b.WriteString("Modules:\n\n")
	for i, inst := range insts {
		heap := inst.Heap()
		line := fmt.Sprintf("%-16s %-9s prio=%d heap=%d+%d",
			inst.Name(), inst.State(), inst.Priority(), heap.Offset, heap.Length)
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + line))
		} else if inst.State() == host.StateTrapped {
			b.WriteString("  " + trapStyle.Render(line))
		} else {
			b.WriteString("  " + moduleStyle.Render(line))
		}
		b.WriteString("\n")
	}
	if len(insts) == 0 {
		b.WriteString(dimStyle.Render("  (none)\n"))
	}

	if len(m.outcomes) > 0 {
		b.WriteString("\nLast pass:\n")
		for _, out := range m.outcomes {
			if out.Err != nil {
				b.WriteString("  " + trapStyle.Render(fmt.Sprintf("%s: %v", out.Module, out.Err)))
			} else {
				b.WriteString(dimStyle.Render(fmt.Sprintf("  %s: ok", out.Module)))
			}
			b.WriteString("\n")
		}
	}

	if m.selected < len(insts) {
		if err := insts[m.selected].Err(); err != nil {
			b.WriteString("\n")
			b.WriteString(trapStyle.Render(err.Error()))
			b.WriteString("\n")
		}
	}
}

func (m *inspectorModel) viewColumns(b *strings.Builder) {
	cols := m.h.Store().Columns()
	b.WriteString("Columns:\n\n")
	for i, info := range cols {
		line := fmt.Sprintf("%-16s id=%-3d base=%-8d stride=%-4d rows=%d/%d",
			m.columnName(info), info.ID, info.BaseOffset, info.Stride, info.Rows, info.Capacity)
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + moduleStyle.Render(line))
		}
		b.WriteString("\n")
	}
	if len(cols) == 0 {
		b.WriteString(dimStyle.Render("  (none)\n"))
		return
	}

	if m.selected < len(cols) {
		b.WriteString("\n")
		b.WriteString(m.hexPreview(cols[m.selected]))
	}
}

func (m *inspectorModel) columnName(info store.ColumnInfo) string {
	desc, err := m.h.Registry().Describe(info.ID)
	if err != nil {
		return "?"
	}
	return desc.Name
}

// hexPreview renders the first occupied rows of a column straight from
// the shared memory. Removals leave gaps, so the live slots need not be
// a prefix of the column.
func (m *inspectorModel) hexPreview(info store.ColumnInfo) string {
	slots, err := m.h.Store().PopulatedRows(info.ID)
	if err != nil {
		return trapStyle.Render(err.Error())
	}
	if len(slots) == 0 {
		return dimStyle.Render("(empty)")
	}
	if len(slots) > 4 {
		slots = slots[:4]
	}

	var b strings.Builder
	for _, r := range slots {
		raw, err := m.h.MemoryView(info.BaseOffset+r*info.Stride, info.Stride)
		if err != nil {
			return trapStyle.Render(err.Error())
		}
		b.WriteString(dimStyle.Render(fmt.Sprintf("row %d: % x", r, raw)))
		b.WriteString("\n")
	}
	return b.String()
}

func runInteractive(plugins map[string]string) error {
	p := tea.NewProgram(newInspectorModel(plugins), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
