// Package main implements amldbg, a terminal debugger that attaches to a
// running acpi.Runtime: it renders the namespace tree, lets an operator
// evaluate a Method by path, and shows the live GPE/Notify event state.
// Modeled on the teacher pack's cpu.Debug bubbletea/lipgloss model
// (hejops-gone/cpu/debugger.go's Init/Update/View shape), generalized from a
// single flat register dump into a tree browser plus a side event panel.
package main

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/davecgh/go-spew/spew"

	"acpicore/acpi"
	"acpicore/object"
)

// treeRow is one flattened, currently-visible line of the namespace tree.
type treeRow struct {
	path     string
	name     string
	kind     object.Kind
	depth    int
	hasKids  bool
	expanded bool
}

// mode selects which of the debugger's two interaction surfaces is
// receiving keystrokes.
type mode int

const (
	modeBrowse mode = iota
	modeEvaluate
)

type model struct {
	rt *acpi.Runtime

	rows   []treeRow
	cursor int

	expanded map[string]bool

	focusMode mode
	input     string

	lastPath   string
	lastResult string
	lastErr    string
	lastRaw    *object.Object

	showDump bool

	gpeBlocks []string
}

// Init starts no command; newModel has already built the tree from the root
// scope. Unlike the teacher's cpu.Debug (which loads a fixed program once),
// a namespace can grow after a later LoadTable, so the tree is rebuilt on
// every refresh and expand/collapse rather than only once.
func (m model) Init() tea.Cmd {
	return nil
}

func newModel(rt *acpi.Runtime) model {
	m := model{
		rt:        rt,
		expanded:  map[string]bool{`\`: true},
		gpeBlocks: rt.GPEBlockNames(),
	}
	sort.Strings(m.gpeBlocks)
	m.rebuild()
	return m
}

func joinPath(parent, seg string) string {
	if parent == `\` {
		return `\` + seg
	}
	return parent + "." + seg
}

// rebuild walks the namespace from the root through the exported
// ForEachChild/NodeInfo client API only — amldbg knows nothing about the
// namespace package directly, keeping it a Runtime consumer like any other
// host code.
func (m *model) rebuild() {
	var rows []treeRow
	var walk func(path string, depth int)
	walk = func(path string, depth int) {
		type child struct {
			name string
			kind object.Kind
		}
		var kids []child
		_ = m.rt.ForEachChild(path, func(name string, kind object.Kind) bool {
			kids = append(kids, child{name, kind})
			return true
		})
		sort.Slice(kids, func(i, j int) bool { return kids[i].name < kids[j].name })

		for _, c := range kids {
			cp := joinPath(path, c.name)
			var grandKids bool
			_ = m.rt.ForEachChild(cp, func(string, object.Kind) bool {
				grandKids = true
				return false
			})
			rows = append(rows, treeRow{
				path:     cp,
				name:     c.name,
				kind:     c.kind,
				depth:    depth,
				hasKids:  grandKids,
				expanded: m.expanded[cp],
			})
			if grandKids && m.expanded[cp] {
				walk(cp, depth+1)
			}
		}
	}
	walk(`\`, 0)
	m.rows = rows
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.focusMode == modeEvaluate {
			return m.updateEvaluate(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}

	case "enter", " ":
		if m.cursor < len(m.rows) {
			row := m.rows[m.cursor]
			if row.hasKids {
				m.expanded[row.path] = !m.expanded[row.path]
				m.rebuild()
			} else if row.kind == object.KindMethod {
				m.focusMode = modeEvaluate
				m.input = row.path
			}
		}

	case "e":
		m.focusMode = modeEvaluate
		if m.cursor < len(m.rows) {
			m.input = m.rows[m.cursor].path
		}

	case "r":
		m.rebuild()

	case "d":
		if m.lastRaw != nil {
			m.showDump = !m.showDump
		}
	}
	return m, nil
}

func (m model) updateEvaluate(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.focusMode = modeBrowse
		m.input = ""
	case tea.KeyEnter:
		m.lastPath = m.input
		result, err := m.rt.Evaluate(m.input)
		if err != nil {
			m.lastErr = err.Error()
			m.lastResult = ""
			m.lastRaw = nil
		} else {
			m.lastErr = ""
			m.lastResult = formatResult(result)
			m.lastRaw = result
		}
		m.focusMode = modeBrowse
	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	case tea.KeyRunes:
		m.input += string(msg.Runes)
	}
	return m, nil
}

// formatResult renders an evaluated object's payload the way the debugger's
// result line shows it, destructuring by Kind since the client API returns a
// plain *object.Object rather than a Go-generic result.
func formatResult(o *object.Object) string {
	switch o.Kind() {
	case object.KindInteger:
		return fmt.Sprintf("Integer: 0x%x", o.Integer())
	case object.KindString:
		return "String: " + o.Text()
	case object.KindBuffer:
		return fmt.Sprintf("Buffer: % x", o.Bytes())
	case object.KindPackage:
		return fmt.Sprintf("Package: %d elements", len(o.Elements()))
	default:
		return o.Kind().String()
	}
}

var (
	styleSelected = lipgloss.NewStyle().Bold(true).Reverse(true)
	styleKind     = lipgloss.NewStyle().Faint(true)
	styleHeader   = lipgloss.NewStyle().Bold(true).Underline(true)
	styleError    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func (m model) renderTree() string {
	var b strings.Builder
	b.WriteString(styleHeader.Render("namespace") + "\n")
	for i, row := range m.rows {
		marker := "  "
		if row.hasKids {
			if row.expanded {
				marker = "- "
			} else {
				marker = "+ "
			}
		}
		line := strings.Repeat("  ", row.depth) + marker + row.name + " " + styleKind.Render("("+row.kind.String()+")")
		if i == m.cursor {
			line = styleSelected.Render(line)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func (m model) renderEvents() string {
	var b strings.Builder
	b.WriteString(styleHeader.Render("events") + "\n")
	fmt.Fprintf(&b, "notify queue depth: %d\n\n", m.rt.NotifyQueueDepth())

	for _, name := range m.gpeBlocks {
		snap, ok := m.rt.GPEBlockSnapshot(name)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "GPE block %s:\n", name)
		for _, g := range snap {
			fmt.Fprintf(&b, "  %02d  %-18s trigger=%v masked=%v handler=%v\n",
				g.Number, g.State, g.Trigger, g.Masked, g.HasHandler)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m model) renderFooter() string {
	if m.focusMode == modeEvaluate {
		return "evaluate> " + m.input + "_"
	}
	var b strings.Builder
	b.WriteString("j/k move  enter expand/evaluate  e evaluate  d raw dump  r refresh  q quit")
	if m.lastPath != "" {
		b.WriteString("\n")
		if m.lastErr != "" {
			b.WriteString(styleError.Render(m.lastPath + ": " + m.lastErr))
		} else {
			fmt.Fprintf(&b, "%s => %s", m.lastPath, m.lastResult)
		}
	}
	if m.showDump && m.lastRaw != nil {
		b.WriteString("\n" + spew.Sdump(m.lastRaw))
	}
	return b.String()
}

func (m model) View() string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		lipgloss.JoinHorizontal(
			lipgloss.Top,
			lipgloss.NewStyle().Width(44).Render(m.renderTree()),
			lipgloss.NewStyle().Width(44).Render(m.renderEvents()),
		),
		"",
		m.renderFooter(),
	)
}
