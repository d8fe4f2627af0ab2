package ports

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Event is the sum type UiPort.Print accepts (§4.10): a pure sink, the
// core never queries it back for state.
type Event interface{ isEvent() }

type ResultLine struct{ Text string }
type Table struct {
	Headers []string
	Rows    [][]string
}
type TreeNode struct {
	Label    string
	Children []TreeNode
}
type Tree struct{ Root TreeNode }
type Progress struct {
	Tool    string
	Phase   string
	Percent int // -1 when indeterminate
}
type Warning struct{ Text string }
type ErrorEvent struct{ Text string }
type JsonDump struct{ Value any }
type Markdown struct{ Text string }

func (ResultLine) isEvent() {}
func (Table) isEvent()      {}
func (Tree) isEvent()       {}
func (Progress) isEvent()   {}
func (Warning) isEvent()    {}
func (ErrorEvent) isEvent() {}
func (JsonDump) isEvent()   {}
func (Markdown) isEvent()   {}

// UiPort is a pure sink for C9/C7/C8 output (§4.10). The core never
// hard-codes which implementation is wired in.
type UiPort interface {
	Print(e Event)
}

// PlainUI renders every event as unstyled text, one line at a time —
// the default for non-tty output and --no-color (§6.1).
type PlainUI struct {
	Out io.Writer
}

var _ UiPort = PlainUI{}

func (p PlainUI) Print(e Event) {
	switch ev := e.(type) {
	case ResultLine:
		fmt.Fprintln(p.Out, ev.Text)
	case Table:
		fmt.Fprintln(p.Out, strings.Join(ev.Headers, "\t"))
		for _, row := range ev.Rows {
			fmt.Fprintln(p.Out, strings.Join(row, "\t"))
		}
	case Tree:
		printPlainTree(p.Out, ev.Root, 0)
	case Progress:
		if ev.Percent < 0 {
			fmt.Fprintf(p.Out, "[%s] %s...\n", ev.Tool, ev.Phase)
		} else {
			fmt.Fprintf(p.Out, "[%s] %s %d%%\n", ev.Tool, ev.Phase, ev.Percent)
		}
	case Warning:
		fmt.Fprintln(p.Out, "warning: "+ev.Text)
	case ErrorEvent:
		fmt.Fprintln(p.Out, "error: "+ev.Text)
	case JsonDump:
		enc := json.NewEncoder(p.Out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(ev.Value)
	case Markdown:
		fmt.Fprintln(p.Out, ev.Text)
	}
}

func printPlainTree(w io.Writer, n TreeNode, depth int) {
	fmt.Fprintln(w, strings.Repeat("  ", depth)+"- "+n.Label)
	for _, c := range n.Children {
		printPlainTree(w, c, depth+1)
	}
}

// RichUI renders with lipgloss styling (tables, colored warnings), draws
// trees as indented lipgloss-styled bullet lines and passes Markdown
// through glamour, grounded on the teacher's internal/ui/table.go
// NewSearchTable pattern.
type RichUI struct {
	Out io.Writer
}

var _ UiPort = RichUI{}

var (
	colorAccent = lipgloss.Color("39")
	colorWarn   = lipgloss.Color("214")
	colorError  = lipgloss.Color("196")
	colorMuted  = lipgloss.Color("245")

	styleWarning = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	styleAccent  = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
)

func (r RichUI) Print(e Event) {
	switch ev := e.(type) {
	case ResultLine:
		fmt.Fprintln(r.Out, ev.Text)
	case Table:
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(styleMuted).
			Headers(ev.Headers...).
			Rows(ev.Rows...)
		fmt.Fprintln(r.Out, t.Render())
	case Tree:
		fmt.Fprintln(r.Out, renderRichTree(ev.Root, 0))
	case Progress:
		label := styleAccent.Render(fmt.Sprintf("[%s]", ev.Tool))
		if ev.Percent < 0 {
			fmt.Fprintf(r.Out, "%s %s...\n", label, ev.Phase)
		} else {
			fmt.Fprintf(r.Out, "%s %s %d%%\n", label, ev.Phase, ev.Percent)
		}
	case Warning:
		fmt.Fprintln(r.Out, styleWarning.Render("warning: ")+ev.Text)
	case ErrorEvent:
		fmt.Fprintln(r.Out, styleError.Render("error: ")+ev.Text)
	case JsonDump:
		raw, _ := json.MarshalIndent(ev.Value, "", "  ")
		fmt.Fprintln(r.Out, string(raw))
	case Markdown:
		out, err := glamour.Render(ev.Text, "dark")
		if err != nil {
			fmt.Fprintln(r.Out, ev.Text)
			return
		}
		fmt.Fprint(r.Out, out)
	}
}

func renderRichTree(n TreeNode, depth int) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", depth) + styleAccent.Render("•") + " " + n.Label + "\n")
	for _, c := range n.Children {
		b.WriteString(renderRichTree(c, depth+1))
	}
	return strings.TrimRight(b.String(), "\n")
}
