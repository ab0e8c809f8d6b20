package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// statusKind selects the badge and color of one status row.
type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

func (k statusKind) badge() string {
	switch k {
	case statusOK:
		return "[ ok ]"
	case statusWarn:
		return "[warn]"
	case statusError:
		return "[fail]"
	default:
		return "[info]"
	}
}

func (k statusKind) color() string {
	switch k {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	default:
		return ansiCyan
	}
}

// statusLine writes one badged status row. Only the badge carries color so
// the label and message stay legible on any terminal background.
func statusLine(out io.Writer, kind statusKind, label, message string, colorize bool) {
	badge := kind.badge()
	if colorize {
		badge = kind.color() + badge + ansiReset
	}
	if message == "" {
		fmt.Fprintf(out, "  %s %s\n", badge, label)
		return
	}
	fmt.Fprintf(out, "  %s %-16s %s\n", badge, label, message)
}

// sectionHeader writes a bold section title preceded by a blank line.
func sectionHeader(out io.Writer, title string, colorize bool) {
	if colorize {
		title = ansiBold + title + ansiReset
	}
	fmt.Fprintf(out, "\n%s\n", title)
}

// newTable builds a table writer mirroring its render to out. Callers
// append their own rows and call Render.
func newTable(out io.Writer, header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}

// rightAlign right-aligns the given 1-based columns. Headers stay
// left-aligned.
func rightAlign(tw table.Writer, columns ...int) {
	configs := make([]table.ColumnConfig, 0, len(columns))
	for _, number := range columns {
		configs = append(configs, table.ColumnConfig{
			Number:      number,
			Align:       text.AlignRight,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)
}

// colorEnabled reports whether out is an interactive terminal. NO_COLOR in
// the environment always wins.
func colorEnabled(out io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
