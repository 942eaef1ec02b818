package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/kdimtricp/homecam/internal/logging"
)

// tableView is one CLI listing. Numeric holds the zero-based columns that
// are right aligned.
type tableView struct {
	Title   string
	Headers []string
	Rows    [][]string
	Numeric []int
	Footer  string
}

// printTable writes v to w with rounded borders on a terminal and plain
// ASCII borders otherwise, so piped output stays greppable.
func printTable(w io.Writer, v tableView) {
	out := v.render(logging.IsTerminal(w))
	if out != "" {
		fmt.Fprintln(w, out)
	}
}

func (v tableView) render(terminal bool) string {
	columns := len(v.Headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	if terminal {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleDefault)
	}
	// Labels are case-sensitive names; print them as given.
	tw.Style().Format.Header = text.FormatDefault
	tw.Style().Format.Footer = text.FormatDefault
	if v.Title != "" {
		tw.SetTitle(v.Title)
	}

	header := make(table.Row, columns)
	for i, h := range v.Headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range v.Rows {
		r := make(table.Row, columns)
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	if v.Footer != "" {
		footer := make(table.Row, columns)
		footer[0] = v.Footer
		for i := 1; i < columns; i++ {
			footer[i] = ""
		}
		tw.AppendFooter(footer)
	}

	configs := make([]table.ColumnConfig, columns)
	for i := range configs {
		align := text.AlignLeft
		if slices.Contains(v.Numeric, i) {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: align}
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
