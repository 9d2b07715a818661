package ui

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Output formats of list and describe commands.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// Table is a list of rows under a header.
type Table struct {
	Header []string
	Rows   [][]string
}

// Append adds a row.
func (t *Table) Append(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Render writes the table to w.
func (t *Table) Render(w io.Writer) {
	if len(t.Rows) == 0 {
		fmt.Fprintln(w, "No entities found")
		return
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)

	header := make(table.Row, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, r := range t.Rows {
		row := make(table.Row, len(r))
		for i, cell := range r {
			row[i] = cell
		}
		tw.AppendRow(row)
	}
	tw.Render()
}

// PrintTable renders t to the console output.
func (c *Console) PrintTable(t *Table) {
	t.Render(c.out)
}

// PrintJSON writes v as indented JSON.
func (c *Console) PrintJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintKeyValues renders pairs as a two-column table without a header.
func (c *Console) PrintKeyValues(pairs [][2]string) {
	tw := table.NewWriter()
	tw.SetOutputMirror(c.out)
	tw.SetStyle(table.StyleLight)
	for _, p := range pairs {
		tw.AppendRow(table.Row{p[0], p[1]})
	}
	tw.Render()
}
