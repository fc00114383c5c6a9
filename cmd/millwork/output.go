package main

import (
	"encoding/json"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// writeJSON prints v as indented JSON on the command's stdout for --json
// scripting consumers.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// cliTable accumulates rows for terminal output. Short rows are padded to the
// header width.
type cliTable struct {
	writer table.Writer
	width  int
	right  map[int]bool
}

func newCLITable(columns ...string) *cliTable {
	t := &cliTable{
		writer: table.NewWriter(),
		width:  len(columns),
		right:  make(map[int]bool),
	}
	t.writer.SetStyle(table.StyleRounded)
	header := make(table.Row, 0, len(columns))
	for _, column := range columns {
		header = append(header, column)
	}
	t.writer.AppendHeader(header)
	return t
}

// alignRight marks zero-based columns for right alignment, which keeps ids
// and counts scannable.
func (t *cliTable) alignRight(indexes ...int) {
	for _, index := range indexes {
		t.right[index] = true
	}
}

func (t *cliTable) addRow(cells ...string) {
	row := make(table.Row, t.width)
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
		} else {
			row[i] = ""
		}
	}
	t.writer.AppendRow(row)
}

func (t *cliTable) render() string {
	configs := make([]table.ColumnConfig, 0, t.width)
	for i := 0; i < t.width; i++ {
		align := text.AlignLeft
		if t.right[i] {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	t.writer.SetColumnConfigs(configs)
	return t.writer.Render()
}
