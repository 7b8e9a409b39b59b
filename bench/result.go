package bench

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Render writes the result to w as a table.
func (r Result) Render(w io.Writer) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"metric", "value"})
	tw.AppendRows([]table.Row{
		{"cells", r.Cells},
		{"calls", r.Calls},
		{"setters", r.Setters},
		{"commits", r.Commits},
		{"releases", r.Releases},
		{"values", r.Values},
		{"failed", r.Failed},
		{"elapsed", r.Elapsed.String()},
	})
	tw.Render()
}
