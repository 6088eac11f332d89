package main

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/pingcap-incubator/tinydb/executor"
)

// printResult writes rows as a table, or the affected row count for statements that return no
// columns.
func printResult(w io.Writer, rs *executor.ResultSet) {
	if rs.ColumnCount() == 0 {
		fmt.Fprintf(w, "OK, %d rows affected\n", rs.RowsAffected)
		return
	}
	values := make([][]string, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		cells := make([]string, len(row))
		for i, d := range row {
			cells[i] = d.String()
		}
		values = append(values, cells)
	}
	tb := tablewriter.NewWriter(w)
	tb.SetAutoFormatHeaders(false)
	tb.SetHeader(rs.Schema.Names())
	tb.AppendBulk(values)
	tb.Render()
	fmt.Fprintf(w, "%d rows in set\n", len(rs.Rows))
}
