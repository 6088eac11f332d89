package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pingcap-incubator/tinydb/executor"
	"github.com/pingcap-incubator/tinydb/types"
	"github.com/stretchr/testify/assert"
)

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, &executor.ResultSet{Schema: types.NewSchema(), RowsAffected: 2})
	assert.Equal(t, "OK, 2 rows affected\n", buf.String())

	buf.Reset()
	rs := &executor.ResultSet{
		Schema: types.NewSchema(
			types.Column{Name: "a", Tp: types.TypeInt},
			types.Column{Name: "name", Tp: types.TypeText},
		),
		Rows: []types.Tuple{types.NewTuple(int64(1), "x"), types.NewTuple(int64(20), nil)},
	}
	printResult(&buf, rs)
	out := buf.String()
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	// Border, header, border, two rows, border, count.
	assert.Len(t, lines, 7)
	assert.Contains(t, lines[1], "name")
	assert.Contains(t, lines[3], "x")
	assert.Contains(t, lines[4], "20")
	assert.Contains(t, lines[4], "NULL")
	assert.Equal(t, "2 rows in set", lines[6])

	// An empty result still prints its header.
	buf.Reset()
	printResult(&buf, &executor.ResultSet{Schema: rs.Schema})
	assert.Contains(t, buf.String(), "name")
	assert.True(t, strings.HasSuffix(buf.String(), "0 rows in set\n"))
}
