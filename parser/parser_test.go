package parser

import (
	"testing"

	"github.com/pingcap-incubator/tinydb/planner"
	"github.com/pingcap-incubator/tinydb/terror"
	"github.com/pingcap-incubator/tinydb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelect(t *testing.T) {
	p := New()
	q, err := p.ParseQuery("SELECT a, b AS bee FROM test WHERE c > 1 AND d IS NOT NULL ORDER BY b DESC LIMIT 2 OFFSET 1")
	require.NoError(t, err)
	sel := q.(*planner.SelectStmt)
	assert.Equal(t, "test", sel.Table)
	require.Len(t, sel.Fields, 2)
	assert.Equal(t, "a", sel.Fields[0].Expr.String())
	assert.Equal(t, "bee", sel.Fields[1].AsName)
	assert.Equal(t, "((c > 1) AND d IS NOT NULL)", sel.Where.String())
	require.Len(t, sel.OrderBy, 1)
	assert.True(t, sel.OrderBy[0].Desc)
	assert.Equal(t, &planner.LimitClause{Count: 2, Offset: 1}, sel.Limit)

	q, err = p.ParseQuery("select * from test where b between 1 and 3")
	require.NoError(t, err)
	sel = q.(*planner.SelectStmt)
	assert.Empty(t, sel.Fields)
	assert.Equal(t, "((b >= 1) AND (b <= 3))", sel.Where.String())

	q, err = p.ParseQuery("SELECT test.a FROM test WHERE -a < 0")
	require.NoError(t, err)
	assert.Equal(t, "(-(a) < 0)", q.(*planner.SelectStmt).Where.String())
}

func TestParseWrites(t *testing.T) {
	p := New()
	q, err := p.ParseQuery("INSERT INTO test (a, d) VALUES (1, 'x'), (2, NULL)")
	require.NoError(t, err)
	ins := q.(*planner.InsertStmt)
	assert.Equal(t, []string{"a", "d"}, ins.Columns)
	require.Len(t, ins.Values, 2)
	assert.Equal(t, "'x'", ins.Values[0][1].String())
	assert.Equal(t, "NULL", ins.Values[1][1].String())

	q, err = p.ParseQuery("INSERT INTO test SELECT a, b FROM other")
	require.NoError(t, err)
	assert.Equal(t, "other", q.(*planner.InsertStmt).Select.Table)

	q, err = p.ParseQuery("UPDATE test SET b = b + 1 WHERE a = 2")
	require.NoError(t, err)
	upd := q.(*planner.UpdateStmt)
	assert.Equal(t, "b", upd.Assignments[0].Column)
	assert.Equal(t, "(b + 1)", upd.Assignments[0].Expr.String())
	assert.Equal(t, "(a = 2)", upd.Where.String())

	q, err = p.ParseQuery("DELETE FROM test")
	require.NoError(t, err)
	assert.Nil(t, q.(*planner.DeleteStmt).Where)
}

func TestParseDDL(t *testing.T) {
	p := New()
	q, err := p.ParseQuery("CREATE TABLE test (a INT PRIMARY KEY, b INT NOT NULL, c INT, d TEXT)")
	require.NoError(t, err)
	ct := q.(*planner.CreateTableStmt)
	assert.Equal(t, "(a INT PRIMARY KEY, b INT NOT NULL, c INT, d TEXT)", ct.Schema.String())

	q, err = p.ParseQuery("CREATE TABLE IF NOT EXISTS t2 (a INT, b VARCHAR(10), PRIMARY KEY (a))")
	require.NoError(t, err)
	ct = q.(*planner.CreateTableStmt)
	assert.True(t, ct.IfNotExists)
	assert.True(t, ct.Schema.Columns[0].PrimaryKey)
	assert.Equal(t, types.TypeText, ct.Schema.Columns[1].Tp)

	q, err = p.ParseQuery("DROP TABLE IF EXISTS t1, t2")
	require.NoError(t, err)
	assert.Equal(t, &planner.DropTableStmt{Tables: []string{"t1", "t2"}, IfExists: true}, q)
}

func TestParseControl(t *testing.T) {
	p := New()
	for sql, want := range map[string]Control{
		"BEGIN":             ControlBegin,
		"START TRANSACTION": ControlBegin,
		"COMMIT":            ControlCommit,
		"ROLLBACK":          ControlRollback,
	} {
		stmt, err := p.Parse(sql)
		require.NoError(t, err, sql)
		assert.Equal(t, want, stmt.Control, sql)
		assert.Nil(t, stmt.Query, sql)
	}

	stmt, err := p.Parse("EXPLAIN SELECT a FROM test")
	require.NoError(t, err)
	assert.True(t, stmt.Explain)
	assert.IsType(t, &planner.SelectStmt{}, stmt.Query)

	_, err = p.ParseQuery("EXPLAIN SELECT a FROM test")
	assert.True(t, terror.Is(err, terror.UnsupportedCode))
}

func TestParseErrors(t *testing.T) {
	p := New()
	_, err := p.Parse("SELEC a FROM test")
	assert.True(t, terror.Is(err, terror.SyntaxCode))

	for _, sql := range []string{
		"SELECT a FROM t1 JOIN t2",
		"SELECT COUNT(a) FROM test",
		"SELECT a FROM test GROUP BY a",
		"CREATE TABLE t (a DOUBLE)",
		"CREATE TABLE t (a INT, UNIQUE KEY (a))",
	} {
		_, err := p.Parse(sql)
		assert.True(t, terror.Is(err, terror.UnsupportedCode), sql)
	}

	_, err = p.Parse("SELECT other.a FROM test")
	assert.True(t, terror.Is(err, terror.UnresolvedCode))
}

func TestParseScript(t *testing.T) {
	p := New()
	stmts, err := p.ParseScript("BEGIN; INSERT INTO test VALUES (1, 'a'); COMMIT;")
	require.NoError(t, err)
	require.Len(t, stmts, 3)
	assert.Equal(t, ControlBegin, stmts[0].Control)
	assert.IsType(t, &planner.InsertStmt{}, stmts[1].Query)
	assert.Equal(t, ControlCommit, stmts[2].Control)

	_, err = p.ParseScript("SELECT a FROM test; SELECT a FROM t1 JOIN t2")
	assert.True(t, terror.Is(err, terror.UnsupportedCode))
}
