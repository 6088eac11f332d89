package executor

import (
	"github.com/ngaut/log"
	"github.com/pingcap-incubator/tinydb/catalog"
	"github.com/pingcap-incubator/tinydb/planner"
	"github.com/pingcap-incubator/tinydb/terror"
	"github.com/pingcap-incubator/tinydb/transaction"
	"github.com/pingcap-incubator/tinydb/types"
	"github.com/pingcap/errors"
)

var (
	_ Executor = &insertExec{}
	_ Executor = &deleteExec{}
	_ Executor = &updateExec{}
	_ Executor = &createExec{}
	_ Executor = &dropExec{}

	_ affectedCounter = &insertExec{}
	_ affectedCounter = &deleteExec{}
	_ affectedCounter = &updateExec{}
)

// checkTuple validates a full table tuple against the column definitions.
func checkTuple(table string, schema *types.Schema, t types.Tuple) error {
	for i, col := range schema.Columns {
		d := t[i]
		if d.IsNull() {
			if col.NotNull || col.PrimaryKey {
				return terror.Constraintf("column %s of table %s cannot be NULL", col.Name, table)
			}
			continue
		}
		if !col.Tp.Accepts(d.Kind()) {
			return terror.TypeMismatchf("column %s of table %s is %s, cannot store %s %s", col.Name, table, col.Tp, d.Kind(), d.GoString())
		}
	}
	return nil
}

// insertExec writes every child tuple on its first Next and emits nothing.
type insertExec struct {
	baseExecutor
	mgr       *transaction.Manager
	table     string
	schema    *types.Schema
	columnMap []int
	count     int
}

func (e *insertExec) Next() (types.Tuple, error) {
	if e.exhausted() {
		return nil, nil
	}
	for {
		row, err := e.child().Next()
		if err != nil {
			return nil, errors.Trace(err)
		}
		if row == nil {
			break
		}
		tuple := make(types.Tuple, e.schema.Len())
		for i, off := range e.columnMap {
			tuple[off] = row[i]
		}
		if err := checkTuple(e.table, e.schema, tuple); err != nil {
			return nil, err
		}
		if _, err := e.mgr.Insert(e.txn, e.table, tuple); err != nil {
			return nil, errors.Trace(err)
		}
		e.count++
	}
	writeCounter.WithLabelValues("insert").Add(float64(e.count))
	return e.finish()
}

func (e *insertExec) affected() int {
	return e.count
}

// deleteExec deletes the version behind every tuple its scan child emits.
type deleteExec struct {
	baseExecutor
	mgr   *transaction.Manager
	table string
	count int
}

func (e *deleteExec) Next() (types.Tuple, error) {
	if e.exhausted() {
		return nil, nil
	}
	src := e.child().(versionSource)
	for {
		row, err := e.child().Next()
		if err != nil {
			return nil, errors.Trace(err)
		}
		if row == nil {
			break
		}
		if err := e.mgr.Delete(e.txn, e.table, src.lastVersion()); err != nil {
			return nil, errors.Trace(err)
		}
		e.count++
	}
	writeCounter.WithLabelValues("delete").Add(float64(e.count))
	return e.finish()
}

func (e *deleteExec) affected() int {
	return e.count
}

// updateExec replaces the version behind every tuple its scan child emits. SET expressions see the
// old tuple.
type updateExec struct {
	baseExecutor
	mgr    *transaction.Manager
	table  string
	schema *types.Schema
	sets   []planner.SetColumn
	count  int
}

func (e *updateExec) Next() (types.Tuple, error) {
	if e.exhausted() {
		return nil, nil
	}
	src := e.child().(versionSource)
	for {
		row, err := e.child().Next()
		if err != nil {
			return nil, errors.Trace(err)
		}
		if row == nil {
			break
		}
		tuple := row.Copy()
		for _, set := range e.sets {
			d, err := set.Expr.Eval(row)
			if err != nil {
				return nil, errors.Trace(err)
			}
			tuple[set.Index] = d
		}
		if err := checkTuple(e.table, e.schema, tuple); err != nil {
			return nil, err
		}
		if _, err := e.mgr.Update(e.txn, e.table, src.lastVersion(), tuple); err != nil {
			return nil, errors.Trace(err)
		}
		e.count++
	}
	writeCounter.WithLabelValues("update").Add(float64(e.count))
	return e.finish()
}

func (e *updateExec) affected() int {
	return e.count
}

type createExec struct {
	baseExecutor
	catalog     catalog.Catalog
	table       string
	tableSchema *types.Schema
	ifNotExists bool
}

func (e *createExec) Next() (types.Tuple, error) {
	if e.exhausted() {
		return nil, nil
	}
	if e.ifNotExists {
		if _, err := e.catalog.GetTable(e.table); err == nil {
			log.Debugf("executor: table %s exists, skip create", e.table)
			return e.finish()
		}
	}
	if _, err := e.catalog.CreateTable(e.table, e.tableSchema, e.txn); err != nil {
		return nil, errors.Trace(err)
	}
	return e.finish()
}

type dropExec struct {
	baseExecutor
	catalog  catalog.Catalog
	tables   []string
	ifExists bool
}

func (e *dropExec) Next() (types.Tuple, error) {
	if e.exhausted() {
		return nil, nil
	}
	for _, name := range e.tables {
		err := e.catalog.DropTable(name, e.txn)
		if err != nil && !(e.ifExists && terror.Is(err, terror.UnresolvedCode)) {
			return nil, errors.Trace(err)
		}
	}
	return e.finish()
}
