package executor

import (
	"context"

	"github.com/pingcap-incubator/tinydb/expression"
	"github.com/pingcap-incubator/tinydb/storage"
	"github.com/pingcap-incubator/tinydb/transaction"
	"github.com/pingcap-incubator/tinydb/types"
	"github.com/pingcap/errors"
)

var (
	_ Executor = &seqScanExec{}
	_ Executor = &filterExec{}
	_ Executor = &projectionExec{}
	_ Executor = &valuesExec{}

	_ versionSource = &seqScanExec{}
	_ versionSource = &filterExec{}
)

// seqScanExec walks every chain of a table and emits the version its transaction sees.
type seqScanExec struct {
	baseExecutor
	mgr     *transaction.Manager
	table   string
	columns []int

	heads  []storage.VersionRef
	cursor int
	last   storage.Version
}

func (e *seqScanExec) Open(ctx context.Context, txn *transaction.Txn) error {
	if err := e.baseExecutor.Open(ctx, txn); err != nil {
		return err
	}
	heads, err := e.mgr.Store().Scan(e.table)
	if err != nil {
		return errors.Trace(err)
	}
	e.heads, e.cursor = heads, 0
	return nil
}

func (e *seqScanExec) Next() (types.Tuple, error) {
	if e.exhausted() {
		return nil, nil
	}
	for e.cursor < len(e.heads) {
		head := e.heads[e.cursor]
		e.cursor++
		v, ok, err := e.mgr.Read(e.txn, head)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if !ok {
			continue
		}
		e.last = v
		scanCounter.Inc()
		if e.columns == nil {
			return v.Tuple, nil
		}
		return v.Tuple.Project(e.columns), nil
	}
	return e.finish()
}

func (e *seqScanExec) lastVersion() storage.Version {
	return e.last
}

// filterExec forwards the child tuples for which every condition evaluates to true.
type filterExec struct {
	baseExecutor
	conds []expression.Expression
}

func (e *filterExec) Next() (types.Tuple, error) {
	if e.exhausted() {
		return nil, nil
	}
	for {
		row, err := e.child().Next()
		if err != nil {
			return nil, errors.Trace(err)
		}
		if row == nil {
			return e.finish()
		}
		match, err := expression.EvalBool(e.conds, row)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if match {
			return row, nil
		}
	}
}

func (e *filterExec) lastVersion() storage.Version {
	return e.child().(versionSource).lastVersion()
}

type projectionExec struct {
	baseExecutor
	exprs []expression.Expression
}

func (e *projectionExec) Next() (types.Tuple, error) {
	if e.exhausted() {
		return nil, nil
	}
	row, err := e.child().Next()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if row == nil {
		return e.finish()
	}
	out := make(types.Tuple, len(e.exprs))
	for i, expr := range e.exprs {
		if out[i], err = expr.Eval(row); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return out, nil
}

// valuesExec emits constant rows.
type valuesExec struct {
	baseExecutor
	rows   [][]expression.Expression
	cursor int
}

func (e *valuesExec) Open(ctx context.Context, txn *transaction.Txn) error {
	e.cursor = 0
	return e.baseExecutor.Open(ctx, txn)
}

func (e *valuesExec) Next() (types.Tuple, error) {
	if e.exhausted() {
		return nil, nil
	}
	if e.cursor >= len(e.rows) {
		return e.finish()
	}
	exprs := e.rows[e.cursor]
	e.cursor++
	out := make(types.Tuple, len(exprs))
	for i, expr := range exprs {
		d, err := expr.Eval(nil)
		if err != nil {
			return nil, errors.Trace(err)
		}
		out[i] = d
	}
	return out, nil
}
