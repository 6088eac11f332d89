package executor

import (
	"context"
	"sort"

	"github.com/pingcap-incubator/tinydb/planner"
	"github.com/pingcap-incubator/tinydb/transaction"
	"github.com/pingcap-incubator/tinydb/types"
	"github.com/pingcap/errors"
)

var (
	_ Executor = &orderByExec{}
	_ Executor = &limitExec{}
)

// orderByExec drains its child on Open, sorts stably and serves from the buffer.
type orderByExec struct {
	baseExecutor
	keys []planner.SortKey
	trim int

	rows   []types.Tuple
	cursor int
}

func (e *orderByExec) Open(ctx context.Context, txn *transaction.Txn) error {
	if err := e.baseExecutor.Open(ctx, txn); err != nil {
		return err
	}
	e.rows, e.cursor = e.rows[:0], 0
	for {
		row, err := e.child().Next()
		if err != nil {
			return errors.Trace(err)
		}
		if row == nil {
			break
		}
		e.rows = append(e.rows, row)
	}
	sort.SliceStable(e.rows, func(i, j int) bool {
		return e.less(e.rows[i], e.rows[j])
	})
	return nil
}

func (e *orderByExec) less(a, b types.Tuple) bool {
	for _, k := range e.keys {
		c := a[k.Index].Compare(b[k.Index])
		if c == 0 {
			continue
		}
		if k.Desc {
			return c > 0
		}
		return c < 0
	}
	return false
}

func (e *orderByExec) Next() (types.Tuple, error) {
	if e.exhausted() {
		return nil, nil
	}
	if e.cursor >= len(e.rows) {
		return e.finish()
	}
	row := e.rows[e.cursor]
	e.cursor++
	if e.trim > 0 && e.trim < len(row) {
		row = row[:e.trim]
	}
	return row, nil
}

func (e *orderByExec) Close() error {
	e.rows = nil
	return e.baseExecutor.Close()
}

// limitExec skips offset tuples, then emits at most limit. It never pulls past the last tuple it
// returns.
type limitExec struct {
	baseExecutor
	limit  uint64
	offset uint64

	skipped uint64
	cursor  uint64
}

func (e *limitExec) Open(ctx context.Context, txn *transaction.Txn) error {
	e.skipped, e.cursor = 0, 0
	return e.baseExecutor.Open(ctx, txn)
}

func (e *limitExec) Next() (types.Tuple, error) {
	if e.exhausted() {
		return nil, nil
	}
	if e.cursor >= e.limit {
		return e.finish()
	}
	for e.skipped < e.offset {
		row, err := e.child().Next()
		if err != nil {
			return nil, errors.Trace(err)
		}
		if row == nil {
			return e.finish()
		}
		e.skipped++
	}
	row, err := e.child().Next()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if row == nil {
		return e.finish()
	}
	e.cursor++
	return row, nil
}
