package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/ngaut/log"
	"github.com/opentracing/opentracing-go"
	"github.com/pingcap-incubator/tinydb/planner"
	"github.com/pingcap-incubator/tinydb/terror"
	"github.com/pingcap-incubator/tinydb/transaction"
	"github.com/pingcap-incubator/tinydb/types"
	"github.com/pingcap/errors"
)

// ResultSet holds the output of one statement.
type ResultSet struct {
	Schema       *types.Schema
	Rows         []types.Tuple
	RowsAffected int
}

// ColumnCount returns the number of output columns.
func (rs *ResultSet) ColumnCount() int {
	return rs.Schema.Len()
}

// ValueCount returns the number of cells, rows times columns.
func (rs *ResultSet) ValueCount() int {
	return len(rs.Rows) * rs.ColumnCount()
}

// ValueAt reads the result as one flat row-major array: i = row*ColumnCount() + column. It panics
// when i is not below ValueCount(), which includes every i for a result without columns.
func (rs *ResultSet) ValueAt(i int) types.Datum {
	n := rs.ColumnCount()
	if i < 0 || i >= rs.ValueCount() {
		panic(fmt.Sprintf("value index %d out of range [0, %d)", i, rs.ValueCount()))
	}
	return rs.Rows[i/n][i%n]
}

// Execute runs p inside txn and collects its output. On any execution error txn is aborted; a plan
// that cannot be built leaves txn untouched. Every operator opened is closed before returning.
func Execute(ctx context.Context, env *Env, p planner.Plan, txn *transaction.Txn) (rs *ResultSet, err error) {
	if span := opentracing.SpanFromContext(ctx); span != nil {
		span = opentracing.StartSpan("executor.Execute", opentracing.ChildOf(span.Context()))
		span.SetTag("plan", p.Type().String())
		defer span.Finish()
		ctx = opentracing.ContextWithSpan(ctx, span)
	}

	exec, err := Build(env, p)
	if err != nil {
		return nil, err
	}
	return drive(ctx, env, exec, p.Type().String(), txn)
}

// drive opens exec and pulls it to completion. txn never outlives a failure: it is
// aborted on errors and on panics, which are re-raised afterwards.
func drive(ctx context.Context, env *Env, exec Executor, tp string, txn *transaction.Txn) (rs *ResultSet, err error) {
	start := time.Now()
	defer func() {
		statementDuration.WithLabelValues(tp).Observe(time.Since(start).Seconds())
		r := recover()
		if r == nil && err == nil {
			statementCounter.WithLabelValues(tp, "ok").Inc()
			return
		}
		if r != nil {
			statementCounter.WithLabelValues(tp, "panic").Inc()
		} else {
			statementCounter.WithLabelValues(tp, "error").Inc()
		}
		if txn.IsActive() {
			log.Debugf("executor: abort txn %d after %s failed: %v %v", txn.StartTS(), tp, err, r)
			if abortErr := env.Manager.Abort(txn); abortErr != nil {
				log.Warnf("executor: abort txn %d: %v", txn.StartTS(), abortErr)
			}
		}
		if r != nil {
			panic(r)
		}
	}()
	defer func() {
		if closeErr := exec.Close(); closeErr != nil && err == nil {
			rs, err = nil, errors.Trace(closeErr)
		}
	}()

	if err = exec.Open(ctx, txn); err != nil {
		return nil, err
	}
	rs = &ResultSet{Schema: exec.Schema()}
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, terror.Execf("statement interrupted: %v", ctxErr)
		}
		row, nextErr := exec.Next()
		if nextErr != nil {
			return nil, nextErr
		}
		if row == nil {
			break
		}
		rs.Rows = append(rs.Rows, row)
	}
	if c, ok := exec.(affectedCounter); ok {
		rs.RowsAffected = c.affected()
	}
	return rs, nil
}
