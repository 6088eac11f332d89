// Package executor runs physical plans with pull-based operators. Every operator follows the same
// life cycle: Open binds it to a transaction, Next returns one tuple at a time and a nil tuple at
// the end of the stream, Close releases it. Operators never commit or abort; the driver does.
package executor

import (
	"context"

	"github.com/pingcap-incubator/tinydb/storage"
	"github.com/pingcap-incubator/tinydb/terror"
	"github.com/pingcap-incubator/tinydb/transaction"
	"github.com/pingcap-incubator/tinydb/types"
	"github.com/pingcap/errors"
)

// Executor is a physical operator.
type Executor interface {
	Open(ctx context.Context, txn *transaction.Txn) error
	// Next returns the next tuple, or nil once the stream is exhausted. Calls after exhaustion
	// keep returning nil.
	Next() (types.Tuple, error)
	Close() error
	Schema() *types.Schema
}

// versionSource is implemented by operators that emit stored rows, so DELETE and UPDATE can find the
// version behind the tuple they just pulled.
type versionSource interface {
	lastVersion() storage.Version
}

// affectedCounter is implemented by the operators that write.
type affectedCounter interface {
	affected() int
}

type state int

const (
	stateUninitialized state = iota
	stateOpen
	stateExhausted
	stateClosed
)

var stateNames = [...]string{"UNINITIALIZED", "OPEN", "EXHAUSTED", "CLOSED"}

func (s state) String() string {
	return stateNames[s]
}

// baseExecutor carries the life cycle shared by all operators.
type baseExecutor struct {
	name     string
	state    state
	ctx      context.Context
	txn      *transaction.Txn
	schema   *types.Schema
	children []Executor
}

func newBaseExecutor(name string, schema *types.Schema, children ...Executor) baseExecutor {
	return baseExecutor{name: name, schema: schema, children: children}
}

func (e *baseExecutor) Schema() *types.Schema {
	return e.schema
}

// Open opens the children first. A second Open without Close is a contract violation.
func (e *baseExecutor) Open(ctx context.Context, txn *transaction.Txn) error {
	if e.state == stateOpen || e.state == stateExhausted {
		terror.ContractViolation("%s opened twice", e.name)
	}
	e.ctx, e.txn = ctx, txn
	e.state = stateOpen
	for _, child := range e.children {
		if err := child.Open(ctx, txn); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Close closes the children. It is safe on operators that were never opened.
func (e *baseExecutor) Close() error {
	var firstErr error
	for _, child := range e.children {
		if err := child.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.state = stateClosed
	return errors.Trace(firstErr)
}

// exhausted checks that Next is legal and reports whether the stream already ended.
func (e *baseExecutor) exhausted() bool {
	if e.state != stateOpen && e.state != stateExhausted {
		terror.ContractViolation("%s: Next called in state %s", e.name, e.state)
	}
	return e.state == stateExhausted
}

// finish marks the end of the stream and returns the sentinel.
func (e *baseExecutor) finish() (types.Tuple, error) {
	e.state = stateExhausted
	return nil, nil
}

func (e *baseExecutor) child() Executor {
	return e.children[0]
}
