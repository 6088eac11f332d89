// Package terror defines the error taxonomy shared by the planner, the executors and the
// transaction manager. Every user-visible failure carries an errcode.Code (the machine-checkable
// kind) and a human-readable message.
package terror

import (
	"fmt"
	"strings"

	"github.com/pingcap/errcode"
	"github.com/pingcap/errors"
)

var (
	// PlanCode covers failures while building a plan. They never have side effects.
	PlanCode        = errcode.InvalidInputCode.Child("input.plan")
	UnsupportedCode = PlanCode.Child("plan.unsupported")
	UnresolvedCode  = PlanCode.Child("plan.unresolved")
	SyntaxCode      = PlanCode.Child("plan.syntax")

	// ExecCode covers failures raised while a plan runs. The owning transaction is aborted.
	ExecCode       = errcode.StateCode.Child("state.exec")
	TypeCode       = ExecCode.Child("exec.type")
	ConstraintCode = ExecCode.Child("exec.constraint")
	// AbortedCode is a statement running in a transaction its owner already ended.
	AbortedCode = ExecCode.Child("exec.aborted")

	// ConflictCode is a write-write conflict. The transaction is aborted and the caller may retry.
	ConflictCode = errcode.StateCode.Child("state.conflict")

	// ContractCode marks misuse of an internal protocol, an engine bug rather than a user error.
	ContractCode = errcode.InternalCode.Child("internal.contract")
)

// Error is a coded error with a formatted message.
type Error struct {
	code errcode.Code
	msg  string
}

func (e *Error) Error() string {
	return e.msg
}

// Code implements errcode.ErrorCode.
func (e *Error) Code() errcode.Code {
	return e.code
}

func newError(code errcode.Code, format string, args ...interface{}) error {
	return errors.WithStack(&Error{code: code, msg: fmt.Sprintf(format, args...)})
}

// Unsupportedf reports a construct the planner does not handle.
func Unsupportedf(format string, args ...interface{}) error {
	return newError(UnsupportedCode, format, args...)
}

// Unresolvedf reports an unknown table or column.
func Unresolvedf(format string, args ...interface{}) error {
	return newError(UnresolvedCode, format, args...)
}

// Syntaxf reports SQL text the parser rejected.
func Syntaxf(format string, args ...interface{}) error {
	return newError(SyntaxCode, format, args...)
}

// TypeMismatchf reports a value that does not fit its column or operator.
func TypeMismatchf(format string, args ...interface{}) error {
	return newError(TypeCode, format, args...)
}

// Constraintf reports a violated NOT NULL or key constraint.
func Constraintf(format string, args ...interface{}) error {
	return newError(ConstraintCode, format, args...)
}

// Execf reports any other execution failure.
func Execf(format string, args ...interface{}) error {
	return newError(ExecCode, format, args...)
}

// ContractViolation panics with a contract error. Operators call it when the iterator protocol is
// misused; it is never recovered inside the engine.
func ContractViolation(format string, args ...interface{}) {
	panic(&Error{code: ContractCode, msg: fmt.Sprintf(format, args...)})
}

// ErrKeyAlreadyExists is returned when a primary key is already held by a visible row.
type ErrKeyAlreadyExists struct {
	Table string
	Key   string
}

func (e *ErrKeyAlreadyExists) Error() string {
	return fmt.Sprintf("duplicate entry %s for key 'PRIMARY' in table %s", e.Key, e.Table)
}

// Code implements errcode.ErrorCode.
func (e *ErrKeyAlreadyExists) Code() errcode.Code {
	return ConstraintCode
}

// ErrConflict is a write-write conflict on one row. ConflictTS is the start timestamp of the
// transaction that owns or committed the competing version, ConflictCommitTS its commit timestamp
// when known.
type ErrConflict struct {
	StartTS          uint64
	ConflictTS       uint64
	ConflictCommitTS uint64
	Row              uint64
	Reason           string
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("write conflict, txn %d vs txn %d (commit %d) on row %d: %s",
		e.StartTS, e.ConflictTS, e.ConflictCommitTS, e.Row, e.Reason)
}

// Code implements errcode.ErrorCode.
func (e *ErrConflict) Code() errcode.Code {
	return ConflictCode
}

// ErrTxnTerminated is returned by Commit or Abort on a transaction that already finished.
type ErrTxnTerminated struct {
	StartTS uint64
	Status  string
}

func (e *ErrTxnTerminated) Error() string {
	return fmt.Sprintf("txn %d is already %s", e.StartTS, e.Status)
}

// Code implements errcode.ErrorCode.
func (e *ErrTxnTerminated) Code() errcode.Code {
	return ContractCode
}

// ErrTxnNotActive is returned when a statement reads or writes through a transaction that was
// committed or aborted while the statement was running.
type ErrTxnNotActive struct {
	StartTS uint64
	Status  string
}

func (e *ErrTxnNotActive) Error() string {
	return fmt.Sprintf("txn %d was %s while the statement was running", e.StartTS, e.Status)
}

// Code implements errcode.ErrorCode.
func (e *ErrTxnNotActive) Code() errcode.Code {
	return AbortedCode
}

// KindOf returns the code string of err, or "" for nil. Errors without a code are internal.
func KindOf(err error) errcode.CodeStr {
	if err == nil {
		return ""
	}
	if coded, ok := errors.Cause(err).(errcode.ErrorCode); ok {
		return coded.Code().CodeStr()
	}
	return errcode.InternalCode.CodeStr()
}

// Is reports whether err carries code or one of its descendants.
func Is(err error, code errcode.Code) bool {
	kind := KindOf(err)
	if kind == "" {
		return false
	}
	want := code.CodeStr()
	return kind == want || strings.HasPrefix(string(kind), string(want)+".")
}

// IsRetryable reports whether the caller may retry the statement in a new transaction.
func IsRetryable(err error) bool {
	return Is(err, ConflictCode)
}
