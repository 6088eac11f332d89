package session

import (
	"context"

	"github.com/ngaut/log"
	"github.com/opentracing/opentracing-go"
	"github.com/pingcap-incubator/tinydb/executor"
	"github.com/pingcap-incubator/tinydb/parser"
	"github.com/pingcap-incubator/tinydb/planner"
	"github.com/pingcap-incubator/tinydb/terror"
	"github.com/pingcap-incubator/tinydb/transaction"
	"github.com/pingcap-incubator/tinydb/types"
	"github.com/pingcap/errors"
)

var explainSchema = types.NewSchema(types.Column{Name: "plan", Tp: types.TypeText})

// Session runs statements for one client. Statements outside BEGIN ... COMMIT each run in their
// own transaction. A Session is not safe for concurrent use; open one per goroutine.
type Session struct {
	engine *Engine
	parser *parser.Parser
	// txn is the explicit transaction, nil when none is open. After a failed statement it stays
	// set in the aborted state until COMMIT or ROLLBACK ends the block.
	txn *transaction.Txn
}

func newSession(e *Engine) *Session {
	return &Session{engine: e, parser: parser.New()}
}

// InTransaction reports whether a BEGIN block is open.
func (s *Session) InTransaction() bool {
	return s.txn != nil
}

// ExecuteQuery parses, plans and runs one statement. It returns the result, the number of rows the
// statement changed and an error whose kind terror.KindOf classifies.
func (s *Session) ExecuteQuery(ctx context.Context, sql string) (*executor.ResultSet, int, error) {
	if span := opentracing.SpanFromContext(ctx); span != nil {
		span = opentracing.StartSpan("session.ExecuteQuery", opentracing.ChildOf(span.Context()))
		defer span.Finish()
		ctx = opentracing.ContextWithSpan(ctx, span)
	}
	log.Debugf("session: execute %q", sql)

	stmt, err := s.parser.Parse(sql)
	if err != nil {
		queryCounter.WithLabelValues("parse", "error").Inc()
		return nil, 0, err
	}
	rs, err := s.ExecuteStatement(ctx, stmt)
	if err != nil {
		return nil, 0, err
	}
	return rs, rs.RowsAffected, nil
}

// ExecuteScript runs every statement of sql in order and stops at the first failure. The results
// of the statements that ran are returned together with the error.
func (s *Session) ExecuteScript(ctx context.Context, sql string) ([]*executor.ResultSet, error) {
	stmts, err := s.parser.ParseScript(sql)
	if err != nil {
		queryCounter.WithLabelValues("parse", "error").Inc()
		return nil, err
	}
	results := make([]*executor.ResultSet, 0, len(stmts))
	for _, stmt := range stmts {
		rs, err := s.ExecuteStatement(ctx, stmt)
		if err != nil {
			return results, errors.Annotatef(err, "statement %q", stmt.Text)
		}
		results = append(results, rs)
	}
	return results, nil
}

// ExecuteStatement runs an already parsed statement.
func (s *Session) ExecuteStatement(ctx context.Context, stmt *parser.Statement) (*executor.ResultSet, error) {
	kind := "query"
	switch {
	case stmt.Control != parser.ControlNone:
		kind = "control"
	case stmt.Explain:
		kind = "explain"
	}
	rs, err := s.execute(ctx, stmt)
	if err != nil {
		queryCounter.WithLabelValues(kind, "error").Inc()
		return nil, err
	}
	queryCounter.WithLabelValues(kind, "ok").Inc()
	return rs, nil
}

func (s *Session) execute(ctx context.Context, stmt *parser.Statement) (*executor.ResultSet, error) {
	switch stmt.Control {
	case parser.ControlBegin:
		return s.begin()
	case parser.ControlCommit:
		return s.commit()
	case parser.ControlRollback:
		return s.rollback()
	}
	if stmt.Explain {
		lines, err := s.engine.optimizer.Explain(stmt.Query)
		if err != nil {
			return nil, err
		}
		rs := &executor.ResultSet{Schema: explainSchema}
		for _, line := range lines {
			rs.Rows = append(rs.Rows, types.NewTuple(line))
		}
		return rs, nil
	}
	return s.run(ctx, stmt.Query)
}

func (s *Session) run(ctx context.Context, q planner.Query) (*executor.ResultSet, error) {
	if s.txn != nil && !s.txn.IsActive() {
		return nil, terror.Execf("transaction %d was aborted, end it with ROLLBACK", s.txn.StartTS())
	}
	p, err := s.engine.optimizer.Optimize(q)
	if err != nil {
		return nil, err
	}
	mgr := s.engine.env.Manager
	if s.txn != nil {
		return executor.Execute(ctx, s.engine.env, p, s.txn)
	}

	txn := mgr.Begin()
	rs, err := executor.Execute(ctx, s.engine.env, p, txn)
	if err != nil {
		if txn.IsActive() {
			if abortErr := mgr.Abort(txn); abortErr != nil {
				log.Warnf("session: abort txn %d: %v", txn.StartTS(), abortErr)
			}
		}
		return nil, err
	}
	if err := mgr.Commit(txn); err != nil {
		return nil, err
	}
	return rs, nil
}

func emptyResult() *executor.ResultSet {
	return &executor.ResultSet{Schema: types.NewSchema()}
}

func (s *Session) begin() (*executor.ResultSet, error) {
	if s.txn != nil {
		return nil, terror.Unsupportedf("nested transactions are not supported")
	}
	s.txn = s.engine.env.Manager.Begin()
	return emptyResult(), nil
}

// commit ends the open block. COMMIT without BEGIN is a no-op. Committing a block whose transaction
// was aborted reports the abort and closes the block.
func (s *Session) commit() (*executor.ResultSet, error) {
	txn := s.txn
	if txn == nil {
		return emptyResult(), nil
	}
	s.txn = nil
	if !txn.IsActive() {
		return nil, terror.Execf("transaction %d was aborted and rolled back", txn.StartTS())
	}
	if err := s.engine.env.Manager.Commit(txn); err != nil {
		return nil, err
	}
	return emptyResult(), nil
}

func (s *Session) rollback() (*executor.ResultSet, error) {
	txn := s.txn
	s.txn = nil
	if txn != nil && txn.IsActive() {
		if err := s.engine.env.Manager.Abort(txn); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return emptyResult(), nil
}

// GeneratePlan parses sql and returns the plan it would run, without executing it.
func (s *Session) GeneratePlan(sql string) (planner.Plan, error) {
	q, err := s.parser.ParseQuery(sql)
	if err != nil {
		return nil, err
	}
	return s.engine.optimizer.Optimize(q)
}

// GeneratePlanFor plans an already built query.
func (s *Session) GeneratePlanFor(q planner.Query) (planner.Plan, error) {
	return s.engine.optimizer.Optimize(q)
}

// Close rolls back the open transaction, if any.
func (s *Session) Close() {
	if _, err := s.rollback(); err != nil {
		log.Warnf("session: rollback on close: %v", err)
	}
	sessionGauge.Dec()
}
