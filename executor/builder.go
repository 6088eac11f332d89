package executor

import (
	"github.com/pingcap-incubator/tinydb/catalog"
	"github.com/pingcap-incubator/tinydb/planner"
	"github.com/pingcap-incubator/tinydb/terror"
	"github.com/pingcap-incubator/tinydb/transaction"
	"github.com/pingcap/errors"
)

// Env is what operators need besides their transaction.
type Env struct {
	Manager *transaction.Manager
	Catalog catalog.Catalog
}

// Build turns a plan tree into an operator tree.
func Build(env *Env, p planner.Plan) (Executor, error) {
	children := make([]Executor, 0, len(p.Children()))
	for _, c := range p.Children() {
		child, err := Build(env, c)
		if err != nil {
			return nil, errors.Trace(err)
		}
		children = append(children, child)
	}
	base := newBaseExecutor(p.Type().String(), p.Schema(), children...)

	switch x := p.(type) {
	case *planner.SeqScan:
		return &seqScanExec{baseExecutor: base, mgr: env.Manager, table: x.Table, columns: x.Columns}, nil
	case *planner.Filter:
		return &filterExec{baseExecutor: base, conds: x.Conds}, nil
	case *planner.Projection:
		return &projectionExec{baseExecutor: base, exprs: x.Exprs}, nil
	case *planner.OrderBy:
		return &orderByExec{baseExecutor: base, keys: x.Keys, trim: x.Trim}, nil
	case *planner.Limit:
		return &limitExec{baseExecutor: base, limit: x.Count, offset: x.Offset}, nil
	case *planner.Values:
		return &valuesExec{baseExecutor: base, rows: x.Rows}, nil
	case *planner.Insert:
		return &insertExec{baseExecutor: base, mgr: env.Manager, table: x.Table, schema: x.TableSchema, columnMap: x.ColumnMap}, nil
	case *planner.Delete:
		if _, ok := children[0].(versionSource); !ok {
			return nil, terror.Unsupportedf("DELETE over %s", x.Children()[0].Type())
		}
		return &deleteExec{baseExecutor: base, mgr: env.Manager, table: x.Table}, nil
	case *planner.Update:
		if _, ok := children[0].(versionSource); !ok {
			return nil, terror.Unsupportedf("UPDATE over %s", x.Children()[0].Type())
		}
		return &updateExec{baseExecutor: base, mgr: env.Manager, table: x.Table, schema: x.TableSchema, sets: x.Sets}, nil
	case *planner.Create:
		return &createExec{baseExecutor: base, catalog: env.Catalog, table: x.Table, tableSchema: x.TableSchema, ifNotExists: x.IfNotExists}, nil
	case *planner.Drop:
		return &dropExec{baseExecutor: base, catalog: env.Catalog, tables: x.Tables, ifExists: x.IfExists}, nil
	}
	return nil, terror.Unsupportedf("plan node %s", p.Type())
}
