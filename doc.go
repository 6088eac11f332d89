package tinydb

/*
TinyDB is a small in-memory relational database intended for teaching and experimentation. It is not suitable for
production use. Its SQL front end is the [TiDB](https://github.com/pingcap/tidb) parser; everything behind it is a
deliberately simple multi-version engine written entirely in Go.

Building TinyDB produces one executable, tinydb, with an interactive shell and a batch mode. Transactions are
snapshot isolated: each one reads the versions committed before it began, and of two transactions writing the same
row or primary key the first to commit wins while the other aborts with a conflict.

The `tinydb` module is organized into the following packages:

* `types`: datums, tuples and schemas.
* `storage`: the version store, an arena of row versions chained newest first, with a primary key index per table.
* `transaction`: timestamps, visibility, commit validation, rollback and version GC.
* `catalog`: table definitions.
* `expression`, `planner`, `executor`: scalar expressions, rule based planning and pull based operators.
* `parser`: maps the TiDB SQL AST onto planner queries.
* `wal`: an optional log of transaction events kept in badger.
* `session`: the engine and per client sessions, the entry point for running SQL.
* `config`, `cmd/tinydb`: configuration and the command line client.
*/
