// Package postgres provides the PostgreSQL implementation of store.TaskStore
// and the embedded goose migrations that create its table.
//
// Claims and terminal writes are single conditional UPDATE statements, so
// concurrent pollers across processes are arbitrated by the database.
package postgres
