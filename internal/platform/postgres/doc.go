// Package postgres provides PostgreSQL implementations of the repositories
// defined in internal/store, the transactional UnitOfWork that binds them to
// one *sql.Tx, and the embedded goose migrations for the schema.
//
// Row locks (SELECT ... FOR UPDATE) on contents and music_generations are what
// serialize quota reservations and event reconciliation across instances.
package postgres
