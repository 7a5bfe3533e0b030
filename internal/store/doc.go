// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the application's core logic.
//
// Multi-step state changes go through UnitOfWork so that lock acquisition,
// the check and the write it guards always share one transaction.
package store
