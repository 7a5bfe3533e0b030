// Package task runs background work (thumbnail derivatives, provider polls)
// on an in-memory queue drained by a worker pool. Work is recreated from
// durable rows at startup, so nothing here persists tasks.
package task
