// Package archive persists settlement results to PostgreSQL.
//
// The archive writer:
//   - Consumes results from a growable ring, off the settlement path
//   - Accumulates batches and flushes on size or interval
//   - Inserts with ON CONFLICT DO NOTHING keyed by epoch id
//
// Core lottery state never persists; the archive is a durable record of
// outcomes only.
package archive
