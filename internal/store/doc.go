// Package store provides SQLite-backed durable storage for logged service
// requests.
//
// The store is an append-only log. Each row holds one replay.LoggedRequest:
// its ID, service and operation, the deterministic JSON of its wire form, and a
// content hash of the serialized request.
//
// # Ordering
//
// Rows are ordered by seq, an INTEGER assigned on insert, never by
// timestamps. All list queries use ORDER BY seq ASC so a log read back
// replays in exactly the order it was recorded.
package store
