package store

import (
	"context"
	"fmt"

	"github.com/roach88/carp/internal/replay"
	"github.com/roach88/carp/internal/wire"
)

// Append inserts a logged request. Entries are immutable: appending an ID
// that is already stored fails.
//
// Append implements replay.Sink.
func (s *Store) Append(ctx context.Context, entry replay.LoggedRequest) error {
	if entry.ID == "" {
		return fmt.Errorf("append logged request: id is required")
	}

	data, err := entry.Marshal()
	if err != nil {
		return fmt.Errorf("append logged request %s: %w", entry.ID, err)
	}
	requestHash, err := wire.Hash(wire.DomainRequest, entry.Request)
	if err != nil {
		return fmt.Errorf("append logged request %s: %w", entry.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO logged_requests
		(id, service, operation, exception, request_hash, entry)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.Service,
		entry.Operation,
		string(entry.Exception),
		requestHash,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("append logged request %s: %w", entry.ID, err)
	}
	return nil
}

var _ replay.Sink = (*Store)(nil)
