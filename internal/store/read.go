package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/replay"
)

// Record is a stored logged request with its log position.
type Record struct {
	Seq         int64
	RequestHash string
	Entry       replay.LoggedRequest
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Service   string
	Operation string
	// AfterSeq skips records with seq <= AfterSeq.
	AfterSeq int64
	// Limit caps the number of records; 0 means no limit.
	Limit int
}

// List returns stored records matching f in log order.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	query := `
		SELECT seq, id, service, operation, request_hash, entry
		FROM logged_requests
		WHERE (? = '' OR service = ?)
		  AND (? = '' OR operation = ?)
		  AND seq > ?
		ORDER BY seq ASC`
	args := []any{f.Service, f.Service, f.Operation, f.Operation, f.AfterSeq}
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query logged requests: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logged requests: %w", err)
	}
	return records, nil
}

// Entries is like List but returns only the logged requests.
func (s *Store) Entries(ctx context.Context, f Filter) ([]replay.LoggedRequest, error) {
	records, err := s.List(ctx, f)
	if err != nil {
		return nil, err
	}
	entries := make([]replay.LoggedRequest, len(records))
	for i, r := range records {
		entries[i] = r.Entry
	}
	return entries, nil
}

// Get returns the record with the given entry ID.
// Fails with fault.CodeResourceNotFound when there is none.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, id, service, operation, request_hash, entry
		FROM logged_requests
		WHERE id = ?
	`, id)

	rec, err := s.scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fault.ResourceNotFound("logged request %q not found", id)
	}
	return rec, err
}

// Count returns the number of stored records for service, or for all
// services when service is empty.
func (s *Store) Count(ctx context.Context, service string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM logged_requests WHERE (? = '' OR service = ?)
	`, service, service).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count logged requests: %w", err)
	}
	return n, nil
}

// Services returns the distinct service names in the log, sorted.
func (s *Store) Services(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT service FROM logged_requests ORDER BY service COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	services := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}
	return services, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanRecord(row scanner) (Record, error) {
	var (
		rec       Record
		id        string
		service   string
		operation string
		data      string
	)
	if err := row.Scan(&rec.Seq, &id, &service, &operation, &rec.RequestHash, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("scan logged request: %w", err)
	}

	entry, err := replay.Unmarshal([]byte(data), s.discriminatorField)
	if err != nil {
		return Record{}, fmt.Errorf("decode logged request %s: %w", id, err)
	}
	entry.ID = id
	entry.Service = service
	entry.Operation = operation
	rec.Entry = entry
	return rec, nil
}
