package cachestore

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/lloyd-blog/edge/internal/db"
)

// compressThreshold is the body size above which entries are gzipped before
// they are written, when that makes them smaller.
const compressThreshold = 1024

// SQL is a Storage persisted in SQLite, so cached responses survive
// restarts of the worker proxy.
type SQL struct {
	db *db.DB
}

var _ Storage = (*SQL)(nil)

// NewSQL creates a Storage backed by the given database.
func NewSQL(database *db.DB) *SQL {
	return &SQL{db: database}
}

func (s *SQL) Open(ctx context.Context, name string) (Store, error) {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO cache_stores (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("opening cache store %s: %w", name, err)
	}
	return &sqlStore{db: s.db, name: name}, nil
}

func (s *SQL) Has(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_stores WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking cache store %s: %w", name, err)
	}
	return n > 0, nil
}

func (s *SQL) Delete(ctx context.Context, name string) (bool, error) {
	var deleted bool
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE store = ?`, name); err != nil {
			return fmt.Errorf("deleting entries of %s: %w", name, err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM cache_stores WHERE name = ?`, name)
		if err != nil {
			return fmt.Errorf("deleting cache store %s: %w", name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}

func (s *SQL) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM cache_stores ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing cache stores: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQL) Match(ctx context.Context, key string) (*Entry, bool, error) {
	return matchAcross(ctx, s, key)
}

type sqlStore struct {
	db   *db.DB
	name string
}

func (s *sqlStore) Name() string { return s.name }

func (s *sqlStore) Match(ctx context.Context, key string) (*Entry, bool, error) {
	var (
		status     int
		headers    string
		body       []byte
		compressed bool
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT status, headers, body, compressed
		FROM cache_entries WHERE store = ? AND key = ?`, s.name, key).
		Scan(&status, &headers, &body, &compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("matching %s in %s: %w", key, s.name, err)
	}

	if compressed {
		body, err = decompress(body)
		if err != nil {
			return nil, false, fmt.Errorf("decompressing %s in %s: %w", key, s.name, err)
		}
	}

	var header http.Header
	if err := json.Unmarshal([]byte(headers), &header); err != nil {
		return nil, false, fmt.Errorf("decoding headers of %s in %s: %w", key, s.name, err)
	}

	return &Entry{Status: status, Header: header, Body: body}, true, nil
}

func (s *sqlStore) Put(ctx context.Context, key string, e *Entry) error {
	headers, err := json.Marshal(e.Header)
	if err != nil {
		return fmt.Errorf("encoding headers: %w", err)
	}

	body := e.Body
	compressed := false
	if len(body) > compressThreshold {
		if c, err := compress(body); err == nil && len(c) < len(body) {
			body = c
			compressed = true
		}
	}

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO cache_stores (name) VALUES (?)`, s.name); err != nil {
			return fmt.Errorf("ensuring cache store %s: %w", s.name, err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cache_entries (store, key, status, headers, body, compressed, stored_at)
			VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
			ON CONFLICT(store, key) DO UPDATE SET
				status = excluded.status,
				headers = excluded.headers,
				body = excluded.body,
				compressed = excluded.compressed,
				stored_at = excluded.stored_at`,
			s.name, key, e.Status, string(headers), body, compressed,
		)
		if err != nil {
			return fmt.Errorf("storing %s in %s: %w", key, s.name, err)
		}
		return nil
	})
}

func (s *sqlStore) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE store = ? AND key = ?`, s.name, key)
	if err != nil {
		return false, fmt.Errorf("deleting %s from %s: %w", key, s.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqlStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM cache_entries WHERE store = ? ORDER BY key`, s.name)
	if err != nil {
		return nil, fmt.Errorf("listing keys of %s: %w", s.name, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)

	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	return io.ReadAll(gz)
}
