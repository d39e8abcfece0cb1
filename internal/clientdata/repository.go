// Package clientdata caches provider lookups in client_data.db. Entries are
// msgpack blobs with an expiry; expired entries are still served when the
// provider cannot answer.
package clientdata

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// State is what a cache read found
type State int

const (
	Missing State = iota
	Stale
	Fresh
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "missing"
	}
}

// Repository reads and writes cache tables
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a repository over client_data.db
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Put stores v under key, fresh for the table's TTL. An existing entry is
// replaced.
func (r *Repository) Put(t Table, key string, v interface{}) error {
	blob, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s entry: %w", t.name, err)
	}

	query := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s, data, expires_at) VALUES (?, ?, ?)", t.name, t.key)
	if _, err := r.db.Exec(query, key, blob, r.now().Add(t.ttl).Unix()); err != nil {
		return fmt.Errorf("failed to store %s entry: %w", t.name, err)
	}
	return nil
}

// Lookup decodes the entry for key into out, whether fresh or stale. out is
// untouched when the entry is Missing.
func (r *Repository) Lookup(t Table, key string, out interface{}) (State, error) {
	var (
		blob      []byte
		expiresAt int64
	)
	query := fmt.Sprintf("SELECT data, expires_at FROM %s WHERE %s = ?", t.name, t.key)
	err := r.db.QueryRow(query, key).Scan(&blob, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Missing, nil
	}
	if err != nil {
		return Missing, fmt.Errorf("failed to read %s entry: %w", t.name, err)
	}

	if err := msgpack.Unmarshal(blob, out); err != nil {
		return Missing, fmt.Errorf("failed to decode %s entry: %w", t.name, err)
	}
	if expiresAt > r.now().Unix() {
		return Fresh, nil
	}
	return Stale, nil
}

// Delete removes the entry for key
func (r *Repository) Delete(t Table, key string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t.name, t.key)
	if _, err := r.db.Exec(query, key); err != nil {
		return fmt.Errorf("failed to delete %s entry: %w", t.name, err)
	}
	return nil
}

// PurgeResult is the outcome of purging one table
type PurgeResult struct {
	Table     string
	Deleted   int64
	Remaining int64
}

// Purge deletes entries that expired more than grace ago from every table.
// A zero grace drops everything past its TTL, including the stale fallbacks.
func (r *Repository) Purge(grace time.Duration) ([]PurgeResult, error) {
	cutoff := r.now().Add(-grace).Unix()
	results := make([]PurgeResult, 0, len(Tables))

	for _, t := range Tables {
		res, err := r.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE expires_at < ?", t.name), cutoff)
		if err != nil {
			return results, fmt.Errorf("failed to purge %s: %w", t.name, err)
		}
		deleted, err := res.RowsAffected()
		if err != nil {
			return results, fmt.Errorf("failed to count purged %s rows: %w", t.name, err)
		}

		var remaining int64
		if err := r.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", t.name)).Scan(&remaining); err != nil {
			return results, fmt.Errorf("failed to count %s rows: %w", t.name, err)
		}

		results = append(results, PurgeResult{Table: t.name, Deleted: deleted, Remaining: remaining})
	}

	return results, nil
}
