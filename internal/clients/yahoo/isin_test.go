package yahoo

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/metrics-updater/internal/clientdata"
)

func newCache(t *testing.T) (*clientdata.Repository, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE isin_lookup (isin TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL)`)
	require.NoError(t, err)
	return clientdata.NewRepository(db), db
}

func TestISINResolver_CachesLookups(t *testing.T) {
	cache, _ := newCache(t)
	resolver := NewISINResolver(cache, zerolog.Nop())

	calls := 0
	resolver.lookup = func(isin string) (string, error) {
		calls++
		return "AAPL", nil
	}

	for i := 0; i < 3; i++ {
		symbol, err := resolver.Resolve(context.Background(), "US0378331005")
		require.NoError(t, err)
		assert.Equal(t, "AAPL", symbol)
	}
	assert.Equal(t, 1, calls)
}

func TestISINResolver_FallsBackToStaleCache(t *testing.T) {
	cache, db := newCache(t)
	resolver := NewISINResolver(cache, zerolog.Nop())

	require.NoError(t, cache.Put(clientdata.ISINLookups, "US0378331005", isinMapping{Symbol: "AAPL"}))
	_, err := db.Exec("UPDATE isin_lookup SET expires_at = ?", time.Now().Add(-time.Hour).Unix())
	require.NoError(t, err)

	resolver.lookup = func(isin string) (string, error) {
		return "", errors.New("lookup unavailable")
	}

	symbol, err := resolver.Resolve(context.Background(), "US0378331005")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", symbol)
}

func TestISINResolver_NoCache(t *testing.T) {
	resolver := NewISINResolver(nil, zerolog.Nop())
	resolver.lookup = func(isin string) (string, error) {
		return "", errors.New("no ticker found for ISIN: " + isin)
	}

	_, err := resolver.Resolve(context.Background(), "US0000000000")
	assert.EqualError(t, err, "no ticker found for ISIN: US0000000000")
}

func TestISINResolver_CancelledContext(t *testing.T) {
	resolver := NewISINResolver(nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := resolver.Resolve(ctx, "US0378331005")
	assert.ErrorIs(t, err, context.Canceled)
}
