package clientdata

import "time"

// Table is a cache table in client_data.db. Only the tables declared here
// exist, so table and key names never come from callers.
type Table struct {
	name string
	key  string
	ttl  time.Duration
}

// Name returns the SQL table name
func (t Table) Name() string { return t.name }

// TTL returns how long a stored entry stays fresh
func (t Table) TTL() time.Duration { return t.ttl }

// ISINLookups maps ISINs to Yahoo symbols. Listings rarely move, so entries
// stay fresh for a month and are kept past that as a fallback.
var ISINLookups = Table{name: "isin_lookup", key: "isin", ttl: 30 * 24 * time.Hour}

// Tables lists every cache table, in cleanup order
var Tables = []Table{ISINLookups}
