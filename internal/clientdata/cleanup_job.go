package clientdata

import (
	"time"

	"github.com/rs/zerolog"
)

// DefaultStaleGrace keeps expired ISIN mappings around as a fallback for
// this long before they are purged
const DefaultStaleGrace = 90 * 24 * time.Hour

// CleanupJob purges long-expired provider lookups from the cache
type CleanupJob struct {
	repo  *Repository
	grace time.Duration
	log   zerolog.Logger
}

// NewCleanupJob creates the cache cleanup job. A non-positive grace uses
// DefaultStaleGrace.
func NewCleanupJob(repo *Repository, grace time.Duration, log zerolog.Logger) *CleanupJob {
	if grace <= 0 {
		grace = DefaultStaleGrace
	}
	return &CleanupJob{
		repo:  repo,
		grace: grace,
		log:   log.With().Str("job", "isin_cache_cleanup").Logger(),
	}
}

// Run purges every cache table and reports what is left
func (j *CleanupJob) Run() error {
	results, err := j.repo.Purge(j.grace)
	for _, r := range results {
		j.log.Info().
			Str("table", r.Table).
			Int64("purged", r.Deleted).
			Int64("cached", r.Remaining).
			Msg("Lookup cache cleaned")
	}
	if err != nil {
		j.log.Error().Err(err).Msg("Lookup cache cleanup failed")
	}
	return err
}

// Name returns the job name
func (j *CleanupJob) Name() string {
	return "isin_cache_cleanup"
}
