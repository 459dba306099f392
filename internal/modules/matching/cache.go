package matching

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// SearchCache stores recent search results in the cache database, keyed by a
// deterministic hash of the search criteria. Entries expire by TTL and the
// whole table is safe to drop: searches just recompute.
type SearchCache struct {
	cacheDB *sql.DB
	ttl     time.Duration
	log     zerolog.Logger
}

// NewSearchCache creates a search cache with the given TTL.
func NewSearchCache(cacheDB *sql.DB, ttl time.Duration, log zerolog.Logger) *SearchCache {
	return &SearchCache{
		cacheDB: cacheDB,
		ttl:     ttl,
		log:     log.With().Str("component", "search_cache").Logger(),
	}
}

// Key builds a deterministic cache key from any encodable criteria value.
func (c *SearchCache) Key(kind string, criteria interface{}) (string, error) {
	encoded, err := msgpack.Marshal(criteria)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key criteria: %w", err)
	}

	sum := sha256.Sum256(encoded)
	return kind + ":" + hex.EncodeToString(sum[:]), nil
}

// Get loads a cached result into dest. Returns false on miss or expiry;
// cache read failures are misses, never errors.
func (c *SearchCache) Get(key string, dest interface{}) bool {
	var payload []byte
	var expiresAt string
	err := c.cacheDB.QueryRow(
		"SELECT payload, expires_at FROM search_cache WHERE search_key = ?", key,
	).Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("Cache read failed, treating as miss")
		return false
	}

	expiry, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil || time.Now().After(expiry) {
		return false
	}

	if err := msgpack.Unmarshal(payload, dest); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache payload decode failed, treating as miss")
		return false
	}

	return true
}

// Put stores a result under key. Write failures are logged and swallowed:
// the cache is advisory.
func (c *SearchCache) Put(key string, value interface{}) {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache payload encode failed, skipping")
		return
	}

	expiresAt := time.Now().UTC().Add(c.ttl).Format(time.RFC3339)
	_, err = c.cacheDB.Exec(
		`INSERT INTO search_cache (search_key, payload, expires_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(search_key) DO UPDATE SET
		     payload = excluded.payload,
		     expires_at = excluded.expires_at`,
		key, payload, expiresAt,
	)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

// PurgeExpired removes entries past their expiry. Called by maintenance.
func (c *SearchCache) PurgeExpired() (int64, error) {
	result, err := c.cacheDB.Exec(
		"DELETE FROM search_cache WHERE expires_at < ?",
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge search cache: %w", err)
	}

	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read purge result: %w", err)
	}

	return purged, nil
}
