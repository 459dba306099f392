package rates

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagefinder/stagefinder/internal/database"
)

func setupMarketRepo(t *testing.T) *MarketRepository {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:market_%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileStandard,
		Name:    "market",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate())

	return NewMarketRepository(db.Conn(), zerolog.Nop())
}

func TestRecordObservationRunningAverage(t *testing.T) {
	repo := setupMarketRepo(t)

	require.NoError(t, repo.RecordObservation("piano", "vienna", "wedding", 100))
	require.NoError(t, repo.RecordObservation("piano", "vienna", "wedding", 200))

	point, err := repo.Get("piano", "vienna", "wedding")
	require.NoError(t, err)
	require.NotNil(t, point)
	assert.Equal(t, 150.0, point.AggregateRate)
	assert.Equal(t, int64(2), point.SampleCount)

	// (150 * 2 + 250) / 3
	require.NoError(t, repo.RecordObservation("piano", "vienna", "wedding", 250))
	point, err = repo.Get("piano", "vienna", "wedding")
	require.NoError(t, err)
	assert.InDelta(t, 183.33, point.AggregateRate, 0.01)
	assert.Equal(t, int64(3), point.SampleCount)
}

func TestGetMissingKeyReturnsNil(t *testing.T) {
	repo := setupMarketRepo(t)

	point, err := repo.Get("theremin", "nowhere", "generic")
	require.NoError(t, err)
	assert.Nil(t, point)
}

func TestKeysAreIndependent(t *testing.T) {
	repo := setupMarketRepo(t)

	require.NoError(t, repo.RecordObservation("piano", "vienna", "wedding", 100))
	require.NoError(t, repo.RecordObservation("piano", "vienna", "corporate", 300))
	require.NoError(t, repo.RecordObservation("violin", "vienna", "wedding", 80))

	point, err := repo.Get("piano", "vienna", "wedding")
	require.NoError(t, err)
	require.NotNil(t, point)
	assert.Equal(t, 100.0, point.AggregateRate)
	assert.Equal(t, int64(1), point.SampleCount)
}

func TestRecentObservations(t *testing.T) {
	repo := setupMarketRepo(t)

	for _, rate := range []float64{100, 110, 120, 130} {
		require.NoError(t, repo.RecordObservation("piano", "vienna", "wedding", rate))
	}

	rates, err := repo.RecentObservations("piano", "vienna", "wedding", 3)
	require.NoError(t, err)
	assert.Len(t, rates, 3)

	rates, err = repo.RecentObservations("piano", "vienna", "wedding", 100)
	require.NoError(t, err)
	assert.Len(t, rates, 4)

	rates, err = repo.RecentObservations("harp", "vienna", "wedding", 100)
	require.NoError(t, err)
	assert.Empty(t, rates)
}

func TestPruneObservationsKeepsAggregates(t *testing.T) {
	repo := setupMarketRepo(t)

	require.NoError(t, repo.RecordObservation("piano", "vienna", "wedding", 100))
	require.NoError(t, repo.RecordObservation("piano", "vienna", "wedding", 200))

	pruned, err := repo.PruneObservations(time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)

	rates, err := repo.RecentObservations("piano", "vienna", "wedding", 100)
	require.NoError(t, err)
	assert.Empty(t, rates)

	// The aggregate survives pruning
	point, err := repo.Get("piano", "vienna", "wedding")
	require.NoError(t, err)
	require.NotNil(t, point)
	assert.Equal(t, 150.0, point.AggregateRate)
}
