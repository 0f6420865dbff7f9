package resolver

import (
	"context"
	"path/filepath"
	"testing"

	"photo-indexer/config"
	"photo-indexer/internal/core/models"
	"photo-indexer/internal/db"
	"photo-indexer/internal/db/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *repository.SQLiteRepository {
	t.Helper()
	database, err := db.Open(config.DBConfig{File: filepath.Join(t.TempDir(), "resolver.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(database) })
	return repository.NewSQLiteRepository(database)
}

func TestResolveCreatesProfileWhenEmpty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	r := New(FirstMatch{})

	emb := models.Embedding{0.1, 0.2, 0.3}
	res, err := r.Resolve(ctx, store, emb, DefaultThreshold)
	require.NoError(t, err)
	assert.True(t, res.Created)

	list, err := store.ListProfileEmbeddings(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, res.ProfileID, list[0].ID)
	assert.Equal(t, emb, list[0].Embedding)
}

func TestResolveFirstMatchPrefersLowerID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, err := store.CreateProfile(ctx, models.Embedding{0.5, 0})
	require.NoError(t, err)
	b, err := store.CreateProfile(ctx, models.Embedding{0.3, 0})
	require.NoError(t, err)

	query := models.Embedding{0, 0}

	res, err := New(FirstMatch{}).Resolve(ctx, store, query, DefaultThreshold)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, a.ID, res.ProfileID, "earlier profile wins even though B is closer")

	res, err = New(NewNearest()).Resolve(ctx, store, query, DefaultThreshold)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, b.ID, res.ProfileID)
}

func TestResolveThresholdIsStrict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	r := New(FirstMatch{})

	existing, err := store.CreateProfile(ctx, models.Embedding{0.6, 0})
	require.NoError(t, err)

	res, err := r.Resolve(ctx, store, models.Embedding{0, 0}, DefaultThreshold)
	require.NoError(t, err)
	assert.True(t, res.Created, "distance equal to the threshold is not a match")
	assert.NotEqual(t, existing.ID, res.ProfileID)
}

func TestResolveIsDeterministic(t *testing.T) {
	ctx := context.Background()
	inputs := []models.Embedding{
		{0, 0}, {0.1, 0}, {2, 2}, {2.2, 2}, {0.05, 0.05}, {5, 5},
	}

	run := func() []uint {
		store := newTestStore(t)
		r := New(FirstMatch{})
		var ids []uint
		for _, in := range inputs {
			res, err := r.Resolve(ctx, store, in, DefaultThreshold)
			require.NoError(t, err)
			ids = append(ids, res.ProfileID)
		}
		return ids
	}

	first := run()
	assert.Equal(t, first, run())
	assert.Equal(t, []uint{1, 1, 2, 2, 1, 3}, first)
}

func TestResolveNeverUpdatesRepresentative(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	r := New(FirstMatch{})

	first, err := r.Resolve(ctx, store, models.Embedding{0, 0}, DefaultThreshold)
	require.NoError(t, err)
	for _, e := range []models.Embedding{{0.3, 0}, {0.5, 0}, {0.55, 0.1}} {
		res, err := r.Resolve(ctx, store, e, DefaultThreshold)
		require.NoError(t, err)
		assert.Equal(t, first.ProfileID, res.ProfileID)
	}

	list, err := store.ListProfileEmbeddings(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.Embedding{0, 0}, list[0].Embedding)

	// ohne Zentroid-Nachführung bleibt der Abstand zum Ursprung maßgeblich
	res, err := r.Resolve(ctx, store, models.Embedding{0.9, 0}, DefaultThreshold)
	require.NoError(t, err)
	assert.True(t, res.Created)
}

func TestResolveRejectsInvalidInput(t *testing.T) {
	store := newTestStore(t)
	r := New(nil)
	assert.Equal(t, StrategyFirstMatch, r.StrategyName())

	_, err := r.Resolve(context.Background(), store, nil, DefaultThreshold)
	assert.ErrorIs(t, err, ErrEmptyEmbedding)

	_, err = r.Resolve(context.Background(), store, models.Embedding{1}, 0)
	assert.ErrorIs(t, err, ErrInvalidThreshold)
}

func TestNewStrategy(t *testing.T) {
	for _, name := range []string{"", StrategyFirstMatch, StrategyNearest} {
		s, err := NewStrategy(name)
		require.NoError(t, err)
		assert.NotNil(t, s)
	}
	_, err := NewStrategy("centroid")
	assert.Error(t, err)
}

func TestNearestDropsVanishedCandidates(t *testing.T) {
	n := NewNearest()
	candidates := []repository.ProfileEmbedding{
		{ID: 1, Embedding: models.Embedding{0, 0}},
		{ID: 2, Embedding: models.Embedding{1, 1}},
	}

	id, ok := n.Match(models.Embedding{0.9, 1}, candidates, DefaultThreshold)
	require.True(t, ok)
	assert.Equal(t, uint(2), id)

	// Profil 2 wurde zurückgerollt
	id, ok = n.Match(models.Embedding{0.9, 1}, candidates[:1], DefaultThreshold)
	assert.False(t, ok)
	assert.Zero(t, id)

	// Dimension passt nicht zum Index: exakte Suche als Rückfall
	_, ok = n.Match(models.Embedding{0, 0, 0}, candidates[:1], DefaultThreshold)
	assert.False(t, ok)
}

func TestNearestReusedProfileID(t *testing.T) {
	n := NewNearest()
	query := models.Embedding{0.1, 0}

	id, ok := n.Match(query, []repository.ProfileEmbedding{{ID: 1, Embedding: models.Embedding{0, 0}}}, DefaultThreshold)
	require.True(t, ok)
	assert.Equal(t, uint(1), id)

	// Alle Profile zurückgerollt, danach vergibt SQLite die ID 1 neu
	_, ok = n.Match(query, nil, DefaultThreshold)
	assert.False(t, ok)

	id, ok = n.Match(query, []repository.ProfileEmbedding{{ID: 1, Embedding: models.Embedding{10, 10}}}, DefaultThreshold)
	assert.False(t, ok)
	assert.Zero(t, id)
}

func TestNearestChangedEmbeddingRebuilds(t *testing.T) {
	n := NewNearest()
	query := models.Embedding{10, 10}
	candidates := []repository.ProfileEmbedding{
		{ID: 1, Embedding: models.Embedding{0, 0}},
		{ID: 2, Embedding: models.Embedding{5, 5}},
	}

	_, ok := n.Match(query, candidates, DefaultThreshold)
	require.False(t, ok)

	// Gleiche IDs, Profil 2 nach Rollback mit neuem Embedding angelegt
	candidates[1].Embedding = models.Embedding{10, 10.1}
	id, ok := n.Match(query, candidates, DefaultThreshold)
	require.True(t, ok)
	assert.Equal(t, uint(2), id)
}
