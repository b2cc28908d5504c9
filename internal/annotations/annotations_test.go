package annotations

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/inspector/internal/cache"
	"github.com/OCAP2/inspector/internal/config"
	"github.com/OCAP2/inspector/internal/database"
)

func newStore(t *testing.T) (*Store, *database.Manager) {
	t.Helper()
	m := database.NewManager(config.AnnotationsConfig{Driver: database.DriverSQLite}, config.DBConfig{}, zerolog.Nop())
	require.NoError(t, m.Connect())
	t.Cleanup(func() { m.Close() })
	require.NoError(t, m.Setup(Models()...))
	return NewStore(m.DB, zerolog.Nop()), m
}

func TestAdd_FillsDefaults(t *testing.T) {
	s, _ := newStore(t)

	c, err := s.Add(context.Background(), Comment{Recording: "op_alpha", Frame: 12, Text: "  flank here  "})
	require.NoError(t, err)
	assert.Len(t, c.ID, 36)
	assert.False(t, c.CreatedAt.IsZero())
	assert.Equal(t, "flank here", c.Text)
	assert.JSONEq(t, "{}", string(c.Metadata))
	assert.Equal(t, 1, s.Pending())
}

func TestAdd_Validation(t *testing.T) {
	s, _ := newStore(t)

	_, err := s.Add(context.Background(), Comment{Recording: "op_alpha", Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyText)
	_, err = s.Add(context.Background(), Comment{Text: "x"})
	assert.ErrorIs(t, err, ErrNoRecording)
	assert.Zero(t, s.Pending())
}

func TestAdd_FlushesFullBatch(t *testing.T) {
	s, m := newStore(t)
	s.SetBatchSize(2)

	for i := 0; i < 3; i++ {
		_, err := s.Add(context.Background(), Comment{Recording: "op_alpha", Frame: uint(i), Text: "n"})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, s.Pending())

	var count int64
	require.NoError(t, m.DB.Model(&Comment{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestList_RangeAndOrder(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	add := func(rec string, frame uint, text string, at time.Duration) {
		_, err := s.Add(ctx, Comment{Recording: rec, Frame: frame, Text: text, CreatedAt: base.Add(at)})
		require.NoError(t, err)
	}
	add("op_alpha", 30, "late", 0)
	add("op_alpha", 10, "second", 2*time.Second)
	add("op_alpha", 10, "first", time.Second)
	add("op_alpha", 99, "outside", 0)
	add("op_bravo", 20, "other", 0)

	got, err := s.List(ctx, "op_alpha", 10, 30)
	require.NoError(t, err)
	assert.Zero(t, s.Pending())

	var texts []string
	for _, c := range got {
		texts = append(texts, c.Text)
	}
	assert.Equal(t, []string{"first", "second", "late"}, texts)
}

func TestForEntity_UsesClientLocalKey(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	ids := cache.NewEntityIDs()
	merged := ids.Unique(2, 7)
	other := ids.Unique(1, 7)

	c := Comment{Recording: "op_alpha", Frame: 4, Text: "medic", Metadata: MetadataMap(map[string]any{"tag": "support"})}
	require.NoError(t, c.Attach(ids, merged))
	assert.Equal(t, cache.EntityKey{ClientID: 2, LocalID: 7}, c.Key())
	_, err := s.Add(ctx, c)
	require.NoError(t, err)

	c2 := Comment{Recording: "op_alpha", Frame: 4, Text: "rifleman"}
	require.NoError(t, c2.Attach(ids, other))
	_, err = s.Add(ctx, c2)
	require.NoError(t, err)

	got, err := s.ForEntity(ctx, "op_alpha", cache.EntityKey{ClientID: 2, LocalID: 7})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "medic", got[0].Text)

	var meta map[string]string
	require.NoError(t, json.Unmarshal(got[0].Metadata, &meta))
	assert.Equal(t, "support", meta["tag"])
}

func TestAttach_UnknownEntity(t *testing.T) {
	var c Comment
	assert.ErrorIs(t, c.Attach(cache.NewEntityIDs(), 5), ErrUnknownEntity)
}

func TestDelete(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	queued, err := s.Add(ctx, Comment{Recording: "op_alpha", Text: "queued"})
	require.NoError(t, err)
	ok, err := s.Delete(ctx, queued.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, s.Pending())

	stored, err := s.Add(ctx, Comment{Recording: "op_alpha", Text: "stored"})
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))
	ok, err = s.Delete(ctx, stored.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete(ctx, stored.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFlush_FailureKeepsPending(t *testing.T) {
	s, m := newStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, Comment{Recording: "op_alpha", Text: "kept"})
	require.NoError(t, err)
	require.NoError(t, m.Close())

	require.Error(t, s.Flush(ctx))
	assert.Equal(t, 1, s.Pending())
}

func TestMetadataMap_Empty(t *testing.T) {
	assert.Equal(t, "{}", string(MetadataMap(nil)))
}
