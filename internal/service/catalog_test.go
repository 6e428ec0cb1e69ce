package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/deckstore/internal/domain/model"
	"github.com/bigkaa/deckstore/internal/manifest"
)

func TestCatalog_StartsEmpty(t *testing.T) {
	c := NewCatalog(nil, testLogger())
	snap := c.Snapshot()
	assert.Empty(t, snap.Records)
	assert.Empty(t, snap.Source)
}

func TestCatalog_FirstNonEmptySourceWins(t *testing.T) {
	primary := &staticSource{name: "postgres", records: []model.DeckRecord{{ID: "1", Title: "A"}}}
	fallback := &staticSource{name: "manifest", records: []model.DeckRecord{{FileName: "b.apkg", Title: "B"}}}
	c := NewCatalog([]CatalogSource{primary, fallback}, testLogger())

	snap, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "postgres", snap.Source)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "A", snap.Records[0].Title)
	assert.Zero(t, fallback.calls, "источники не объединяются")
}

func TestCatalog_FallsBackOnEmptyAndError(t *testing.T) {
	empty := &staticSource{name: "postgres"}
	broken := &staticSource{name: "firestore", err: errBackendDown}
	fallback := &staticSource{name: "manifest", records: []model.DeckRecord{{FileName: "b.apkg", Title: "B"}}}
	c := NewCatalog([]CatalogSource{empty, broken, fallback}, testLogger())

	snap, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "manifest", snap.Source)
	assert.Len(t, snap.Records, 1)
}

func TestCatalog_EmptyCatalog(t *testing.T) {
	c := NewCatalog([]CatalogSource{&staticSource{name: "postgres"}, &staticSource{name: "manifest"}}, testLogger())

	snap, err := c.Load(context.Background())
	assert.True(t, errors.Is(err, ErrEmptyCatalog))
	assert.False(t, errors.Is(err, ErrCatalogUnavailable))
	assert.Empty(t, snap.Records)
}

func TestCatalog_UnavailableKeepsPreviousSnapshot(t *testing.T) {
	src := &staticSource{name: "postgres", records: []model.DeckRecord{{ID: "1", Title: "A"}}}
	c := NewCatalog([]CatalogSource{src}, testLogger())

	_, err := c.Load(context.Background())
	require.NoError(t, err)

	src.records = nil
	src.err = errBackendDown
	snap, err := c.Load(context.Background())
	assert.True(t, errors.Is(err, ErrCatalogUnavailable))
	assert.True(t, errors.Is(err, errBackendDown))
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "A", c.Snapshot().Records[0].Title)
}

func TestCatalog_EmptyLoadReplacesSnapshot(t *testing.T) {
	src := &staticSource{name: "postgres", records: []model.DeckRecord{{ID: "1"}}}
	c := NewCatalog([]CatalogSource{src}, testLogger())
	_, err := c.Load(context.Background())
	require.NoError(t, err)

	src.records = nil
	_, err = c.Load(context.Background())
	assert.True(t, errors.Is(err, ErrEmptyCatalog))
	assert.Empty(t, c.Snapshot().Records)
}

func TestCatalog_LoadIsIdempotent(t *testing.T) {
	repo := newMemRepo("pg")
	for _, title := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Insert(context.Background(), &model.DeckRecord{Title: title, FileName: title + ".apkg"}))
	}
	c := NewCatalog([]CatalogSource{NewRecordStoreSource(repo, model.DefaultExtensions)}, testLogger())

	first, err := c.Load(context.Background())
	require.NoError(t, err)
	second, err := c.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Records, second.Records)
	assert.Equal(t, "c", first.Records[0].Title, "новые записи первыми")
}

func TestStaticManifestSource_MissingFileIsEmpty(t *testing.T) {
	src := NewStaticManifestSource(filepath.Join(t.TempDir(), "decks.json"), model.DefaultExtensions)

	records, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStaticManifestSource_PreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decks.json")
	require.NoError(t, manifest.WriteFile(path, []model.ManifestEntry{
		{FileName: "z.apkg", Title: "Zoology", Size: 1, URL: "decks/z.apkg"},
		{FileName: "a_b.zip", Size: 2, URL: "decks/a_b.zip"},
	}))
	src := NewStaticManifestSource(path, model.DefaultExtensions)

	records, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Zoology", records[0].Title)
	assert.Equal(t, "a b", records[1].Title)
	assert.Empty(t, records[1].ID)
	assert.Equal(t, "a_b.zip", records[1].Key())
}

func TestStaticManifestSource_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decks.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewStaticManifestSource(path, model.DefaultExtensions).Fetch(context.Background())
	assert.Error(t, err)
}

func TestRecordStoreSource_Error(t *testing.T) {
	repo := newMemRepo("pg")
	repo.listErr = errBackendDown

	_, err := NewRecordStoreSource(repo, model.DefaultExtensions).Fetch(context.Background())
	assert.True(t, errors.Is(err, errBackendDown))
}

func TestSnapshot_Find(t *testing.T) {
	snap := Snapshot{Records: []model.DeckRecord{{ID: "x1", FileName: "a.apkg"}, {FileName: "b.apkg"}}}

	rec, ok := snap.Find("b.apkg")
	require.True(t, ok)
	assert.Equal(t, "b.apkg", rec.FileName)

	_, ok = snap.Find("a.apkg")
	assert.False(t, ok, "запись с ID ищется только по ID")
}
