package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/deckstore/internal/domain/model"
	"github.com/bigkaa/deckstore/internal/storage/objectstore"
)

func TestReconcile_DetectsOrphansAndMissing(t *testing.T) {
	store := newMemStore()
	repo := newMemRepo("pg")
	ctx := context.Background()

	// Согласованная пара
	_, err := store.Put(ctx, "decks/1_ok.apkg", strings.NewReader("ok"), 2, nil)
	require.NoError(t, err)
	repo.put(model.DeckRecord{ID: "ok", StoragePath: "decks/1_ok.apkg"})
	// Объект без записи
	_, err = store.Put(ctx, "decks/2_orphan.apkg", strings.NewReader("orphan"), 6, nil)
	require.NoError(t, err)
	// Запись без объекта
	repo.put(model.DeckRecord{ID: "gone", StoragePath: "decks/3_gone.apkg"})
	// Запись вне префикса и запись манифеста не проверяются
	repo.put(model.DeckRecord{ID: "legacy", StoragePath: "legacy/4.apkg"})
	repo.put(model.DeckRecord{ID: "static"})

	rs := NewReconcileService(store, repo, "decks", 0, testLogger())
	report, err := rs.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.ObjectsChecked)
	assert.Equal(t, 2, report.RecordsChecked)
	require.Len(t, report.Issues, 2)
	assert.Equal(t, IssueMissingObject, report.Issues[0].Type)
	assert.Equal(t, "decks/3_gone.apkg", report.Issues[0].Key)
	assert.Equal(t, "gone", report.Issues[0].DeckID)
	assert.Equal(t, IssueOrphanedObject, report.Issues[1].Type)
	assert.Equal(t, "decks/2_orphan.apkg", report.Issues[1].Key)
	assert.Equal(t, int64(6), report.Issues[1].Size)
	assert.Equal(t, ReconcileSummary{OrphanedObjects: 1, MissingObjects: 1, Ok: 1}, report.Summary)

	// Сверка ничего не удаляет
	assert.Zero(t, store.deleteCalls)
	assert.False(t, report.CompletedAt.Before(report.StartedAt))
}

func TestReconcile_IgnoresSiblingPrefix(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	_, err := store.Put(ctx, "decks-old/x.apkg", strings.NewReader("old"), 3, nil)
	require.NoError(t, err)
	_, err = store.Put(ctx, "decks/y.apkg", strings.NewReader("new"), 3, nil)
	require.NoError(t, err)

	rs := NewReconcileService(store, newMemRepo("pg"), "/decks/", 0, testLogger())
	report, err := rs.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, "decks/", store.listPrefix)
	assert.Equal(t, 1, report.ObjectsChecked)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "decks/y.apkg", report.Issues[0].Key)
}

func TestCompareKeys_SkipsObjectsOutsidePrefix(t *testing.T) {
	objects := []objectstore.ObjectInfo{
		{Key: "decks/a.apkg", Size: 1},
		{Key: "decks-old/b.apkg", Size: 2},
		{Key: "decksb.apkg", Size: 3},
	}
	decks := []*model.DeckRecord{{ID: "a", StoragePath: "decks/a.apkg"}}

	report := compareKeys(objects, decks, "decks")

	assert.Equal(t, 1, report.ObjectsChecked)
	assert.Empty(t, report.Issues)
	assert.Equal(t, ReconcileSummary{Ok: 1}, report.Summary)
}

func TestCompareKeys_EmptyPrefixChecksEverything(t *testing.T) {
	objects := []objectstore.ObjectInfo{{Key: "a.apkg"}, {Key: "nested/b.apkg"}}

	report := compareKeys(objects, nil, "")

	assert.Equal(t, 2, report.ObjectsChecked)
	assert.Equal(t, 2, report.Summary.OrphanedObjects)
}

func TestReconcile_CleanState(t *testing.T) {
	rs := NewReconcileService(newMemStore(), newMemRepo("pg"), "decks", 0, testLogger())

	report, err := rs.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Issues)
	assert.NotNil(t, report.Issues)
}

func TestReconcile_ListError(t *testing.T) {
	store := newMemStore()
	store.listErr = errBackendDown
	rs := NewReconcileService(store, newMemRepo("pg"), "decks", 0, testLogger())

	_, err := rs.RunOnce(context.Background())
	assert.True(t, errors.Is(err, errBackendDown))
	assert.False(t, rs.IsInProgress())
}

func TestReconcile_RepoError(t *testing.T) {
	repo := newMemRepo("pg")
	repo.listErr = errBackendDown
	rs := NewReconcileService(newMemStore(), repo, "decks", 0, testLogger())

	_, err := rs.RunOnce(context.Background())
	assert.True(t, errors.Is(err, errBackendDown))
}

func TestReconcile_SkipsConcurrentRun(t *testing.T) {
	rs := NewReconcileService(newMemStore(), newMemRepo("pg"), "decks", 0, testLogger())
	rs.inProcess = true

	_, err := rs.RunOnce(context.Background())
	assert.True(t, errors.Is(err, ErrReconcileInProgress))
}

func TestReconcile_StartStop(t *testing.T) {
	rs := NewReconcileService(newMemStore(), newMemRepo("pg"), "decks", 10*time.Millisecond, testLogger())

	rs.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	rs.Stop()

	assert.False(t, rs.IsInProgress())
}

func TestReconcile_DisabledInterval(t *testing.T) {
	rs := NewReconcileService(newMemStore(), newMemRepo("pg"), "decks", 0, testLogger())

	rs.Start(context.Background())
	// Stop без запущенного цикла не блокируется
	rs.Stop()
}
