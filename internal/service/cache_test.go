package service

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/bigkaa/deckstore/internal/domain/model"
)

func TestCacheService_SetGetDelete(t *testing.T) {
	c := NewCacheService(10, time.Minute)

	_, ok := c.Get("d1")
	assert.False(t, ok)

	c.Set("d1", model.DeckRecord{ID: "d1", Title: "Deck"})
	rec, ok := c.Get("d1")
	assert.True(t, ok)
	assert.Equal(t, "Deck", rec.Title)
	assert.Equal(t, 1, c.Len())

	c.Delete("d1")
	_, ok = c.Get("d1")
	assert.False(t, ok)
}

func TestCacheService_Eviction(t *testing.T) {
	c := NewCacheService(2, time.Minute)
	c.Set("a", model.DeckRecord{ID: "a"})
	c.Set("b", model.DeckRecord{ID: "b"})
	c.Set("c", model.DeckRecord{ID: "c"})

	_, ok := c.Get("a")
	assert.False(t, ok, "старейшая запись вытеснена")
	assert.Equal(t, 2, c.Len())
}

func TestCacheService_TTL(t *testing.T) {
	c := NewCacheService(10, 50*time.Millisecond)
	c.Set("a", model.DeckRecord{ID: "a"})

	time.Sleep(120 * time.Millisecond)
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCacheService_EntriesGauge(t *testing.T) {
	c := NewCacheService(10, time.Minute)
	c.Set("a", model.DeckRecord{ID: "a"})
	c.Set("b", model.DeckRecord{ID: "b"})
	assert.Equal(t, float64(2), testutil.ToFloat64(cacheEntries))

	c.Delete("a")
	assert.Equal(t, float64(1), testutil.ToFloat64(cacheEntries))
}
