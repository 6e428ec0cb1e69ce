// CacheService — LRU-кэш записей о колодах с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/deckstore/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deckstore_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш записей о колодах.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deckstore_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша записей о колодах.",
	})
	cacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deckstore_cache_entries",
		Help: "Количество записей в LRU-кэше после последнего изменения.",
	})
)

// CacheService — кэш записей для разрешения ссылок на скачивание.
// Кэш локален для экземпляра сервиса.
type CacheService struct {
	cache *expirable.LRU[string, model.DeckRecord]
}

// NewCacheService создаёт LRU-кэш с указанным размером и TTL.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	return &CacheService{cache: expirable.NewLRU[string, model.DeckRecord](maxSize, nil, ttl)}
}

// Get возвращает копию записи по ключу.
func (c *CacheService) Get(key string) (model.DeckRecord, bool) {
	val, ok := c.cache.Get(key)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return model.DeckRecord{}, false
}

// Set добавляет или обновляет запись.
func (c *CacheService) Set(key string, record model.DeckRecord) {
	c.cache.Add(key, record)
	cacheEntries.Set(float64(c.Len()))
}

// Delete инвалидирует запись.
func (c *CacheService) Delete(key string) {
	c.cache.Remove(key)
	cacheEntries.Set(float64(c.Len()))
}

// Len — текущее количество записей.
func (c *CacheService) Len() int {
	return c.cache.Len()
}
