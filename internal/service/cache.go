// cache.go — LRU-кэш справочных значений с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
// Ключ — имя категории, значение — отсортированный срез активных значений.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/tasktrack/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tt_dropdown_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш справочников.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tt_dropdown_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша справочников.",
	})
)

// DropdownCache — LRU-кэш значений справочников с автоматическим TTL.
// Каждый экземпляр приложения имеет собственный in-memory кэш.
type DropdownCache struct {
	cache *expirable.LRU[string, []*model.DropdownValue]
}

// NewDropdownCache создаёт LRU-кэш с указанным максимальным размером и TTL.
// maxSize — максимальное количество категорий в кэше.
// ttl — время жизни записи после добавления.
func NewDropdownCache(maxSize int, ttl time.Duration) *DropdownCache {
	cache := expirable.NewLRU[string, []*model.DropdownValue](maxSize, nil, ttl)
	return &DropdownCache{cache: cache}
}

// Get возвращает значения категории из кэша.
// Возвращает (значения, true) при hit или (nil, false) при miss.
// Обновляет Prometheus-метрики hit/miss.
func (c *DropdownCache) Get(category string) ([]*model.DropdownValue, bool) {
	val, ok := c.cache.Get(category)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет категорию в кэше.
func (c *DropdownCache) Set(category string, values []*model.DropdownValue) {
	c.cache.Add(category, values)
}

// Invalidate удаляет категорию из кэша (после мутации справочника).
func (c *DropdownCache) Invalidate(category string) {
	c.cache.Remove(category)
}

// Purge полностью очищает кэш.
func (c *DropdownCache) Purge() {
	c.cache.Purge()
}
