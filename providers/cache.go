package providers

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"refcheck/models"
)

// Cache hält eindeutige Findings für SOURCE_CACHE_TTL, damit wiederholte Läufe die Quellen schonen.
type Cache struct {
	store *gocache.Cache
}

// NewCache erstellt einen Cache; ttl <= 0 liefert nil (kein Caching).
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		return nil
	}
	return &Cache{store: gocache.New(ttl, ttl/2)}
}

// Get liefert ein gecachtes Finding.
func (c *Cache) Get(key string) (Finding, bool) {
	if c == nil {
		return Finding{}, false
	}
	v, ok := c.store.Get(key)
	if !ok {
		return Finding{}, false
	}
	f, ok := v.(Finding)
	return f, ok
}

// Set speichert ein Finding mit Standard-TTL.
func (c *Cache) Set(key string, f Finding) {
	if c == nil {
		return
	}
	c.store.SetDefault(key, f)
}

// Flush leert den Cache.
func (c *Cache) Flush() {
	if c == nil {
		return
	}
	c.store.Flush()
}

// cachedSource legt einen Cache vor eine Quelle. Nur eindeutige Antworten werden gemerkt.
type cachedSource struct {
	Source
	cache *Cache
}

// Cached umhüllt src mit cache; bei nil-Cache wird src unverändert zurückgegeben.
func Cached(src Source, cache *Cache) Source {
	if cache == nil {
		return src
	}
	return &cachedSource{Source: src, cache: cache}
}

func (s *cachedSource) Check(ctx context.Context, w *models.Work) (Finding, error) {
	key := CacheKey(s.Name(), w)
	if f, ok := s.cache.Get(key); ok {
		return f, nil
	}
	f, err := s.Source.Check(ctx, w)
	if err == nil && f.Definitive() {
		s.cache.Set(key, f)
	}
	return f, err
}

// CacheKey bildet den Schlüssel aus Quelle und allen Identifikatoren des Werks.
func CacheKey(source string, w *models.Work) string {
	parts := []string{
		source,
		strings.ToLower(models.Str(w.DOI)),
		models.Str(w.URL),
		models.Str(w.PMID),
		models.Str(w.ArxivID),
		strings.ToLower(strings.TrimSpace(w.Title)),
		strings.ToLower(w.FirstAuthorFamily()),
	}
	return strings.Join(parts, "|")
}
