package documents

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/satriahrh/cocoa-fruit/pdfchat/domain"
)

// Cache maps a content hash to an uploaded document. The TTL must stay
// below the provider's file retention (48h for the Gemini Files API).
type Cache struct {
	c *cache.Cache
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{c: cache.New(ttl, time.Hour)}
}

func (c *Cache) Get(hash string) (domain.DocumentReference, bool) {
	v, ok := c.c.Get(hash)
	if !ok {
		return domain.DocumentReference{}, false
	}
	return v.(domain.DocumentReference), true
}

func (c *Cache) Put(hash string, doc domain.DocumentReference) {
	c.c.SetDefault(hash, doc)
}
