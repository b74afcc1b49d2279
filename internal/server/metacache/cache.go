// Package metacache keeps resolved file metadata in process memory so that
// repeated requests for the same link skip the backend metadata read.
package metacache

import (
	"strconv"
	"time"

	"github.com/dmitrijs2005/tgfilestream/internal/server/models"
	"github.com/patrickmn/go-cache"
)

type Cache struct {
	c *cache.Cache
}

// New returns a cache whose entries expire after ttl. Expired entries are
// swept every 2*ttl.
func New(ttl time.Duration) *Cache {
	return &Cache{c: cache.New(ttl, 2*ttl)}
}

func key(messageID int64) string {
	return strconv.FormatInt(messageID, 10)
}

// Get returns a copy of the cached metadata for messageID.
func (c *Cache) Get(messageID int64) (*models.FileInfo, bool) {
	v, ok := c.c.Get(key(messageID))
	if !ok {
		return nil, false
	}
	info := v.(models.FileInfo)
	return &info, true
}

func (c *Cache) Set(messageID int64, info *models.FileInfo) {
	if info == nil {
		return
	}
	c.c.SetDefault(key(messageID), *info)
}

// Delete drops messageID, e.g. after the file was revoked.
func (c *Cache) Delete(messageID int64) {
	c.c.Delete(key(messageID))
}
