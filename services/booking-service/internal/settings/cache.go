// Package settings caches per-business booking settings in front of storage.
package settings

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/storage"
)

// Loader reads settings from the authoritative store.
type Loader func(ctx context.Context, businessID string) (model.Settings, error)

type Cache struct {
	lru  *expirable.LRU[string, model.Settings]
	load Loader
}

func NewCache(load Loader, size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{lru: expirable.NewLRU[string, model.Settings](size, nil, ttl), load: load}
}

// StoreLoader reads settings through a Store, applying defaults when the
// business has no settings row.
func StoreLoader(st storage.Store) Loader {
	return func(ctx context.Context, businessID string) (model.Settings, error) {
		var s model.Settings
		err := st.Read(ctx, func(q storage.Queries) error {
			var err error
			s, err = q.GetSettings(ctx, businessID)
			if storage.IsNotFound(err) {
				s, err = model.DefaultSettings(businessID), nil
			}
			return err
		})
		return s, err
	}
}

func (c *Cache) Get(ctx context.Context, businessID string) (model.Settings, error) {
	if s, ok := c.lru.Get(businessID); ok {
		return s, nil
	}
	s, err := c.load(ctx, businessID)
	if err != nil {
		return model.Settings{}, err
	}
	c.lru.Add(businessID, s)
	return s, nil
}

func (c *Cache) Invalidate(businessID string) {
	c.lru.Remove(businessID)
}
