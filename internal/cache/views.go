package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/membership-api/internal/invalidation"
	"github.com/benvon/membership-api/internal/logger"
	"github.com/benvon/membership-api/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	viewKeyPrefix       = "user_view:"
	generationKeyPrefix = "user_view_gen:"
	minGenerationTTL    = time.Hour
)

// errStaleView aborts a conditional write whose generation moved on.
var errStaleView = errors.New("user view changed while loading")

// ViewCache stores serialized user records keyed by identity. It is an
// invalidation.Notifier: any change to a user drops that user's entry and bumps the
// identity's generation, so loads that started before the change cannot store it back.
type ViewCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    *zap.Logger
}

// NewViewCache creates a cache whose entries expire after ttl.
func NewViewCache(client redis.UniversalClient, ttl time.Duration, log *zap.Logger) *ViewCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &ViewCache{client: client, ttl: ttl, log: log}
}

func viewKey(identity string) string {
	return viewKeyPrefix + identity
}

func generationKey(identity string) string {
	return generationKeyPrefix + identity
}

func (c *ViewCache) generationTTL() time.Duration {
	return max(2*c.ttl, minGenerationTTL)
}

// Generation returns the invalidation counter for identity; "" means never invalidated.
func (c *ViewCache) Generation(ctx context.Context, identity string) (string, error) {
	gen, err := c.client.Get(ctx, generationKey(identity)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read user view generation: %w", err)
	}
	return gen, nil
}

// Get returns the cached user for identity; ok is false on a miss.
func (c *ViewCache) Get(ctx context.Context, identity string) (user *models.User, ok bool, err error) {
	raw, err := c.client.Get(ctx, viewKey(identity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read user view: %w", err)
	}
	user = &models.User{}
	if err := json.Unmarshal(raw, user); err != nil {
		// A corrupt entry is treated as a miss and removed.
		_ = c.client.Del(ctx, viewKey(identity)).Err()
		return nil, false, nil
	}
	return user, true, nil
}

// Set stores user until the TTL elapses.
func (c *ViewCache) Set(ctx context.Context, user *models.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user view: %w", err)
	}
	if err := c.client.Set(ctx, viewKey(user.Identity), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write user view: %w", err)
	}
	return nil
}

// SetIfUnchanged stores user only if the identity's generation still equals gen, as
// read by Generation before the user was loaded. stored is false when an invalidation
// happened in between.
func (c *ViewCache) SetIfUnchanged(ctx context.Context, user *models.User, gen string) (stored bool, err error) {
	raw, err := json.Marshal(user)
	if err != nil {
		return false, fmt.Errorf("failed to encode user view: %w", err)
	}
	genKey := generationKey(user.Identity)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleView
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, viewKey(user.Identity), raw, c.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errStaleView), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("failed to write user view: %w", err)
	}
}

// Purge removes the cached view for identity and advances its generation.
func (c *ViewCache) Purge(ctx context.Context, identity string) error {
	genKey := generationKey(identity)
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, genKey)
		p.Expire(ctx, genKey, c.generationTTL())
		p.Del(ctx, viewKey(identity))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to purge user view: %w", err)
	}
	return nil
}

// Notify implements invalidation.Notifier.
func (c *ViewCache) Notify(ctx context.Context, ev invalidation.Event) error {
	return c.Purge(ctx, ev.Identity)
}

// UserStore is the lookup and create surface of the user repository.
type UserStore interface {
	GetByIdentity(ctx context.Context, identity string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

// ReadThrough serves identity lookups from the cache and falls back to the store.
// Cache failures degrade to store reads; they never fail the lookup.
type ReadThrough struct {
	store UserStore
	cache *ViewCache
}

// NewReadThrough wraps store with cache.
func NewReadThrough(store UserStore, cache *ViewCache) *ReadThrough {
	return &ReadThrough{store: store, cache: cache}
}

// GetByIdentity implements provisioning.Store.
func (rt *ReadThrough) GetByIdentity(ctx context.Context, identity string) (*models.User, error) {
	if user, ok, err := rt.cache.Get(ctx, identity); err != nil {
		rt.cache.log.Warn("user_view_cache_read_failed",
			zap.String("identity", logger.SanitizeIdentity(identity)),
			zap.Error(err),
		)
	} else if ok {
		return user, nil
	}

	gen, genErr := rt.cache.Generation(ctx, identity)
	user, err := rt.store.GetByIdentity(ctx, identity)
	if err != nil || user == nil {
		return user, err
	}
	if genErr == nil {
		rt.remember(ctx, user, gen)
	}
	return user, nil
}

// Create implements provisioning.Store. The new record is not cached here; the
// repository's created notification would purge it immediately anyway.
func (rt *ReadThrough) Create(ctx context.Context, user *models.User) (*models.User, error) {
	return rt.store.Create(ctx, user)
}

func (rt *ReadThrough) remember(ctx context.Context, user *models.User, gen string) {
	stored, err := rt.cache.SetIfUnchanged(ctx, user, gen)
	if err != nil {
		rt.cache.log.Warn("user_view_cache_write_failed",
			zap.String("identity", logger.SanitizeIdentity(user.Identity)),
			zap.Error(err),
		)
		return
	}
	if !stored {
		rt.cache.log.Debug("user_view_cache_write_skipped_stale",
			zap.String("identity", logger.SanitizeIdentity(user.Identity)),
		)
	}
}
