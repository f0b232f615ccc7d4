package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Generation counts the invalidations of one resource-day.
type Generation int64

// RollupCache stores resource-day rollups. Get reports the generation of the
// key it read, hit or miss. Set stores a rollup only while that generation is
// still current and reports whether it did. Invalidate drops the rollup and
// advances the generation, so a rollup computed before a commit is never
// written after it.
type RollupCache interface {
	Get(ctx context.Context, resourceID int64, date string) (ResourceDay, Generation, bool, error)
	Set(ctx context.Context, day ResourceDay, gen Generation) (bool, error)
	Invalidate(ctx context.Context, resourceID int64, date string) error
}

type memoryEntry struct {
	day     ResourceDay
	expires time.Time
}

// MemoryCache is the in-process RollupCache. A zero ttl keeps entries until
// they are invalidated.
type MemoryCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	days map[key]memoryEntry
	gens map[key]Generation
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:  ttl,
		now:  time.Now,
		days: make(map[key]memoryEntry),
		gens: make(map[key]Generation),
	}
}

func (c *MemoryCache) Get(_ context.Context, resourceID int64, date string) (ResourceDay, Generation, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{resourceID, date}
	entry, ok := c.days[k]
	if ok && !entry.expires.IsZero() && !c.now().Before(entry.expires) {
		delete(c.days, k)
		ok = false
	}
	return entry.day, c.gens[k], ok, nil
}

func (c *MemoryCache) Set(_ context.Context, day ResourceDay, gen Generation) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{day.ResourceID, day.Date}
	if c.gens[k] != gen {
		return false, nil
	}
	entry := memoryEntry{day: day}
	if c.ttl > 0 {
		entry.expires = c.now().Add(c.ttl)
	}
	c.days[k] = entry
	return true, nil
}

func (c *MemoryCache) Invalidate(_ context.Context, resourceID int64, date string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{resourceID, date}
	delete(c.days, k)
	c.gens[k]++
	return nil
}

const (
	defaultRedisTTL = 15 * time.Minute
	generationTTL   = 24 * time.Hour
)

var errStaleGeneration = errors.New("rollup generation moved")

// RedisCache keeps rollups in Redis as JSON under "stats:rollup:<resource>:<date>"
// and their generation under "stats:gen:<resource>:<date>". Set runs under
// WATCH on the generation key.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func redisKey(resourceID int64, date string) string {
	return fmt.Sprintf("stats:rollup:%d:%s", resourceID, date)
}

func generationKey(resourceID int64, date string) string {
	return fmt.Sprintf("stats:gen:%d:%s", resourceID, date)
}

func parseGeneration(v any) (Generation, error) {
	if v == nil {
		return 0, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected generation value %T", v)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse generation: %w", err)
	}
	return Generation(n), nil
}

func (c *RedisCache) Get(ctx context.Context, resourceID int64, date string) (ResourceDay, Generation, bool, error) {
	vals, err := c.client.MGet(ctx, redisKey(resourceID, date), generationKey(resourceID, date)).Result()
	if err != nil {
		return ResourceDay{}, 0, false, fmt.Errorf("redis get rollup: %w", err)
	}
	gen, err := parseGeneration(vals[1])
	if err != nil {
		return ResourceDay{}, 0, false, err
	}
	if vals[0] == nil {
		return ResourceDay{}, gen, false, nil
	}
	data, ok := vals[0].(string)
	if !ok {
		return ResourceDay{}, gen, false, fmt.Errorf("unexpected rollup value %T", vals[0])
	}
	var day ResourceDay
	if err := json.Unmarshal([]byte(data), &day); err != nil {
		return ResourceDay{}, gen, false, fmt.Errorf("decode rollup: %w", err)
	}
	return day, gen, true, nil
}

func (c *RedisCache) Set(ctx context.Context, day ResourceDay, gen Generation) (bool, error) {
	data, err := json.Marshal(day)
	if err != nil {
		return false, fmt.Errorf("encode rollup: %w", err)
	}
	gk := generationKey(day.ResourceID, day.Date)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, gk).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if Generation(current) != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey(day.ResourceID, day.Date), data, c.ttl)
			return nil
		})
		return err
	}, gk)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("redis set rollup: %w", err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, resourceID int64, date string) error {
	gk := generationKey(resourceID, date)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, gk)
		pipe.Expire(ctx, gk, generationTTL)
		pipe.Del(ctx, redisKey(resourceID, date))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate rollup: %w", err)
	}
	return nil
}
