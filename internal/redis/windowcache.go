package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

// WindowCache stores each professional's weekly windows as one JSON value.
type WindowCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewWindowCache(client redis.Cmdable, ttl time.Duration) *WindowCache {
	return &WindowCache{client: client, ttl: ttl}
}

func windowsKey(professionalID uuid.UUID) string {
	return fmt.Sprintf("windows:professional:%s", professionalID)
}

// generationKey has no TTL so the counter outlives the cached value.
func generationKey(professionalID uuid.UUID) string {
	return fmt.Sprintf("windows:professional:%s:generation", professionalID)
}

func (c *WindowCache) Get(ctx context.Context, professionalID uuid.UUID) ([]schedule.Window, int64, bool, error) {
	vals, err := c.client.MGet(ctx, windowsKey(professionalID), generationKey(professionalID)).Result()
	if err != nil {
		return nil, 0, false, fmt.Errorf("get cached windows: %w", err)
	}

	generation, err := parseGeneration(vals[1])
	if err != nil {
		return nil, 0, false, err
	}
	data, ok := vals[0].(string)
	if !ok {
		return nil, generation, false, nil
	}

	var windows []schedule.Window
	if err := json.Unmarshal([]byte(data), &windows); err != nil {
		return nil, 0, false, fmt.Errorf("decode cached windows: %w", err)
	}
	return windows, generation, true, nil
}

var setIfGenerationScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[2]) or "0"
if cur ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// Set stores windows unless an Invalidate ran since Get observed generation.
func (c *WindowCache) Set(ctx context.Context, professionalID uuid.UUID, generation int64, windows []schedule.Window) (bool, error) {
	data, err := json.Marshal(windows)
	if err != nil {
		return false, fmt.Errorf("encode windows: %w", err)
	}
	keys := []string{windowsKey(professionalID), generationKey(professionalID)}
	stored, err := setIfGenerationScript.Run(ctx, c.client, keys,
		strconv.FormatInt(generation, 10), data, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("set cached windows: %w", err)
	}
	return stored == 1, nil
}

var invalidateScript = redis.NewScript(`
redis.call("INCR", KEYS[2])
return redis.call("DEL", KEYS[1])
`)

func (c *WindowCache) Invalidate(ctx context.Context, professionalID uuid.UUID) error {
	keys := []string{windowsKey(professionalID), generationKey(professionalID)}
	if err := invalidateScript.Run(ctx, c.client, keys).Err(); err != nil {
		return fmt.Errorf("invalidate cached windows: %w", err)
	}
	return nil
}

func parseGeneration(v any) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse window cache generation %q: %w", s, err)
	}
	return n, nil
}

var _ schedule.WindowCache = (*WindowCache)(nil)
