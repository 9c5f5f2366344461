// Package redisstore keeps records in Redis hashes, one hash per corridor/room/date.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"inspection/internal/models"
	"inspection/internal/storage"
)

const keyPrefix = "inspection:"

// upsertScript writes a slot unless the stored one was committed later.
// KEYS[1] record hash, KEYS[2] date index set; ARGV: type, json, committed micros.
var upsertScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], ARGV[1] .. ':ts')
if current and tonumber(current) > tonumber(ARGV[3]) then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2], ARGV[1] .. ':ts', ARGV[3])
redis.call('SADD', KEYS[2], KEYS[1])
return 1
`)

// RedisDB stores records in Redis
type RedisDB struct {
	client *redis.Client
}

// NewRedisDB connects to the Redis server at url (redis://host:port/db)
func NewRedisDB(url string) (*RedisDB, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisDB{client: client}, nil
}

func recordKey(key models.Key) string {
	return keyPrefix + "record:" + key.String()
}

func dateKey(date string) string {
	return keyPrefix + "date:" + date
}

// Initialize is a no-op; Redis needs no schema
func (r *RedisDB) Initialize(ctx context.Context) error {
	return nil
}

// Upsert stores the record in its slot unless a later one is already there
func (r *RedisDB) Upsert(ctx context.Context, rec models.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	keys := []string{recordKey(rec.Key()), dateKey(rec.Date)}
	err = upsertScript.Run(ctx, r.client, keys, string(rec.Type), payload, rec.CommittedAt.UnixMicro()).Err()
	if err != nil {
		return storage.Unavailable("upsert", fmt.Errorf("failed to upsert record: %w", err))
	}
	return nil
}

// Lookup returns the records of a corridor/room/date
func (r *RedisDB) Lookup(ctx context.Context, key models.Key) (models.Slots, error) {
	values, err := r.client.HMGet(ctx, recordKey(key), string(models.Arrival), string(models.Departure)).Result()
	if err != nil {
		return models.Slots{}, storage.Unavailable("lookup", fmt.Errorf("failed to read record hash: %w", err))
	}

	var slots models.Slots
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec models.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return models.Slots{}, fmt.Errorf("failed to decode record: %w", err)
		}
		slots.Set(&rec)
	}
	return slots, nil
}

// ListByDate returns every record of a date
func (r *RedisDB) ListByDate(ctx context.Context, date string) ([]models.Record, error) {
	hashes, err := r.client.SMembers(ctx, dateKey(date)).Result()
	if err != nil {
		return nil, storage.Unavailable("list by date", fmt.Errorf("failed to read date index: %w", err))
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.SliceCmd, 0, len(hashes))
	for _, hash := range hashes {
		cmds = append(cmds, pipe.HMGet(ctx, hash, string(models.Arrival), string(models.Departure)))
	}
	if len(cmds) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, storage.Unavailable("list by date", fmt.Errorf("failed to read record hashes: %w", err))
		}
	}

	var records []models.Record
	for _, cmd := range cmds {
		for _, v := range cmd.Val() {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var rec models.Record
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				return nil, fmt.Errorf("failed to decode record: %w", err)
			}
			records = append(records, rec)
		}
	}

	storage.SortRecords(records)
	return records, nil
}

// Close closes the Redis client
func (r *RedisDB) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
