package recorder

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"MacroCanary/internal/model"
)

// RedisRecorder stores the snapshot as one hash, one field per series code.
type RedisRecorder struct {
	client *redis.Client
	key    string
}

type redisEntry struct {
	FetchedAt    time.Time       `json:"fetched_at"`
	Observations json.RawMessage `json:"observations"`
}

// NewRedisRecorder connects to addr and verifies the connection.
func NewRedisRecorder(ctx context.Context, addr, password string, db int, key string) (*RedisRecorder, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	log.Info().Str("addr", addr).Str("key", key).Msg("redis recorder connected")
	return &RedisRecorder{client: client, key: key}, nil
}

func (r *RedisRecorder) SaveSnapshot(ctx context.Context, series []model.RawSeries) error {
	if len(series) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(series))
	for _, s := range series {
		obs, err := encodeObservations(s.Observations)
		if err != nil {
			return fmt.Errorf("%s: %w", s.Code, err)
		}
		data, err := json.Marshal(redisEntry{FetchedAt: s.FetchedAt.UTC(), Observations: obs})
		if err != nil {
			return fmt.Errorf("encode %s: %w", s.Code, err)
		}
		fields[s.Code] = data
	}
	if err := r.client.HSet(ctx, r.key, fields).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", r.key, err)
	}
	return nil
}

// LoadSnapshot returns every stored series ordered by code. A missing key
// yields an empty snapshot.
func (r *RedisRecorder) LoadSnapshot(ctx context.Context) ([]model.RawSeries, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", r.key, err)
	}
	out := make([]model.RawSeries, 0, len(fields))
	for code, raw := range fields {
		var e redisEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", code, err)
		}
		obs, err := decodeObservations(e.Observations)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", code, err)
		}
		out = append(out, model.RawSeries{Code: code, Observations: obs, FetchedAt: e.FetchedAt.UTC()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *RedisRecorder) Close() error {
	return r.client.Close()
}
