package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"casino-engine/internal/config"
	"casino-engine/internal/models"
)

// RedisService holds the volatile state: rate limit counters and the crash
// snapshot read by the API. The SQLite store stays authoritative.
type RedisService struct {
	client *redis.Client
}

func NewRedisService(cfg *config.Config) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisService{client: client}, nil
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

// rateLimitScript increments the counter and starts its window on first hit.
var rateLimitScript = redis.NewScript(`
	local count = redis.call("INCR", KEYS[1])
	if count == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	return count
`)

// CheckRateLimit counts one action and reports whether it is within limit
// for the current window.
func (s *RedisService) CheckRateLimit(ctx context.Context, userID int64, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, userID, action)

	count, err := rateLimitScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	return count <= int64(limit), nil
}

func (s *RedisService) ClearRateLimit(ctx context.Context, userID int64, action string) error {
	key := fmt.Sprintf(KeyRateLimit, userID, action)
	return s.client.Del(ctx, key).Err()
}

func (s *RedisService) SaveCrashState(ctx context.Context, state *models.CrashState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal crash state: %w", err)
	}

	return s.client.Set(ctx, KeyCrashState, data, TTLCrashState).Err()
}

// GetCrashState returns the cached snapshot, or nil when none is cached.
func (s *RedisService) GetCrashState(ctx context.Context) (*models.CrashState, error) {
	data, err := s.client.Get(ctx, KeyCrashState).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crash state: %w", err)
	}

	var state models.CrashState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal crash state: %w", err)
	}

	return &state, nil
}

// PushCrashPoint records a crashed round, keeping the newest CrashHistorySize.
func (s *RedisService) PushCrashPoint(ctx context.Context, summary models.RoundSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal round summary: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, KeyCrashHistory, data)
	pipe.LTrim(ctx, KeyCrashHistory, 0, CrashHistorySize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push crash point: %w", err)
	}

	return nil
}

func (s *RedisService) RecentCrashPoints(ctx context.Context, limit int) ([]models.RoundSummary, error) {
	if limit <= 0 || limit > CrashHistorySize {
		limit = CrashHistorySize
	}

	items, err := s.client.LRange(ctx, KeyCrashHistory, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get crash history: %w", err)
	}

	out := make([]models.RoundSummary, 0, len(items))
	for _, item := range items {
		var summary models.RoundSummary
		if err := json.Unmarshal([]byte(item), &summary); err != nil {
			continue
		}
		out = append(out, summary)
	}

	return out, nil
}
