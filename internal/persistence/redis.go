package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/talgya/ai-town/internal/memory"
)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	PoolSize  int
	KeyPrefix string
}

// RedisStore keeps each agent's memories in one Redis hash keyed by memory id.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

var _ memory.Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "aitown:"
	}
	return &RedisStore{client: client, keyPrefix: prefix}, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) memoriesKey(agentID string) string {
	return s.keyPrefix + "memories:" + agentID
}

// SaveMemory upserts one memory into the agent's hash.
func (s *RedisStore) SaveMemory(ctx context.Context, agentID string, m memory.Memory) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal memory: %w", err)
	}
	if err := s.client.HSet(ctx, s.memoriesKey(agentID), m.ID, data).Err(); err != nil {
		return fmt.Errorf("save memory %s/%s: %w", agentID, m.ID, err)
	}
	return nil
}

// DeleteMemory removes one memory.
func (s *RedisStore) DeleteMemory(ctx context.Context, agentID, memoryID string) error {
	return s.client.HDel(ctx, s.memoriesKey(agentID), memoryID).Err()
}

// LoadMemories returns all memories for an agent ordered by timestamp, then id.
func (s *RedisStore) LoadMemories(ctx context.Context, agentID string) ([]memory.Memory, error) {
	raw, err := s.client.HGetAll(ctx, s.memoriesKey(agentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load memories %s: %w", agentID, err)
	}

	out := make([]memory.Memory, 0, len(raw))
	for id, v := range raw {
		var m memory.Memory
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("memory %s: %w", id, err)
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
