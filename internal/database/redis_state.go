package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bybit-trading-bot/config"
	"bybit-trading-bot/internal/logging"
	"bybit-trading-bot/internal/position"
)

const (
	positionKeyPrefix = "bot:position:"
	positionStateTTL  = 7 * 24 * time.Hour
)

// PositionStateStore keeps open-position snapshots in Redis so residual
// exposure survives a process restart.
type PositionStateStore struct {
	client *redis.Client
	logger *logging.Logger
}

func NewPositionStateStore(cfg config.RedisConfig, logger *logging.Logger) (*PositionStateStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}

	log := logger.WithComponent("redis")
	log.Info("Connected to Redis", "addr", cfg.Addr)
	return &PositionStateStore{client: client, logger: log}, nil
}

// Save writes the position snapshot keyed by position ID.
func (s *PositionStateStore) Save(ctx context.Context, p *position.Position) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}
	key := positionKeyPrefix + p.ID
	if err := s.client.Set(ctx, key, data, positionStateTTL).Err(); err != nil {
		return fmt.Errorf("failed to save position state: %w", err)
	}
	return nil
}

// Delete removes the snapshot once the position settles.
func (s *PositionStateStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, positionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete position state: %w", err)
	}
	return nil
}

// LoadAll returns every stored snapshot. Used at startup to report
// positions the previous run left behind.
func (s *PositionStateStore) LoadAll(ctx context.Context) ([]position.Position, error) {
	var (
		positions []position.Position
		cursor    uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, positionKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan position keys: %w", err)
		}
		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to load position state: %w", err)
			}
			var p position.Position
			if err := json.Unmarshal(data, &p); err != nil {
				s.logger.Warn("Skipping corrupt position snapshot", "key", key, "error", err.Error())
				continue
			}
			positions = append(positions, p)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return positions, nil
}

// Close releases the Redis client.
func (s *PositionStateStore) Close() error {
	return s.client.Close()
}
