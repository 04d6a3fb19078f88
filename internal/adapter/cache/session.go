package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/botkit-ai/nlu-engine/internal/domain"
)

// RedisSessionStore persists training sessions under short-TTL keys and
// arbitrates concurrent runs of the same (bot, language) pair with a SETNX
// lock.
type RedisSessionStore struct {
	client     *redis.Client
	sessionTTL time.Duration
	lockTTL    time.Duration
	log        *zap.Logger
}

func NewRedisSessionStore(url string, sessionTTL, lockTTL time.Duration, log *zap.Logger) (*RedisSessionStore, error) {
	client, err := newRedisClient(url)
	if err != nil {
		return nil, err
	}
	if sessionTTL <= 0 {
		sessionTTL = time.Hour
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	return &RedisSessionStore{
		client:     client,
		sessionTTL: sessionTTL,
		lockTTL:    lockTTL,
		log:        log,
	}, nil
}

func trainingKey(botID, language string) string {
	return fmt.Sprintf("training:%s:%s", botID, language)
}

func (s *RedisSessionStore) Get(ctx context.Context, botID, language string) (*domain.TrainingSession, error) {
	data, err := s.client.Get(ctx, trainingKey(botID, language)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get session: %w", err)
	}
	var session domain.TrainingSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("cache: decode session: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) Set(ctx context.Context, session domain.TrainingSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("cache: encode session: %w", err)
	}
	key := trainingKey(session.BotID, session.Language)
	if err := s.client.Set(ctx, key, data, s.sessionTTL).Err(); err != nil {
		return fmt.Errorf("cache: set session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, botID, language string) error {
	if err := s.client.Del(ctx, trainingKey(botID, language)).Err(); err != nil {
		return fmt.Errorf("cache: delete session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) AcquireLock(ctx context.Context, botID, language string) (bool, error) {
	ok, err := s.client.SetNX(ctx, trainingKey(botID, language)+":lock", "1", s.lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("cache: acquire lock: %w", err)
	}
	return ok, nil
}

func (s *RedisSessionStore) ReleaseLock(ctx context.Context, botID, language string) error {
	if err := s.client.Del(ctx, trainingKey(botID, language)+":lock").Err(); err != nil {
		return fmt.Errorf("cache: release lock: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}
