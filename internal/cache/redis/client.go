package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/greasemonkey/backend/internal/metrics"
	"github.com/greasemonkey/backend/pkg/logger"
	"github.com/greasemonkey/backend/pkg/utils"
)

const answerPrefix = "answer"

type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// AnswerKey identifies a cached answer. Everything that changes the prompt is
// part of the key, so a cached answer is only reused for an identical request.
func AnswerKey(userID, query, vehicle, documentContext string) string {
	return fmt.Sprintf("%s:%s:%s", answerPrefix, userID, utils.HashStrings(query, vehicle, documentContext))
}

func (c *Client) SetAnswer(ctx context.Context, key string, answer interface{}) error {
	data, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}

	err = c.client.Set(ctx, key, data, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set answer cache: %w", err)
	}

	logger.Debug("Answer cached", zap.String("key", key), zap.Duration("ttl", c.ttl))
	return nil
}

// GetAnswer decodes a cached answer into answer and reports whether one was
// found.
func (c *Client) GetAnswer(ctx context.Context, key string, answer interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.WithLabelValues(answerPrefix).Inc()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get answer cache: %w", err)
	}

	err = json.Unmarshal(data, answer)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal answer: %w", err)
	}

	metrics.CacheHits.WithLabelValues(answerPrefix).Inc()
	logger.Debug("Answer cache hit", zap.String("key", key))
	return true, nil
}

// InvalidateUser drops every cached answer for a user. Called whenever the
// user's document set changes.
func (c *Client) InvalidateUser(ctx context.Context, userID string) error {
	pattern := fmt.Sprintf("%s:%s:*", answerPrefix, userID)
	deleted := 0

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		err := c.client.Del(ctx, iter.Val()).Err()
		if err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
			continue
		}
		deleted++
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Answer cache invalidated",
		zap.String("user_id", userID),
		zap.Int("deleted", deleted),
	)
	return nil
}
