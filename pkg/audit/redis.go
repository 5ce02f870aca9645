package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSink pushes events onto a capped Redis list, newest first. A capped
// list keeps the trail bounded without an external retention job.
type RedisSink struct {
	client *redis.Client
	key    string
	maxLen int64
}

// NewRedisSink connects to Redis and verifies the connection with a ping.
func NewRedisSink(addr, key string, maxLen int64) (*RedisSink, error) {
	if key == "" {
		key = "anonymizer:audit"
	}
	if maxLen <= 0 {
		maxLen = 10000
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis audit sink unreachable at %s: %w", addr, err)
	}

	return &RedisSink{client: client, key: key, maxLen: maxLen}, nil
}

// Record pushes the event and trims the list to its cap. Errors are logged,
// never surfaced: a dead Redis must not fail requests.
func (s *RedisSink) Record(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[AUDIT] redis sink encode failed: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pipe := s.client.Pipeline()
	pipe.LPush(ctx, s.key, payload)
	pipe.LTrim(ctx, s.key, 0, s.maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[AUDIT] redis sink write failed: %v", err)
	}
}

// Close releases the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
