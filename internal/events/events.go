// Package events publishes job progress to Redis so observers outside
// this process can follow along. Each event goes out on a per-job pub/sub
// channel, and the latest one is cached under a TTL key for state
// recovery after a missed subscription window.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"docuvid/internal/models"
)

const (
	channelPrefix = "docuvid:progress:"
	statusPrefix  = "docuvid:status:"

	// Terminal statuses linger long enough for pollers to see them.
	statusTTL      = 1 * time.Hour
	publishTimeout = 2 * time.Second
)

type RedisSink struct {
	client *redis.Client
}

func NewRedisSink(redisURL string) (*RedisSink, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisSink{client: client}, nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}

// Publish sends the event best effort. The pipeline never waits on Redis
// and never fails because of it.
func (s *RedisSink) Publish(event models.ProgressEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[Events] Failed to marshal event for job %s: %v", event.JobID, err)
		return
	}

	if err := s.client.Publish(ctx, channelPrefix+event.JobID.String(), data).Err(); err != nil {
		log.Printf("[Events] Failed to publish event for job %s: %v", event.JobID, err)
	}
	// External observers read this key directly; it is not consumed
	// in-process.
	if err := s.client.Set(ctx, statusPrefix+event.JobID.String(), data, statusTTL).Err(); err != nil {
		log.Printf("[Events] Failed to cache status for job %s: %v", event.JobID, err)
	}
}
