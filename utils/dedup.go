package utils

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedup remembers Slack event IDs so redelivered events (Slack delivers
// at-least-once) are processed only once. Checking and marking are split:
// an event is marked only after it was fully processed, so a failed
// attempt is picked up again on redelivery.
type Dedup struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDedup(url string) (*Dedup, error) {
	opt, err := redis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Dedup{client: client, ttl: 24 * time.Hour}, nil
}

// Seen reports whether eventID was already processed. A redis failure
// reports unseen: processing twice is safe downstream, dropping an event
// is not.
func (d *Dedup) Seen(ctx context.Context, eventID string) bool {
	if eventID == "" {
		return false
	}

	n, err := d.client.Exists(ctx, dedupKey(eventID)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// Mark records eventID as processed.
func (d *Dedup) Mark(ctx context.Context, eventID string) {
	if eventID == "" {
		return
	}
	d.client.Set(ctx, dedupKey(eventID), 1, d.ttl)
}

func dedupKey(eventID string) string {
	return "event_seen:" + eventID
}
