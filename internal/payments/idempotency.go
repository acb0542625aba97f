package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	eventKeyPrefix = "pm:payments:event:" // pm:payments:event:{event_id}
	eventTTL       = 7 * 24 * time.Hour
)

// EventLedger claims gateway event ids so retried deliveries are applied once.
type EventLedger struct {
	client *redis.Client
}

func NewEventLedger(client *redis.Client) *EventLedger {
	return &EventLedger{client: client}
}

// Claim returns true for the first caller of an event id.
func (l *EventLedger) Claim(ctx context.Context, eventID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, eventKeyPrefix+eventID, time.Now().UTC().Format(time.RFC3339), eventTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim event: %w", err)
	}
	return ok, nil
}

// Release forgets a claim so the gateway's retry can be processed.
func (l *EventLedger) Release(ctx context.Context, eventID string) error {
	if err := l.client.Del(ctx, eventKeyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("failed to release event: %w", err)
	}
	return nil
}
