package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/99minutos/account-service/internal/core/ports"
)

// setNX is the slice of the go-redis client the throttle needs.
type setNX interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// NotificationThrottle rate limits notifications per account and category.
// Key format: throttle:<category>:<account_id>
type NotificationThrottle struct {
	client setNX
}

// NewNotificationThrottle creates a NotificationThrottle wrapping the given Redis client.
func NewNotificationThrottle(client *redis.Client) *NotificationThrottle {
	return &NotificationThrottle{client: client}
}

// Allow opens a window of the given length when none is open and reports
// whether it did. The check and the window start are one SET NX.
func (t *NotificationThrottle) Allow(ctx context.Context, accountID string, category ports.NotificationCategory, window time.Duration) (bool, error) {
	ok, err := t.client.SetNX(ctx, t.key(accountID, category), "1", window).Result()
	if err != nil {
		return false, fmt.Errorf("throttle check: %w", err)
	}
	return ok, nil
}

func (t *NotificationThrottle) key(accountID string, category ports.NotificationCategory) string {
	return fmt.Sprintf("throttle:%s:%s", category, accountID)
}
