package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// MarkWebhookSeen claims a gateway event id with SETNX. It is only a
// fast-path dedupe for webhook replay; correctness does not depend on it,
// the paid/issued transitions in Postgres are idempotent on their own.
func (c *Cache) MarkWebhookSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	res := c.client.SetNX(ctx, "webhook:"+eventID, 1, ttl)
	return res.Val(), res.Err()
}

// ForgetWebhook releases a claim taken by MarkWebhookSeen. Called when
// processing a claimed event failed, so the gateway's redelivery is handled
// instead of skipped.
func (c *Cache) ForgetWebhook(ctx context.Context, eventID string) error {
	return c.client.Del(ctx, "webhook:"+eventID).Err()
}
