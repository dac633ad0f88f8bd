package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"
)

const defaultLinkPrefix = "auth:link_used"

// LinkDenylist records consumed verification/reset link ids so a link can be used once.
// Entries expire with the link itself.
type LinkDenylist struct {
	client *red.Client
	prefix string
}

// NewLinkDenylist wires a Redis client into a link denylist.
func NewLinkDenylist(client *red.Client, keyPrefix string) *LinkDenylist {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultLinkPrefix
	}

	return &LinkDenylist{client: client, prefix: prefix}
}

// Consume atomically claims id. It returns false when the id was claimed before.
func (d *LinkDenylist) Consume(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errors.New("ttl must be positive")
	}

	key := d.key(id)
	if key == "" {
		return false, errors.New("link id must not be empty")
	}

	claimed, err := d.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx link id: %w", err)
	}

	return claimed, nil
}

func (d *LinkDenylist) key(id string) string {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", d.prefix, trimmed)
}
