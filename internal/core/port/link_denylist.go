package port

import (
	"context"
	"time"
)

// LinkDenylist records consumed link token identifiers so each link works once.
type LinkDenylist interface {
	// Consume marks id as used for ttl. It returns false when id was already consumed.
	Consume(ctx context.Context, id string, ttl time.Duration) (bool, error)
}
