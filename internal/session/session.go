package session

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("session not found")

// Store tracks live sessions keyed by token ID. Deleting a session revokes
// the corresponding access token before it expires.
type Store interface {
	Save(ctx context.Context, tokenID, userID string, ttl time.Duration) error
	Get(ctx context.Context, tokenID string) (string, error)
	Delete(ctx context.Context, tokenID string) error
}
