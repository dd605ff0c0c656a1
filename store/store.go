package store

import "context"

// Store tracks which participants have joined a session and who owns it.
// Keyed by join code so several coordinator nodes can share one backend.
type Store interface {
	Join(ctx context.Context, joinCode, email string) error
	Leave(ctx context.Context, joinCode, email string) error
	IsJoined(ctx context.Context, joinCode, email string) (bool, error)
	Count(ctx context.Context, joinCode string) (int, error)
	SetOwner(ctx context.Context, joinCode, ownerID string) error
	Owner(ctx context.Context, joinCode string) (string, error)
	Clear(ctx context.Context, joinCode string) error
	Close() error
}
