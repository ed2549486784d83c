// Package store persists session snapshots so rooms survive process
// restarts. The registry keeps the authoritative copy in memory and writes
// through after every accepted command.
package store

import (
	"context"

	"github.com/kapu/chess-arena-go/internal/session"
)

// Store is the session persistence contract. Load returns (nil, nil) for a
// missing room so callers can distinguish absence from transport failure.
type Store interface {
	Load(ctx context.Context, roomID string) (*session.Session, error)
	Save(ctx context.Context, s *session.Session) error
	Delete(ctx context.Context, roomID string) error
	RoomIDs(ctx context.Context) ([]string, error)
	Close() error
}
