package auth

import (
	"context"
	"time"
)

// DeviceStore persists kiosk devices and their refresh tokens.
type DeviceStore interface {
	UpsertDevice(ctx context.Context, deviceID string) error
	SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error
	// RevokeRefreshToken revokes a live token and reports whether one was.
	RevokeRefreshToken(ctx context.Context, token string) (bool, error)
}
