package auth

import (
	"context"
	"errors"
	"fmt"
)

// ErrTokenRevoked is returned when a refresh token was already used,
// revoked or expired.
var ErrTokenRevoked = errors.New("refresh token revoked")

// Devices registers kiosks and rotates their tokens.
type Devices struct {
	store  DeviceStore
	signer *Signer
}

// NewDevices wires a device service.
func NewDevices(store DeviceStore, signer *Signer) *Devices {
	return &Devices{store: store, signer: signer}
}

// Register records the device and issues a fresh token pair.
func (d *Devices) Register(ctx context.Context, deviceID string) (TokenPair, error) {
	if err := d.store.UpsertDevice(ctx, deviceID); err != nil {
		return TokenPair{}, fmt.Errorf("register device: %w", err)
	}
	return d.issue(ctx, deviceID)
}

// Refresh exchanges a refresh token for a new pair. Each refresh token is
// accepted once.
func (d *Devices) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := d.signer.Parse(refreshToken, KindRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	ok, err := d.store.RevokeRefreshToken(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, fmt.Errorf("revoke refresh token: %w", err)
	}
	if !ok {
		return TokenPair{}, ErrTokenRevoked
	}
	return d.issue(ctx, claims.Subject)
}

func (d *Devices) issue(ctx context.Context, deviceID string) (TokenPair, error) {
	tokens, err := d.signer.Issue(deviceID, RoleKiosk)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	if err := d.store.SaveRefreshToken(ctx, deviceID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
		return TokenPair{}, fmt.Errorf("save refresh token: %w", err)
	}
	return tokens, nil
}
