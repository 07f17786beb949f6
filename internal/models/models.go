// package models defines the value types shared by the auth, callback server, and playback layers.
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ExpirationMargin is subtracted from the provider's expires_in value.
const ExpirationMargin = 600 * time.Second

// TokenValues is an immutable bearer token paired with its absolute expiration.
type TokenValues struct {
	Token     string
	ExpiresAt time.Time
}

// NewTokenValues derives the expiration from the provider-supplied lifetime, less [ExpirationMargin].
//
// Lifetimes shorter than the margin are clamped so the token expires at receipt time.
func NewTokenValues(token string, expiresIn time.Duration, receivedAt time.Time) TokenValues {
	lifetime := expiresIn - ExpirationMargin
	if lifetime < 0 {
		lifetime = 0
	}
	return TokenValues{Token: token, ExpiresAt: receivedAt.Add(lifetime)}
}

// Expired reports whether now is after the expiration instant.
func (v TokenValues) Expired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}

// IsZero reports whether no token is held.
func (v TokenValues) IsZero() bool {
	return v.Token == ""
}

// ExpirationMillis formats the expiration as epoch milliseconds for persistence.
func (v TokenValues) ExpirationMillis() string {
	return strconv.FormatInt(v.ExpiresAt.UnixMilli(), 10)
}

// ParseTokenValues rebuilds persisted values, expecting the expiration in epoch milliseconds.
func ParseTokenValues(token, expiration string) (TokenValues, error) {
	if token == "" {
		return TokenValues{}, fmt.Errorf("empty token")
	}

	ms, err := strconv.ParseInt(strings.TrimSpace(expiration), 10, 64)
	if err != nil {
		return TokenValues{}, fmt.Errorf("invalid expiration %q: %w", expiration, err)
	}
	if ms < 0 {
		return TokenValues{}, fmt.Errorf("invalid expiration %q: negative", expiration)
	}

	return TokenValues{Token: token, ExpiresAt: time.UnixMilli(ms)}, nil
}

// Device describes a remote playback endpoint as reported by one device-list query.
type Device struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Active bool   `json:"is_active"`
	Volume int    `json:"volume_percent"`
}

// Encode serializes the device selection as "id;name".
func (d Device) Encode() string {
	return d.ID + ";" + d.Name
}

// ParseDevice reverses [Device.Encode]. Names may themselves contain ';'.
func ParseDevice(s string) (Device, error) {
	id, name, _ := strings.Cut(s, ";")
	if id == "" {
		return Device{}, fmt.Errorf("invalid device %q", s)
	}
	return Device{ID: id, Name: name}, nil
}

// PlayerState is the classification of the remote player relative to one expected track.
type PlayerState int

const (
	// PlayerStopped means nothing is playing or a different track is active.
	PlayerStopped PlayerState = iota
	PlayerPlaying
	PlayerPaused
)

func (s PlayerState) String() string {
	switch s {
	case PlayerStopped:
		return "stopped"
	case PlayerPlaying:
		return "playing"
	case PlayerPaused:
		return "paused"
	default:
		return ""
	}
}
