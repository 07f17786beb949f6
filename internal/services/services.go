// package services defines the remote playback API used by sessions and the CLI
package services

import (
	"context"

	"github.com/desertthunder/spotctl/internal/models"
)

// Player is the remote playback surface used by the CLI and playback sessions.
type Player interface {
	// Devices lists the devices currently available for playback.
	Devices(ctx context.Context) ([]models.Device, error)

	// Play starts songID on deviceID.
	Play(ctx context.Context, deviceID, songID string) error

	// Resume continues whatever is loaded on deviceID.
	Resume(ctx context.Context, deviceID string) error

	// Pause pauses deviceID.
	Pause(ctx context.Context, deviceID string) error

	// CheckState reports whether songID is playing, paused, or no longer the active track.
	CheckState(ctx context.Context, songID string) (models.PlayerState, error)

	// Volume reads the active device's volume in percent.
	Volume(ctx context.Context) (int, error)

	// SetVolume sets deviceID's volume in percent.
	SetVolume(ctx context.Context, deviceID string, percent int) error
}

var _ Player = (*PlayerService)(nil)
