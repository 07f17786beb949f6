package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/spotctl/internal/models"
	"github.com/desertthunder/spotctl/internal/services"
	"github.com/desertthunder/spotctl/internal/shared"
	"github.com/desertthunder/spotctl/internal/tasks"
	"github.com/desertthunder/spotctl/internal/ui"
	"github.com/urfave/cli/v3"
)

// closeGrace bounds the pause-on-exit request after an interrupt.
const closeGrace = 15 * time.Second

// Play starts a track and follows it with a playback session until it finishes or the command is interrupted.
//
// An interrupted session pauses the device before exiting.
func (r *Runner) Play(ctx context.Context, cmd *cli.Command) error {
	trackID, err := parseTrackID(cmd.StringArg("track"))
	if err != nil {
		return err
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	player, err := r.playerFor(ctx, cmd)
	if err != nil {
		return err
	}
	device, err := r.resolveDevice(ctx, cmd)
	if err != nil {
		return err
	}

	if cmd.Bool("detach") {
		if err := player.Play(ctx, device.ID, trackID); err != nil {
			return err
		}
		return r.writePlain("%s Playing %s on %s\n", ui.Styles.OK("●"), trackID, deviceLabel(device))
	}

	updates := make(chan tasks.StateUpdate, 16)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for u := range updates {
			if line := ui.StatusLine(u); line != "" {
				r.writePlain("%s\n", line)
			}
		}
	}()

	session := tasks.NewSession(player, tasks.SessionOptions{
		DeviceID:     device.ID,
		SongID:       trackID,
		PollDelay:    config.Playback.PollDelay.Duration,
		PollInterval: config.Playback.PollInterval.Duration,
		CloseTimeout: config.Playback.CloseTimeout.Duration,
		Updates:      updates,
		Logger:       r.logger,
	})

	r.logger.Info("starting playback", "track", trackID, "device", deviceLabel(device))

	playErr := session.Play(ctx)
	if playErr == nil {
		select {
		case <-session.Done():
		case <-ctx.Done():
			r.logger.Info("interrupted, pausing playback")
		}
	}

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeGrace)
	defer cancel()
	closeErr := session.Close(closeCtx)

	// Close stops every sender.
	close(updates)
	<-printed

	return errors.Join(playErr, closeErr)
}

// Pause pauses the chosen device, or the active one when none is configured.
func (r *Runner) Pause(ctx context.Context, cmd *cli.Command) error {
	player, device, err := r.playerAndOptionalDevice(ctx, cmd)
	if err != nil {
		return err
	}
	if err := player.Pause(ctx, device.ID); err != nil {
		return err
	}
	return r.writePlain("%s Paused %s\n", ui.Styles.OK("❚❚"), deviceLabel(device))
}

// Resume resumes the chosen device, or the active one when none is configured.
func (r *Runner) Resume(ctx context.Context, cmd *cli.Command) error {
	player, device, err := r.playerAndOptionalDevice(ctx, cmd)
	if err != nil {
		return err
	}
	if err := player.Resume(ctx, device.ID); err != nil {
		return err
	}
	return r.writePlain("%s Resumed %s\n", ui.Styles.OK("●"), deviceLabel(device))
}

// Volume prints the active device's volume, or sets it when a percentage is given.
func (r *Runner) Volume(ctx context.Context, cmd *cli.Command) error {
	arg := strings.TrimSuffix(strings.TrimSpace(cmd.StringArg("percent")), "%")

	player, device, err := r.playerAndOptionalDevice(ctx, cmd)
	if err != nil {
		return err
	}

	if arg == "" {
		percent, err := player.Volume(ctx)
		if err != nil {
			return err
		}
		return r.writePlain("Volume: %d%%\n", percent)
	}

	percent, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("%w: volume %q is not a number", shared.ErrInvalidArgument, arg)
	}
	if err := player.SetVolume(ctx, device.ID, percent); err != nil {
		return err
	}
	return r.writePlain("%s Volume set to %d%% on %s\n", ui.Styles.OK("✓"), percent, deviceLabel(device))
}

func (r *Runner) playerAndOptionalDevice(ctx context.Context, cmd *cli.Command) (services.Player, models.Device, error) {
	player, err := r.playerFor(ctx, cmd)
	if err != nil {
		return nil, models.Device{}, err
	}

	device, err := r.resolveDevice(ctx, cmd)
	if errors.Is(err, shared.ErrNoDevice) {
		return player, models.Device{}, nil
	}
	return player, device, err
}

func deviceLabel(d models.Device) string {
	switch {
	case d.Name != "":
		return d.Name
	case d.ID != "":
		return d.ID
	default:
		return "the active device"
	}
}

// parseTrackID accepts a bare track ID, a spotify:track: URI, or an open.spotify.com track link.
func parseTrackID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: track ID", shared.ErrMissingArgument)
	}

	if id, ok := strings.CutPrefix(s, "spotify:track:"); ok {
		s = id
	} else if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) < 2 || parts[len(parts)-2] != "track" {
			return "", fmt.Errorf("%w: %q is not a track link", shared.ErrInvalidArgument, s)
		}
		s = parts[len(parts)-1]
	}

	if s == "" || strings.ContainsAny(s, ":/?# ") {
		return "", fmt.Errorf("%w: invalid track ID %q", shared.ErrInvalidArgument, s)
	}
	return s, nil
}
