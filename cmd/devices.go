package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/spotctl/internal/formatter"
	"github.com/desertthunder/spotctl/internal/models"
	"github.com/desertthunder/spotctl/internal/repositories"
	"github.com/desertthunder/spotctl/internal/shared"
	"github.com/desertthunder/spotctl/internal/ui"
	"github.com/urfave/cli/v3"
)

// DevicesList prints the available devices, marking the active and the selected one.
func (r *Runner) DevicesList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	player, err := r.playerFor(ctx, cmd)
	if err != nil {
		return err
	}
	devices, err := player.Devices(ctx)
	if err != nil {
		return err
	}

	selected := ""
	if store, err := r.openStore(cmd); err == nil {
		if encoded, ok, _ := store.Get(ctx, repositories.KeyDeviceID); ok {
			if d, err := models.ParseDevice(encoded); err == nil {
				selected = d.ID
			}
		}
	}

	data, err := formatter.Devices(devices, format, selected)
	if err != nil {
		return err
	}
	_, err = r.output.Write(data)
	return err
}

// DevicesSelect stores the device matching the argument by ID, or by case-insensitive name.
func (r *Runner) DevicesSelect(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(cmd.StringArg("device"))
	if query == "" {
		return fmt.Errorf("%w: device ID or name", shared.ErrMissingArgument)
	}

	player, err := r.playerFor(ctx, cmd)
	if err != nil {
		return err
	}
	devices, err := player.Devices(ctx)
	if err != nil {
		return err
	}

	device, err := matchDevice(devices, query)
	if err != nil {
		return err
	}

	store, err := r.openStore(cmd)
	if err != nil {
		return err
	}
	if err := store.Set(ctx, repositories.KeyDeviceID, device.Encode()); err != nil {
		return fmt.Errorf("failed to store device selection: %w", err)
	}

	r.logger.Debug("selected device", "id", device.ID, "name", device.Name)
	return r.writePlain("%s Selected %s (%s)\n", ui.Styles.OK("✓"), device.Name, device.ID)
}

// DevicesClear forgets the stored device selection.
func (r *Runner) DevicesClear(ctx context.Context, cmd *cli.Command) error {
	store, err := r.openStore(cmd)
	if err != nil {
		return err
	}
	if err := store.Clear(ctx, repositories.KeyDeviceID); err != nil {
		return err
	}
	return r.writePlain("%s Device selection cleared\n", ui.Styles.OK("✓"))
}

func matchDevice(devices []models.Device, query string) (models.Device, error) {
	for _, d := range devices {
		if d.ID == query {
			return d, nil
		}
	}

	var matches []models.Device
	for _, d := range devices {
		if strings.EqualFold(d.Name, query) {
			matches = append(matches, d)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return models.Device{}, fmt.Errorf("%w: no device matches %q", shared.ErrInvalidArgument, query)
	default:
		return models.Device{}, fmt.Errorf("%w: %d devices are named %q, select by ID", shared.ErrInvalidArgument, len(matches), query)
	}
}
