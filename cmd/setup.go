package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/desertthunder/spotctl/internal/repositories"
	"github.com/desertthunder/spotctl/internal/shared"
	"github.com/desertthunder/spotctl/internal/ui"
	"github.com/urfave/cli/v3"
)

// Setup writes the default config when none exists and opens the configured store, running migrations for
// the SQLite backend.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			return err
		}
		r.writePlain("%s Created %s\n", ui.Styles.OK("✓"), configPath)
	} else if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	r.logger.Info("initializing store", "type", config.Store.Type)
	store, err := r.openStore(cmd)
	if err != nil {
		return err
	}

	if _, _, err := store.Get(ctx, repositories.KeyDeviceID); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrStoreUnavailable, err)
	}

	location := config.Store.Type
	switch config.Store.Type {
	case string(repositories.StoreTypeSQLite):
		location = config.Store.SQLite.Path
	case string(repositories.StoreTypeRedis):
		location = config.Store.Redis.Addr
	}
	r.writePlain("%s Store ready (%s)\n", ui.Styles.OK("✓"), location)
	return r.writePlain("%s\n", ui.Styles.Help("Next: spotctl auth login, then spotctl devices select <device>"))
}
