package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotctl/internal/auth"
	"github.com/desertthunder/spotctl/internal/models"
	"github.com/desertthunder/spotctl/internal/repositories"
	"github.com/desertthunder/spotctl/internal/services"
	"github.com/desertthunder/spotctl/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Dependencies left nil in [RunnerOpts] are built on first use from the loaded configuration.
type Runner struct {
	config      *shared.Config
	store       repositories.Store
	ownsStore   bool
	authorizer  *auth.Authorizer
	player      services.Player
	openBrowser auth.BrowserOpener
	logger      *log.Logger
	output      io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config      *shared.Config
	Store       repositories.Store
	Authorizer  *auth.Authorizer
	Player      services.Player
	OpenBrowser auth.BrowserOpener
	Logger      *log.Logger
	Output      io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	return &Runner{
		config:      opts.Config,
		store:       opts.Store,
		authorizer:  opts.Authorizer,
		player:      opts.Player,
		openBrowser: opts.OpenBrowser,
		logger:      opts.Logger,
		output:      opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, devicesCommand, playCommand, pauseCommand, resumeCommand, volumeCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before applies root flags shared by every command.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	return ctx, nil
}

// after releases the store when the runner opened it.
func (r *Runner) after(ctx context.Context, cmd *cli.Command) error {
	if r.ownsStore && r.store != nil {
		err := r.store.Close()
		r.store, r.ownsStore = nil, false
		return err
	}
	return nil
}

// loadConfig reads --config, overlays --env and SPOTCTL_* variables, then validates the result.
//
// A missing config file falls back to the built-in defaults.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	if r.config != nil {
		return r.config, nil
	}

	path := cmd.String("config")
	config, err := shared.LoadConfig(path)
	switch {
	case errors.Is(err, shared.ErrMissingConfig):
		r.logger.Debug("config file not found, using defaults", "path", path)
		config = shared.DefaultConfig()
	case err != nil:
		return nil, err
	}

	if err := config.ApplyEnv(cmd.String("env")); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	r.config = config
	return config, nil
}

func (r *Runner) openStore(cmd *cli.Command) (repositories.Store, error) {
	if r.store != nil {
		return r.store, nil
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	store, err := repositories.NewStore(config.Store)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("opened store", "type", config.Store.Type)

	r.store, r.ownsStore = store, true
	return store, nil
}

func (r *Runner) authorizerFor(cmd *cli.Command) (*auth.Authorizer, error) {
	if r.authorizer != nil {
		return r.authorizer, nil
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	store, err := r.openStore(cmd)
	if err != nil {
		return nil, err
	}

	r.authorizer = auth.NewAuthorizer(store, auth.Options{
		ClientID:    config.Spotify.ClientID,
		Port:        config.Spotify.CallbackPort,
		Scopes:      config.Spotify.Scopes,
		Timeout:     config.Spotify.AuthTimeout.Duration,
		LockTimeout: config.Spotify.LockTimeout.Duration,
		OpenBrowser: r.openBrowser,
		ReportState: func(msg string) { r.logger.Info(msg) },
		Logger:      r.logger,
	})
	return r.authorizer, nil
}

// playerFor authorizes on first use and returns a player bound to the live token.
func (r *Runner) playerFor(ctx context.Context, cmd *cli.Command) (services.Player, error) {
	if r.player != nil {
		return r.player, nil
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	authorizer, err := r.authorizerFor(cmd)
	if err != nil {
		return nil, err
	}

	token, err := authorizer.Authorize(ctx)
	if err != nil {
		return nil, err
	}
	token.AddListener(func(t *auth.Token) {
		r.logger.Info("access token refreshed", "expires", t.Values().ExpiresAt.Format("15:04:05"))
	})

	r.player = services.NewPlayerService(token.TokenSource(ctx), services.PlayerOptions{
		RetryDelay: config.Playback.RetryDelay.Duration,
		RateLimit:  config.Playback.RateLimit,
		Logger:     r.logger,
	})
	return r.player, nil
}

// resolveDevice picks the target device: the --device flag, then the stored selection, then the configured
// default.
func (r *Runner) resolveDevice(ctx context.Context, cmd *cli.Command) (models.Device, error) {
	if id := cmd.String("device"); id != "" {
		return models.Device{ID: id}, nil
	}

	store, err := r.openStore(cmd)
	if err != nil {
		return models.Device{}, err
	}
	encoded, ok, err := store.Get(ctx, repositories.KeyDeviceID)
	if err != nil {
		return models.Device{}, fmt.Errorf("failed to read selected device: %w", err)
	}
	if ok {
		device, err := models.ParseDevice(encoded)
		if err == nil {
			return device, nil
		}
		r.logger.Warn("ignoring malformed device selection", "value", encoded, "error", err)
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return models.Device{}, err
	}
	if config.Playback.DeviceID != "" {
		return models.Device{ID: config.Playback.DeviceID}, nil
	}

	return models.Device{}, fmt.Errorf("%w: pass --device or run 'spotctl devices select'", shared.ErrNoDevice)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
