package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/spotctl/internal/auth"
	"github.com/desertthunder/spotctl/internal/models"
	"github.com/desertthunder/spotctl/internal/repositories"
	"github.com/desertthunder/spotctl/internal/shared"
	tu "github.com/desertthunder/spotctl/internal/testing"
)

var testDevices = []models.Device{
	{ID: "dev1", Name: "Kitchen", Type: "Speaker", Active: true, Volume: 40},
	{ID: "dev2", Name: "Desk", Type: "Computer", Volume: 80},
	{ID: "dev3", Name: "desk", Type: "Smartphone", Volume: 10},
}

func testConfig() *shared.Config {
	config := shared.DefaultConfig()
	config.Store.Type = "memory"
	config.Playback.DeviceID = ""
	config.Playback.PollDelay = shared.Duration{Duration: 10 * time.Millisecond}
	config.Playback.PollInterval = shared.Duration{Duration: 10 * time.Millisecond}
	config.Playback.CloseTimeout = shared.Duration{Duration: 100 * time.Millisecond}
	return config
}

func newTestRunner(t *testing.T, player *tu.MockPlayer) (*Runner, *repositories.MemoryStore, *bytes.Buffer) {
	t.Helper()
	store := repositories.NewMemoryStore()
	output := &bytes.Buffer{}
	opts := RunnerOpts{
		Config: testConfig(),
		Store:  store,
		OpenBrowser: func(string) error {
			t.Error("browser should not open in CLI tests")
			return errors.New("no browser")
		},
		Output: output,
	}
	if player != nil {
		opts.Player = player
	}
	return NewRunner(opts), store, output
}

func run(ctx context.Context, r *Runner, args ...string) error {
	return newApp(r).Run(ctx, append([]string{"spotctl"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil browser uses system opener", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.openBrowser == nil {
				t.Error("expected default browser opener")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("returns error for unmarshalable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
			if err := runner.writeJSON(make(chan int), false); err == nil {
				t.Error("expected marshal error")
			}
		})

		t.Run("returns error when write fails", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
			if err := runner.writeJSON("x", false); err == nil {
				t.Error("expected write error")
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
		if err := runner.writePlain("hello %s", "world"); err == nil {
			t.Error("expected write error")
		}
	})
}

func TestDevicesCommands(t *testing.T) {
	ctx := context.Background()

	t.Run("list", func(t *testing.T) {
		player := tu.NewMockPlayer()
		player.DeviceList = testDevices
		runner, store, output := newTestRunner(t, player)
		store.Set(ctx, repositories.KeyDeviceID, "dev2;Desk")

		if err := run(ctx, runner, "devices", "list"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		result := output.String()
		if !strings.Contains(result, "Kitchen") || !strings.Contains(result, "Desk") {
			t.Errorf("expected device names, got %s", result)
		}
		if !strings.Contains(result, ">") {
			t.Errorf("expected selected marker, got %s", result)
		}
	})

	t.Run("list json", func(t *testing.T) {
		player := tu.NewMockPlayer()
		player.DeviceList = testDevices
		runner, _, output := newTestRunner(t, player)

		if err := run(ctx, runner, "devices", "list", "--format", "json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var decoded []models.Device
		if err := json.Unmarshal(output.Bytes(), &decoded); err != nil {
			t.Fatalf("expected JSON output, got %v: %s", err, output.String())
		}
		if len(decoded) != len(testDevices) {
			t.Errorf("expected %d devices, got %d", len(testDevices), len(decoded))
		}
	})

	t.Run("list invalid format", func(t *testing.T) {
		runner, _, _ := newTestRunner(t, tu.NewMockPlayer())
		if err := run(ctx, runner, "devices", "list", "--format", "yaml"); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("list propagates API errors", func(t *testing.T) {
		player := tu.NewMockPlayer()
		player.DevicesErr = errors.New("status 401")
		runner, _, _ := newTestRunner(t, player)

		if err := run(ctx, runner, "devices", "list"); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("select by name", func(t *testing.T) {
		player := tu.NewMockPlayer()
		player.DeviceList = testDevices
		runner, store, output := newTestRunner(t, player)

		if err := run(ctx, runner, "devices", "select", "kitchen"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		v, ok, _ := store.Get(ctx, repositories.KeyDeviceID)
		if !ok || v != "dev1;Kitchen" {
			t.Errorf("expected dev1;Kitchen stored, got %q", v)
		}
		if !strings.Contains(output.String(), "Selected Kitchen") {
			t.Errorf("expected confirmation, got %s", output.String())
		}
	})

	t.Run("select by id", func(t *testing.T) {
		player := tu.NewMockPlayer()
		player.DeviceList = testDevices
		runner, store, _ := newTestRunner(t, player)

		if err := run(ctx, runner, "devices", "select", "dev3"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if v, _, _ := store.Get(ctx, repositories.KeyDeviceID); v != "dev3;desk" {
			t.Errorf("expected dev3;desk stored, got %q", v)
		}
	})

	t.Run("select errors", func(t *testing.T) {
		tests := []struct {
			name string
			args []string
			want error
		}{
			{name: "ambiguous name", args: []string{"devices", "select", "DESK"}, want: shared.ErrInvalidArgument},
			{name: "no match", args: []string{"devices", "select", "garage"}, want: shared.ErrInvalidArgument},
			{name: "missing argument", args: []string{"devices", "select"}, want: shared.ErrMissingArgument},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				player := tu.NewMockPlayer()
				player.DeviceList = testDevices
				runner, store, _ := newTestRunner(t, player)

				if err := run(ctx, runner, tt.args...); !errors.Is(err, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, err)
				}
				if _, ok, _ := store.Get(ctx, repositories.KeyDeviceID); ok {
					t.Error("nothing should be stored on failure")
				}
			})
		}
	})

	t.Run("clear", func(t *testing.T) {
		runner, store, _ := newTestRunner(t, tu.NewMockPlayer())
		store.Set(ctx, repositories.KeyDeviceID, "dev1;Kitchen")

		if err := run(ctx, runner, "devices", "clear"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, ok, _ := store.Get(ctx, repositories.KeyDeviceID); ok {
			t.Error("expected selection to be cleared")
		}
	})
}

func TestPlaybackCommands(t *testing.T) {
	ctx := context.Background()

	t.Run("play follows the track until it ends", func(t *testing.T) {
		player := tu.NewMockPlayer(models.PlayerPlaying, models.PlayerStopped)
		runner, store, output := newTestRunner(t, player)
		store.Set(ctx, repositories.KeyDeviceID, "dev1;Kitchen")

		if err := run(ctx, runner, "play", "spotify:track:abc"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		calls := player.Calls()
		if len(calls) == 0 || calls[0] != "play:dev1:abc" {
			t.Errorf("expected play on dev1 first, got %v", calls)
		}
		if player.Count("check:abc") < 2 {
			t.Errorf("expected the session to poll until stopped, got %v", calls)
		}
		if player.Count("pause:") != 0 {
			t.Errorf("a finished track should not be paused, got %v", calls)
		}
		if !strings.Contains(output.String(), "abc is no longer playing") {
			t.Errorf("expected finished status, got %s", output.String())
		}
	})

	t.Run("play pauses when interrupted", func(t *testing.T) {
		player := tu.NewMockPlayer(models.PlayerPlaying)
		runner, _, _ := newTestRunner(t, player)

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
		defer cancel()

		if err := run(ctx, runner, "play", "--device", "dev9", "abc"); err != nil {
			t.Fatalf("expected clean exit, got %v", err)
		}
		if player.Count("pause:dev9") != 1 {
			t.Errorf("expected a pause on interrupt, got %v", player.Calls())
		}
	})

	t.Run("play detached", func(t *testing.T) {
		player := tu.NewMockPlayer()
		runner, _, output := newTestRunner(t, player)

		if err := run(ctx, runner, "play", "--detach", "--device", "dev9", "https://open.spotify.com/track/xyz?si=1"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if calls := player.Calls(); len(calls) != 1 || calls[0] != "play:dev9:xyz" {
			t.Errorf("expected a single play call, got %v", calls)
		}
		if !strings.Contains(output.String(), "Playing xyz") {
			t.Errorf("expected confirmation, got %s", output.String())
		}
	})

	t.Run("play reports failure", func(t *testing.T) {
		player := tu.NewMockPlayer()
		player.PlayErr = errors.New("status 404")
		runner, _, _ := newTestRunner(t, player)

		err := run(ctx, runner, "play", "--device", "dev1", "abc")
		if err == nil || !strings.Contains(err.Error(), "status 404") {
			t.Errorf("expected the play error, got %v", err)
		}
	})

	t.Run("play uses configured device", func(t *testing.T) {
		player := tu.NewMockPlayer()
		runner, _, _ := newTestRunner(t, player)
		runner.config.Playback.DeviceID = "cfg-dev"

		if err := run(ctx, runner, "play", "--detach", "abc"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if player.Count("play:cfg-dev:abc") != 1 {
			t.Errorf("expected configured device, got %v", player.Calls())
		}
	})

	t.Run("play without device", func(t *testing.T) {
		runner, _, _ := newTestRunner(t, tu.NewMockPlayer())
		if err := run(ctx, runner, "play", "abc"); !errors.Is(err, shared.ErrNoDevice) {
			t.Errorf("expected ErrNoDevice, got %v", err)
		}
	})

	t.Run("pause and resume target the active device by default", func(t *testing.T) {
		player := tu.NewMockPlayer()
		runner, _, _ := newTestRunner(t, player)

		if err := run(ctx, runner, "pause"); err != nil {
			t.Fatalf("pause failed: %v", err)
		}
		if err := run(ctx, runner, "resume", "--device", "dev2"); err != nil {
			t.Fatalf("resume failed: %v", err)
		}

		calls := player.Calls()
		if len(calls) != 2 || calls[0] != "pause:" || calls[1] != "resume:dev2" {
			t.Errorf("unexpected calls %v", calls)
		}
	})

	t.Run("volume", func(t *testing.T) {
		player := tu.NewMockPlayer()
		player.VolumePercent = 35
		runner, _, output := newTestRunner(t, player)

		if err := run(ctx, runner, "volume"); err != nil {
			t.Fatalf("volume failed: %v", err)
		}
		if !strings.Contains(output.String(), "Volume: 35%") {
			t.Errorf("expected current volume, got %s", output.String())
		}

		if err := run(ctx, runner, "volume", "--device", "dev1", "70%"); err != nil {
			t.Fatalf("set volume failed: %v", err)
		}
		if player.Count("set-volume:dev1:70") != 1 {
			t.Errorf("expected set-volume call, got %v", player.Calls())
		}

		if err := run(ctx, runner, "volume", "loud"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestAuthCommands(t *testing.T) {
	ctx := context.Background()
	future := strconv.FormatInt(time.Now().Add(time.Hour).UnixMilli(), 10)

	t.Run("status without credentials", func(t *testing.T) {
		runner, _, output := newTestRunner(t, nil)

		if err := run(ctx, runner, "auth", "status"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "Not authenticated") {
			t.Errorf("expected not authenticated, got %s", output.String())
		}
	})

	t.Run("status json", func(t *testing.T) {
		runner, store, output := newTestRunner(t, nil)
		store.Set(ctx, auth.KeyAccessToken, "abcdefghijkl")
		store.Set(ctx, auth.KeyTokenExpiration, future)

		if err := run(ctx, runner, "auth", "status", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var status authStatus
		if err := json.Unmarshal(output.Bytes(), &status); err != nil {
			t.Fatalf("expected JSON, got %v: %s", err, output.String())
		}
		if !status.Authenticated || status.Expired {
			t.Errorf("expected valid credentials, got %+v", status)
		}
		if status.Token != "abcd****ijkl" {
			t.Errorf("expected redacted token, got %s", status.Token)
		}
	})

	t.Run("login reuses stored credentials", func(t *testing.T) {
		runner, store, output := newTestRunner(t, nil)
		store.Set(ctx, auth.KeyAccessToken, "abcdefghijkl")
		store.Set(ctx, auth.KeyTokenExpiration, future)

		if err := run(ctx, runner, "auth", "login"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "Authenticated until") {
			t.Errorf("expected confirmation, got %s", output.String())
		}
	})

	t.Run("logout", func(t *testing.T) {
		runner, store, _ := newTestRunner(t, nil)
		store.Set(ctx, auth.KeyAccessToken, "abc")
		store.Set(ctx, auth.KeyTokenExpiration, future)

		if err := run(ctx, runner, "auth", "logout"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		for _, key := range []string{auth.KeyAccessToken, auth.KeyTokenExpiration} {
			if _, ok, _ := store.Get(ctx, key); ok {
				t.Errorf("expected %s to be cleared", key)
			}
		}
	})
}

func TestConfigLoading(t *testing.T) {
	ctx := context.Background()

	t.Run("missing config falls back to defaults", func(t *testing.T) {
		t.Setenv(shared.EnvStore, "memory")
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		path := filepath.Join(t.TempDir(), "missing.toml")
		if err := run(ctx, runner, "--config", path, "--env", "", "auth", "status"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if runner.config == nil || runner.config.Spotify.CallbackPort != auth.DefaultCallbackPort {
			t.Errorf("expected default config, got %+v", runner.config)
		}
		if runner.store != nil {
			t.Error("expected the runner to close the store it opened")
		}
	})

	t.Run("dotenv overlay", func(t *testing.T) {
		t.Cleanup(func() { os.Unsetenv(shared.EnvStore) })
		os.Unsetenv(shared.EnvStore)

		dir := t.TempDir()
		envPath := filepath.Join(dir, ".env")
		if err := os.WriteFile(envPath, []byte("SPOTCTL_STORE=memory\n"), 0644); err != nil {
			t.Fatalf("failed to write env file: %v", err)
		}

		runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
		if err := run(ctx, runner, "--config", filepath.Join(dir, "none.toml"), "--env", envPath, "auth", "status"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if runner.config.Store.Type != "memory" {
			t.Errorf("expected memory store from dotenv, got %s", runner.config.Store.Type)
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")
		if err := os.WriteFile(path, []byte("[store]\ntype = \"etcd\"\n"), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
		err := run(ctx, runner, "--config", path, "--env", "", "auth", "status")
		if !errors.Is(err, shared.ErrUnknownStore) {
			t.Errorf("expected ErrUnknownStore, got %v", err)
		}
	})

	t.Run("setup creates config", func(t *testing.T) {
		t.Setenv(shared.EnvStore, "memory")
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")
		output := &bytes.Buffer{}

		runner := NewRunner(RunnerOpts{Output: output})
		if err := run(ctx, runner, "--config", path, "--env", "", "setup"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		tu.AssertFileExists(t, path)
		if !strings.Contains(output.String(), "Store ready") {
			t.Errorf("expected store confirmation, got %s", output.String())
		}
	})
}

func TestParseTrackID(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "4uLU6hMCjMI75M1A2tKUQC", want: "4uLU6hMCjMI75M1A2tKUQC"},
		{input: "spotify:track:4uLU6hMCjMI75M1A2tKUQC", want: "4uLU6hMCjMI75M1A2tKUQC"},
		{input: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=abc", want: "4uLU6hMCjMI75M1A2tKUQC"},
		{input: "https://open.spotify.com/intl-de/track/4uLU6hMCjMI75M1A2tKUQC", want: "4uLU6hMCjMI75M1A2tKUQC"},
		{input: "https://open.spotify.com/album/1", wantErr: true},
		{input: "spotify:track:", wantErr: true},
		{input: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseTrackID(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %s", got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("expected %s, got %s (%v)", tt.want, got, err)
			}
		})
	}
}
