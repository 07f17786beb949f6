package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotctl/internal/models"
	"github.com/desertthunder/spotctl/internal/shared"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	PlayerBaseURL     = "https://api.spotify.com/v1/me/player/"
	DefaultRetryDelay = 2 * time.Second
	requestTimeout    = 15 * time.Second
)

// PlaybackError reports a failed player request. StatusCode is zero for transport failures.
type PlaybackError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *PlaybackError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: %s: status %d: %v", e.Op, shared.ErrPlayback, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %s: status %d", e.Op, shared.ErrPlayback, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Op, shared.ErrPlayback, e.Err)
	}
}

func (e *PlaybackError) Unwrap() []error {
	return []error{shared.ErrPlayback, e.Err}
}

// PlayerOptions configures a [PlayerService]. Zero values take the defaults.
type PlayerOptions struct {
	BaseURL string
	// Transport carries requests once the bearer header is attached.
	Transport  http.RoundTripper
	RetryDelay time.Duration
	// RateLimit caps requests per second. Zero disables limiting.
	RateLimit float64
	Logger    *log.Logger
}

// PlayerService controls remote playback through the Web API player endpoints.
//
// Every request reads the bearer token from its source, so a refresh mid-session is picked up by the next call.
type PlayerService struct {
	baseURL    string
	client     *http.Client
	retryDelay time.Duration
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewPlayerService creates a [PlayerService] authenticating with src.
func NewPlayerService(src oauth2.TokenSource, opts PlayerOptions) *PlayerService {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = PlayerBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &PlayerService{
		baseURL: baseURL,
		client: &http.Client{
			Transport: &oauth2.Transport{Source: src, Base: transport},
			Timeout:   requestTimeout,
		},
		retryDelay: retryDelay,
		limiter:    limiter,
		logger:     shared.WithLogger(logger, "component", "player"),
	}
}

type playRequest struct {
	URIs []string `json:"uris"`
}

type devicesResponse struct {
	Devices []models.Device `json:"devices"`
}

// TrackURI converts a bare track id to a Spotify URI.
func TrackURI(songID string) string {
	return "spotify:track:" + songID
}

// Devices lists the user's available playback devices.
func (s *PlayerService) Devices(ctx context.Context) ([]models.Device, error) {
	body, _, err := s.do(ctx, "devices", http.MethodGet, "devices", nil, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var resp devicesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &PlaybackError{Op: "devices", Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return resp.Devices, nil
}

// Play starts songID from the beginning on deviceID.
func (s *PlayerService) Play(ctx context.Context, deviceID, songID string) error {
	payload, err := json.Marshal(playRequest{URIs: []string{TrackURI(songID)}})
	if err != nil {
		return &PlaybackError{Op: "play", Err: err}
	}

	_, _, err = s.do(ctx, "play", http.MethodPut, "play", deviceQuery(deviceID), payload, http.StatusOK, http.StatusNoContent)
	return err
}

// Resume continues the current track on deviceID.
func (s *PlayerService) Resume(ctx context.Context, deviceID string) error {
	_, _, err := s.do(ctx, "resume", http.MethodPut, "play", deviceQuery(deviceID), nil, http.StatusOK, http.StatusNoContent)
	return err
}

// Pause pauses playback on deviceID.
func (s *PlayerService) Pause(ctx context.Context, deviceID string) error {
	_, _, err := s.do(ctx, "pause", http.MethodPut, "pause", deviceQuery(deviceID), nil, http.StatusOK, http.StatusNoContent)
	return err
}

// SetVolume sets the volume of deviceID to percent, which must be within 0-100.
func (s *PlayerService) SetVolume(ctx context.Context, deviceID string, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: volume %d outside 0-100", shared.ErrInvalidArgument, percent)
	}

	query := deviceQuery(deviceID)
	query.Set("volume_percent", strconv.Itoa(percent))

	_, _, err := s.do(ctx, "volume", http.MethodPut, "volume", query, nil, http.StatusOK, http.StatusNoContent)
	return err
}

// Volume reads the active device's volume.
func (s *PlayerService) Volume(ctx context.Context) (int, error) {
	body, status, err := s.do(ctx, "volume", http.MethodGet, "", nil, nil, http.StatusOK, http.StatusNoContent)
	if err != nil {
		return 0, err
	}
	if status == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return 0, &PlaybackError{Op: "volume", StatusCode: status, Err: errors.New("no active device")}
	}

	v := gjson.GetBytes(body, "device.volume_percent")
	if !v.Exists() {
		return 0, &PlaybackError{Op: "volume", Err: errors.New("response missing device.volume_percent")}
	}
	return int(v.Int()), nil
}

// CheckState classifies the remote player relative to songID.
//
// Nothing playing, a never-started track, or a different track all report [models.PlayerStopped].
func (s *PlayerService) CheckState(ctx context.Context, songID string) (models.PlayerState, error) {
	body, status, err := s.do(ctx, "state", http.MethodGet, "", nil, nil, http.StatusOK, http.StatusNoContent)
	if err != nil {
		return models.PlayerStopped, err
	}
	if status == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return models.PlayerStopped, nil
	}
	if !gjson.ValidBytes(body) {
		return models.PlayerStopped, &PlaybackError{Op: "state", Err: errors.New("invalid body")}
	}

	return classifyState(gjson.ParseBytes(body), songID)
}

func classifyState(state gjson.Result, songID string) (models.PlayerState, error) {
	isPlaying := state.Get("is_playing")
	if !isPlaying.Exists() {
		return models.PlayerStopped, &PlaybackError{Op: "state", Err: errors.New("response missing is_playing")}
	}

	playing := isPlaying.Bool()
	if !playing && state.Get("progress_ms").Int() == 0 {
		return models.PlayerStopped, nil
	}

	if id := state.Get("item.id"); !id.Exists() || id.String() != songID {
		return models.PlayerStopped, nil
	}

	if playing {
		return models.PlayerPlaying, nil
	}
	return models.PlayerPaused, nil
}

func deviceQuery(deviceID string) url.Values {
	q := url.Values{}
	if deviceID != "" {
		q.Set("device_id", deviceID)
	}
	return q
}

// do sends one request, retrying exactly once after retryDelay when the API answers 202.
//
// Any status outside accept is a [PlaybackError] carrying that status.
func (s *PlayerService) do(ctx context.Context, op, method, path string, query url.Values, payload []byte, accept ...int) ([]byte, int, error) {
	endpoint := s.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var (
		body   []byte
		status int
	)
	operation := func() error {
		b, code, err := s.send(ctx, method, endpoint, payload)
		if err != nil {
			return backoff.Permanent(&PlaybackError{Op: op, Err: err})
		}
		if code == http.StatusAccepted {
			return &PlaybackError{Op: op, StatusCode: code}
		}
		if !slices.Contains(accept, code) {
			return backoff.Permanent(&PlaybackError{Op: op, StatusCode: code, Err: apiMessage(b)})
		}
		body, status = b, code
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(s.retryDelay), 1), ctx)
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("request accepted but not applied, retrying", "op", op, "in", wait)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		var perr *PlaybackError
		if errors.As(err, &perr) {
			return nil, 0, perr
		}
		return nil, 0, &PlaybackError{Op: op, Err: fmt.Errorf("interrupted while waiting for retry: %w", err)}
	}
	return body, status, nil
}

func (s *PlayerService) send(ctx context.Context, method, endpoint string, payload []byte) ([]byte, int, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	s.logger.Debug("request", "method", method, "url", endpoint)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// apiMessage extracts the error message from an API error body, if any.
func apiMessage(body []byte) error {
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() && msg.String() != "" {
		return errors.New(msg.String())
	}
	return nil
}
