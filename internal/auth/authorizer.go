package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotctl/internal/models"
	"github.com/desertthunder/spotctl/internal/server"
	"github.com/desertthunder/spotctl/internal/shared"
	"github.com/hashicorp/go-multierror"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultClientID     = "902fe6b9a4b6421caf88ee01e809939a"
	DefaultCallbackPort = 50336
	DefaultAuthTimeout  = time.Minute
	DefaultLockTimeout  = 10 * time.Second

	// Store keys. The expiration is persisted as epoch milliseconds.
	KeyAccessToken     = "accessToken"
	KeyTokenExpiration = "tokenExpiration"
)

// DefaultScopes are the playback scopes requested on every authorization.
var DefaultScopes = []string{
	spotifyauth.ScopeUserModifyPlaybackState,
	spotifyauth.ScopeUserReadPlaybackState,
}

// Store persists token values between runs.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Clear(ctx context.Context, key string) error
}

// BrowserOpener shows url to the user.
type BrowserOpener func(url string) error

// StateReporter receives human-readable progress messages.
type StateReporter func(msg string)

// Options configures an [Authorizer]. Zero values take the package defaults.
type Options struct {
	ClientID    string
	Port        int
	Scopes      []string
	Timeout     time.Duration
	LockTimeout time.Duration

	OpenBrowser   BrowserOpener
	ReportState   StateReporter
	GenerateState func() string
	Now           func() time.Time
	Logger        *log.Logger
}

// Authorizer runs the implicit-grant flow and hands out self-refreshing tokens.
//
// At most one interactive flow runs at a time per Authorizer; share one instance across the process.
type Authorizer struct {
	store  Store
	opts   Options
	logger *log.Logger
	flow   *semaphore.Weighted
}

// NewAuthorizer creates an [Authorizer] persisting to store.
func NewAuthorizer(store Store, opts Options) *Authorizer {
	if opts.ClientID == "" {
		opts.ClientID = DefaultClientID
	}
	if len(opts.Scopes) == 0 {
		opts.Scopes = DefaultScopes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultAuthTimeout
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}
	if opts.ReportState == nil {
		opts.ReportState = func(string) {}
	}
	if opts.GenerateState == nil {
		opts.GenerateState = shared.GenerateState
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	return &Authorizer{
		store:  store,
		opts:   opts,
		logger: shared.WithLogger(opts.Logger, "component", "auth"),
		flow:   semaphore.NewWeighted(1),
	}
}

// Authorize returns a live token, reusing persisted values when present.
//
// Expired persisted values are replaced through the browser flow before returning. Later expirations re-run the
// same flow from [Token.Value].
func (a *Authorizer) Authorize(ctx context.Context) (*Token, error) {
	a.opts.ReportState("Retrieving OAuth token")

	values, ok := a.Persisted(ctx)
	if !ok {
		fresh, err := a.performBrowserAuthorization(ctx, false)
		if err != nil {
			return nil, err
		}
		values = fresh
	}

	token := a.newToken(values)
	if ok && values.Expired(a.opts.Now()) {
		a.logger.Info("persisted token expired, re-authorizing")
		if err := token.Refresh(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
		}
	}

	a.opts.ReportState("OAuth token received")
	return token, nil
}

// Reauthorize ignores persisted values and always runs the browser flow, prompting for the account again.
func (a *Authorizer) Reauthorize(ctx context.Context) (*Token, error) {
	a.opts.ReportState("Retrieving OAuth token")

	values, err := a.performBrowserAuthorization(ctx, true)
	if err != nil {
		return nil, err
	}

	a.opts.ReportState("OAuth token received")
	return a.newToken(values), nil
}

// Logout removes the persisted token values.
func (a *Authorizer) Logout(ctx context.Context) error {
	var result *multierror.Error
	for _, key := range []string{KeyAccessToken, KeyTokenExpiration} {
		if err := a.store.Clear(ctx, key); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to clear %s: %w", key, err))
		}
	}
	return result.ErrorOrNil()
}

// Persisted loads the stored token values. Missing, unreadable, or unparsable values count as absent.
func (a *Authorizer) Persisted(ctx context.Context) (models.TokenValues, bool) {
	token, ok, err := a.store.Get(ctx, KeyAccessToken)
	if err != nil {
		a.logger.Warn("could not read persisted token", "error", err)
		return models.TokenValues{}, false
	}
	if !ok {
		return models.TokenValues{}, false
	}

	expiration, ok, err := a.store.Get(ctx, KeyTokenExpiration)
	if err != nil || !ok {
		a.logger.Warn("persisted token has no expiration", "error", err)
		return models.TokenValues{}, false
	}

	values, err := models.ParseTokenValues(token, expiration)
	if err != nil {
		a.logger.Warn("ignoring persisted token", "error", err)
		return models.TokenValues{}, false
	}
	return values, true
}

// AuthURL builds the provider authorization URL for one attempt.
func (a *Authorizer) AuthURL(redirectURL, state string, showDialog bool) string {
	cfg := oauth2.Config{
		ClientID:    a.opts.ClientID,
		Endpoint:    oauth2.Endpoint{AuthURL: spotifyauth.AuthURL},
		RedirectURL: redirectURL,
		Scopes:      a.opts.Scopes,
	}

	opts := []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("response_type", "token")}
	if showDialog {
		opts = append(opts, spotifyauth.ShowDialog)
	}
	return cfg.AuthCodeURL(state, opts...)
}

func (a *Authorizer) newToken(values models.TokenValues) *Token {
	refresh := func(ctx context.Context) (models.TokenValues, error) {
		return a.performBrowserAuthorization(ctx, false)
	}
	return NewToken(values, refresh, WithClock(a.opts.Now), WithTokenLogger(a.logger))
}

func (a *Authorizer) performBrowserAuthorization(ctx context.Context, showDialog bool) (models.TokenValues, error) {
	lockCtx, cancel := context.WithTimeout(ctx, a.opts.LockTimeout)
	err := a.flow.Acquire(lockCtx, 1)
	cancel()
	if err != nil {
		return models.TokenValues{}, fmt.Errorf("%w: %w: waited %s", shared.ErrAuthFailed, shared.ErrAuthInProgress, a.opts.LockTimeout)
	}
	defer a.flow.Release(1)

	state := a.opts.GenerateState()
	receiver, err := server.StartCallbackReceiver(server.CallbackOptions{
		Port:   a.opts.Port,
		State:  state,
		Logger: a.opts.Logger,
		Now:    a.opts.Now,
	})
	if err != nil {
		return models.TokenValues{}, fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}

	authURL := a.AuthURL(receiver.RedirectURL(), state, showDialog)
	a.logger.Debug("opening browser", "redirect_url", receiver.RedirectURL())
	if err := a.opts.OpenBrowser(authURL); err != nil {
		receiver.Stop()
		return models.TokenValues{}, fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}

	values, err := receiver.WaitForToken(ctx, a.opts.Timeout)
	switch {
	case errors.Is(err, shared.ErrTimeout):
		return models.TokenValues{}, fmt.Errorf("%w: not authenticated within %s", shared.ErrAuthFailed, humanDuration(a.opts.Timeout))
	case err != nil:
		return models.TokenValues{}, fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	case values.IsZero():
		return models.TokenValues{}, fmt.Errorf("%w: received null token", shared.ErrAuthFailed)
	}

	if err := a.store.Set(ctx, KeyAccessToken, values.Token); err != nil {
		return models.TokenValues{}, fmt.Errorf("%w: failed to persist token: %w", shared.ErrAuthFailed, err)
	}
	if err := a.store.Set(ctx, KeyTokenExpiration, values.ExpirationMillis()); err != nil {
		return models.TokenValues{}, fmt.Errorf("%w: failed to persist expiration: %w", shared.ErrAuthFailed, err)
	}

	a.logger.Info("authorization complete", "expires_at", values.ExpiresAt.Format(time.RFC3339))
	return values, nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d == time.Minute:
		return "1 minute"
	case d > time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}
