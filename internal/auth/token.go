package auth

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotctl/internal/models"
	"github.com/desertthunder/spotctl/internal/shared"
	"golang.org/x/oauth2"
)

// Refresher obtains replacement token values once the current ones expire.
type Refresher func(ctx context.Context) (models.TokenValues, error)

// Listener is invoked with the token after every successful refresh.
type Listener func(t *Token)

// ListenerID identifies a registered [Listener] for removal.
type ListenerID uint64

type listenerEntry struct {
	id ListenerID
	fn Listener
}

// Token is a self-refreshing bearer token shared by every component that calls the API.
//
// Readers never observe a token paired with another token's expiration. Concurrent reads of an expired token trigger
// one refresh.
type Token struct {
	mu     sync.RWMutex
	values models.TokenValues

	refreshMu sync.Mutex
	refresher Refresher
	now       func() time.Time
	logger    *log.Logger

	// listeners is replaced wholesale on every change so refresh can iterate without locking.
	listenersMu sync.Mutex
	listeners   atomic.Pointer[[]listenerEntry]
	nextID      atomic.Uint64
}

// TokenOption configures a [Token].
type TokenOption func(*Token)

// WithClock overrides [time.Now] for expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(t *Token) { t.now = now }
}

// WithTokenLogger sets the logger used to report refresh failures.
func WithTokenLogger(l *log.Logger) TokenOption {
	return func(t *Token) { t.logger = shared.WithLogger(l, "component", "token") }
}

// NewToken wraps values with refresher, which is called whenever the values have expired.
func NewToken(values models.TokenValues, refresher Refresher, opts ...TokenOption) *Token {
	t := &Token{
		values:    values,
		refresher: refresher,
		now:       time.Now,
		logger:    log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(t)
	}
	empty := []listenerEntry{}
	t.listeners.Store(&empty)
	return t
}

// Values returns a consistent snapshot of the token and its expiration.
func (t *Token) Values() models.TokenValues {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.values
}

// Value returns the bearer token, refreshing it first if it has expired.
//
// A failed refresh is logged and the stale value is returned, so callers see a rejected request rather than an
// error here.
func (t *Token) Value(ctx context.Context) string {
	current := t.Values()
	if !current.Expired(t.now()) {
		return current.Token
	}

	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()

	// Another caller may have refreshed while this one waited.
	current = t.Values()
	if !current.Expired(t.now()) {
		return current.Token
	}

	if err := t.refreshLocked(ctx); err != nil {
		t.logger.Error("could not refresh token", "error", err)
		return current.Token
	}
	return t.Values().Token
}

// Refresh replaces the values regardless of expiry and returns any failure.
func (t *Token) Refresh(ctx context.Context) error {
	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()
	return t.refreshLocked(ctx)
}

func (t *Token) refreshLocked(ctx context.Context) error {
	fresh, err := t.refresher(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}
	if fresh.IsZero() {
		return fmt.Errorf("%w: received null token", shared.ErrRefreshFailed)
	}

	t.mu.Lock()
	t.values = fresh
	t.mu.Unlock()

	t.logger.Debug("refreshed access token", "expires_at", fresh.ExpiresAt.Format(time.RFC3339))

	for _, l := range *t.listeners.Load() {
		l.fn(t)
	}
	return nil
}

// AddListener registers fn to run after every successful refresh.
func (t *Token) AddListener(fn Listener) ListenerID {
	id := ListenerID(t.nextID.Add(1))

	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()

	next := append(slices.Clone(*t.listeners.Load()), listenerEntry{id: id, fn: fn})
	t.listeners.Store(&next)
	return id
}

// RemoveListener unregisters a listener. Unknown ids are ignored.
func (t *Token) RemoveListener(id ListenerID) {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()

	next := slices.DeleteFunc(slices.Clone(*t.listeners.Load()), func(e listenerEntry) bool { return e.id == id })
	t.listeners.Store(&next)
}

// TokenSource adapts the token for [oauth2.Transport]. Each call reads the current value, refreshing if needed.
func (t *Token) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, token: t}
}

type tokenSource struct {
	ctx   context.Context
	token *Token
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	value := s.token.Value(s.ctx)
	if value == "" {
		return nil, shared.ErrNotAuthenticated
	}
	return &oauth2.Token{
		AccessToken: value,
		TokenType:   "Bearer",
		Expiry:      s.token.Values().ExpiresAt,
	}, nil
}
