package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotctl/internal/models"
	"github.com/desertthunder/spotctl/internal/shared"
)

const (
	// CallbackPath is the redirect target registered with the provider.
	CallbackPath = "/Callback"

	// ShutdownGrace bounds the graceful stop before the listener is closed forcibly.
	ShutdownGrace = 500 * time.Millisecond

	paramAccessToken = "access_token"
	paramExpiresIn   = "expires_in"
	paramState       = "state"

	// maxExpiresIn is the largest lifetime in seconds that fits a time.Duration.
	maxExpiresIn = int64(math.MaxInt64 / int64(time.Second))
)

var (
	landingPage = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Authorization Successful</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Access token received</h1>
        <p>You may now close this window and return to the terminal.</p>
    </div>
</body>
</html>
`))

	// redirectPage moves the fragment into the query string so the token reaches the server.
	redirectPage = template.Must(template.New("redirect").Parse(`<!DOCTYPE html>
<html>
<head><title>Completing authorization</title></head>
<body>
    <p>Redirecting...</p>
    <script>
        if (window.location.hash) {
            window.location.replace({{.}} + "?" + window.location.hash.substring(1));
        }
    </script>
</body>
</html>
`))
)

// CallbackOptions configures a [CallbackReceiver].
type CallbackOptions struct {
	// Port to bind on localhost. Zero picks an ephemeral port.
	Port int
	// State is the anti-forgery value every token-bearing callback must echo.
	State  string
	Logger *log.Logger
	// Now defaults to [time.Now].
	Now func() time.Time
}

// CallbackHandler serves /Callback and records the first valid token.
// Implements the [Handler] interface for registration with a Router.
type CallbackHandler struct {
	state       string
	redirectURL string
	now         func() time.Time
	logger      *log.Logger

	mu       sync.Mutex
	received bool
	result   models.TokenValues
	done     chan struct{}
}

// NewCallbackHandler creates a handler expecting state whose redirect page points back at redirectURL.
func NewCallbackHandler(state, redirectURL string, now func() time.Time, logger *log.Logger) *CallbackHandler {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &CallbackHandler{
		state:       state,
		redirectURL: redirectURL,
		now:         now,
		logger:      logger,
		done:        make(chan struct{}),
	}
}

// Routes returns the callback path and a catch-all that answers with an empty body.
func (h *CallbackHandler) Routes() []string {
	return []string{CallbackPath, "/"}
}

// ServeHTTP handles both phases of the callback.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != CallbackPath {
		h.logger.Debug("ignoring request", "path", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		return
	}

	query := r.URL.Query()
	if !query.Has(paramAccessToken) {
		h.logger.Debug("serving fragment redirect")
		h.render(w, redirectPage, h.redirectURL)
		return
	}

	if state := query.Get(paramState); state != h.state {
		h.logger.Warn("ignoring callback with wrong state", "state", state)
		http.Error(w, "Invalid state parameter", http.StatusForbidden)
		return
	}

	expiresIn, err := strconv.ParseInt(query.Get(paramExpiresIn), 10, 64)
	if err != nil || expiresIn < 0 || expiresIn > maxExpiresIn {
		h.logger.Warn("ignoring callback with malformed expiry", "expires_in", query.Get(paramExpiresIn))
		http.Error(w, "Invalid expires_in parameter", http.StatusBadRequest)
		return
	}

	lifetime := time.Duration(expiresIn) * time.Second
	if lifetime < models.ExpirationMargin {
		h.logger.Warn("token lifetime shorter than refresh margin, expiring immediately", "expires_in", expiresIn)
	}
	values := models.NewTokenValues(query.Get(paramAccessToken), lifetime, h.now())

	h.mu.Lock()
	if h.received {
		h.mu.Unlock()
		h.logger.Debug("token already received, ignoring duplicate callback")
	} else {
		h.received = true
		h.result = values
		h.mu.Unlock()
		close(h.done)
		h.logger.Info("access token received", "expires_at", values.ExpiresAt.Format(time.RFC3339))
	}

	h.render(w, landingPage, nil)
}

func (h *CallbackHandler) render(w http.ResponseWriter, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := tmpl.Execute(w, data); err != nil {
		h.logger.Error("failed to write page", "template", tmpl.Name(), "error", err)
	}
}

// Done is closed once a valid token has been recorded.
func (h *CallbackHandler) Done() <-chan struct{} {
	return h.done
}

// Result returns the recorded token and whether one has been received.
func (h *CallbackHandler) Result() (models.TokenValues, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.received
}

// CallbackReceiver is a single-shot loopback HTTP listener for one authorization attempt.
type CallbackReceiver struct {
	handler     *CallbackHandler
	listener    net.Listener
	srv         *http.Server
	redirectURL string
	logger      *log.Logger

	serveErr chan error
	served   chan struct{}
	stopOnce sync.Once
}

// StartCallbackReceiver binds localhost:<port> and starts serving before it returns.
//
// A bind failure wraps [shared.ErrBindFailed].
func StartCallbackReceiver(opts CallbackOptions) (*CallbackReceiver, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	logger = shared.WithLogger(logger, "component", "callback")

	listener, err := net.Listen("tcp", net.JoinHostPort("localhost", strconv.Itoa(opts.Port)))
	if err != nil {
		return nil, fmt.Errorf("%w: port %d: %v", shared.ErrBindFailed, opts.Port, err)
	}

	port := listener.Addr().(*net.TCPAddr).Port
	redirectURL := fmt.Sprintf("http://localhost:%d%s", port, CallbackPath)
	handler := NewCallbackHandler(opts.State, redirectURL, opts.Now, logger)

	router := NewBasicRouter()
	router.Use(LogRequests(logger), NoStore)
	router.Handler(handler)

	r := &CallbackReceiver{
		handler:     handler,
		listener:    listener,
		srv:         &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second},
		redirectURL: redirectURL,
		logger:      logger,
		serveErr:    make(chan error, 1),
		served:      make(chan struct{}),
	}

	go func() {
		defer close(r.served)
		if err := r.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.serveErr <- err
		}
	}()

	logger.Debug("listening for callback", "url", redirectURL)
	return r, nil
}

// RedirectURL is the URL the provider must redirect to.
func (r *CallbackReceiver) RedirectURL() string {
	return r.redirectURL
}

// Handler exposes the receiver's callback handler.
func (r *CallbackReceiver) Handler() *CallbackHandler {
	return r.handler
}

// WaitForToken blocks until a valid callback arrives.
//
// A non-positive timeout waits indefinitely. Timeout returns [shared.ErrTimeout] and context cancellation returns an
// error wrapping ctx.Err(). The listener is stopped on every return path.
func (r *CallbackReceiver) WaitForToken(ctx context.Context, timeout time.Duration) (models.TokenValues, error) {
	defer r.Stop()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-r.handler.Done():
		values, _ := r.handler.Result()
		return values, nil
	case err := <-r.serveErr:
		return models.TokenValues{}, fmt.Errorf("%w: callback server stopped: %v", shared.ErrAuthFailed, err)
	case <-expired:
		return models.TokenValues{}, fmt.Errorf("%w: no callback within %s", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		return models.TokenValues{}, fmt.Errorf("waiting for callback: %w", ctx.Err())
	}
}

// Stop shuts the listener down, forcing it closed after [ShutdownGrace]. Safe to call more than once.
func (r *CallbackReceiver) Stop() {
	r.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
		defer cancel()

		if err := r.srv.Shutdown(ctx); err != nil {
			r.logger.Warn("graceful shutdown failed, closing", "error", err)
			if err := r.srv.Close(); err != nil {
				r.logger.Error("could not close callback server", "error", err)
			}
		}
		<-r.served
		r.logger.Debug("callback server stopped")
	})
}
