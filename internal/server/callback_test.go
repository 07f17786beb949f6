package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/spotctl/internal/shared"
)

func callbackQuery(token, expiresIn, state string) string {
	v := url.Values{}
	if token != "" {
		v.Set("access_token", token)
	}
	if expiresIn != "" {
		v.Set("expires_in", expiresIn)
	}
	if state != "" {
		v.Set("state", state)
	}
	return v.Encode()
}

func TestCallbackHandler(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("Routes", func(t *testing.T) {
		h := NewCallbackHandler("s", "http://localhost/Callback", clock, nil)
		routes := h.Routes()
		if len(routes) != 2 || routes[0] != CallbackPath {
			t.Errorf("unexpected routes %v", routes)
		}
	})

	t.Run("Fragment Redirect Page", func(t *testing.T) {
		h := NewCallbackHandler("s", "http://localhost:50336/Callback", clock, nil)
		w := httptest.NewRecorder()

		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, CallbackPath, nil))

		if w.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", w.Code)
		}
		body := w.Body.String()
		if !strings.Contains(body, "window.location.hash") {
			t.Error("redirect page should read the fragment")
		}
		if !strings.Contains(body, `localhost:50336\/Callback`) {
			t.Errorf("redirect page should target the callback url, got %s", body)
		}
		if _, ok := h.Result(); ok {
			t.Error("request without access_token should not complete the attempt")
		}
	})

	t.Run("Valid Callback", func(t *testing.T) {
		h := NewCallbackHandler("s", "", clock, nil)
		w := httptest.NewRecorder()

		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, CallbackPath+"?"+callbackQuery("abc", "3600", "s"), nil))

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "close this window") {
			t.Error("expected landing page")
		}

		select {
		case <-h.Done():
		default:
			t.Fatal("done should be closed")
		}

		values, ok := h.Result()
		if !ok {
			t.Fatal("expected token to be received")
		}
		if values.Token != "abc" {
			t.Errorf("expected token abc, got %s", values.Token)
		}
		if want := now.Add(3000 * time.Second); !values.ExpiresAt.Equal(want) {
			t.Errorf("expected expiration %v, got %v", want, values.ExpiresAt)
		}
	})

	t.Run("Short Lifetime Is Clamped", func(t *testing.T) {
		h := NewCallbackHandler("s", "", clock, nil)
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, CallbackPath+"?"+callbackQuery("abc", "60", "s"), nil))

		values, ok := h.Result()
		if !ok || !values.ExpiresAt.Equal(now) {
			t.Errorf("expected token expiring now, got %+v (received=%v)", values, ok)
		}
	})

	t.Run("Wrong State", func(t *testing.T) {
		tc := []struct {
			name  string
			state string
		}{
			{name: "mismatched", state: "other"},
			{name: "missing", state: ""},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				h := NewCallbackHandler("s", "", clock, nil)
				w := httptest.NewRecorder()

				h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, CallbackPath+"?"+callbackQuery("abc", "3600", tt.state), nil))

				if w.Code != http.StatusForbidden {
					t.Errorf("expected status 403, got %d", w.Code)
				}
				if _, ok := h.Result(); ok {
					t.Error("wrong state should never complete the attempt")
				}
			})
		}
	})

	t.Run("Malformed Expiry", func(t *testing.T) {
		for _, exp := range []string{"", "soon", "-1", "1.5", "10000000000", "99999999999999999999"} {
			h := NewCallbackHandler("s", "", clock, nil)
			w := httptest.NewRecorder()

			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, CallbackPath+"?"+callbackQuery("abc", exp, "s"), nil))

			if w.Code != http.StatusBadRequest {
				t.Errorf("expires_in=%q: expected status 400, got %d", exp, w.Code)
			}
			if _, ok := h.Result(); ok {
				t.Errorf("expires_in=%q: should not complete the attempt", exp)
			}
		}
	})

	t.Run("First Token Wins", func(t *testing.T) {
		h := NewCallbackHandler("s", "", clock, nil)
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, CallbackPath+"?"+callbackQuery("first", "3600", "s"), nil))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, CallbackPath+"?"+callbackQuery("second", "3600", "s"), nil))

		values, _ := h.Result()
		if values.Token != "first" {
			t.Errorf("expected first token to be kept, got %s", values.Token)
		}
	})

	t.Run("Other Paths Are Ignored", func(t *testing.T) {
		h := NewCallbackHandler("s", "", clock, nil)
		w := httptest.NewRecorder()

		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/favicon.ico?"+callbackQuery("abc", "3600", "s"), nil))

		if w.Code != http.StatusOK || w.Body.Len() != 0 {
			t.Errorf("expected empty 200, got %d %q", w.Code, w.Body.String())
		}
		if _, ok := h.Result(); ok {
			t.Error("other paths should never complete the attempt")
		}
	})
}

func assertPortFree(t *testing.T, redirectURL string) {
	t.Helper()

	u, err := url.Parse(redirectURL)
	if err != nil {
		t.Fatalf("bad redirect url: %v", err)
	}

	l, err := net.Listen("tcp", u.Host)
	if err != nil {
		t.Fatalf("port should be free after return: %v", err)
	}
	l.Close()
}

func TestCallbackReceiver(t *testing.T) {
	t.Run("Receives Token", func(t *testing.T) {
		start := time.Now()
		r, err := StartCallbackReceiver(CallbackOptions{State: "xyz"})
		if err != nil {
			t.Fatalf("failed to start receiver: %v", err)
		}

		go func() {
			resp, err := http.Get(r.RedirectURL() + "?" + callbackQuery("abc", "3600", "xyz"))
			if err == nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}()

		values, err := r.WaitForToken(context.Background(), 5*time.Second)
		if err != nil {
			t.Fatalf("expected token, got %v", err)
		}
		if values.Token != "abc" {
			t.Errorf("expected token abc, got %s", values.Token)
		}

		lower := start.Add(3000 * time.Second)
		upper := time.Now().Add(3000 * time.Second)
		if values.ExpiresAt.Before(lower) || values.ExpiresAt.After(upper) {
			t.Errorf("expected expiration about now+3000s, got %v", values.ExpiresAt)
		}

		assertPortFree(t, r.RedirectURL())
	})

	t.Run("Two Phase Flow", func(t *testing.T) {
		r, err := StartCallbackReceiver(CallbackOptions{State: "xyz"})
		if err != nil {
			t.Fatalf("failed to start receiver: %v", err)
		}
		defer r.Stop()

		resp, err := http.Get(r.RedirectURL())
		if err != nil {
			t.Fatalf("first request failed: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if !strings.Contains(string(body), "window.location.hash") {
			t.Fatal("first request should receive the fragment redirect page")
		}
		if resp.Header.Get("Cache-Control") != "no-store" {
			t.Error("expected no-store cache header")
		}
		if _, ok := r.Handler().Result(); ok {
			t.Fatal("first request should not complete the attempt")
		}

		resp, err = http.Get(r.RedirectURL() + "?" + callbackQuery("abc", "3600", "xyz"))
		if err != nil {
			t.Fatalf("second request failed: %v", err)
		}
		resp.Body.Close()

		values, err := r.WaitForToken(context.Background(), time.Second)
		if err != nil || values.Token != "abc" {
			t.Errorf("expected token abc, got %+v, %v", values, err)
		}
	})

	t.Run("Wrong State Keeps Waiting", func(t *testing.T) {
		r, err := StartCallbackReceiver(CallbackOptions{State: "xyz"})
		if err != nil {
			t.Fatalf("failed to start receiver: %v", err)
		}

		resp, err := http.Get(r.RedirectURL() + "?" + callbackQuery("abc", "3600", "nope"))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()

		_, err = r.WaitForToken(context.Background(), 50*time.Millisecond)
		if !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected timeout, got %v", err)
		}
	})

	t.Run("Timeout Releases Port", func(t *testing.T) {
		r, err := StartCallbackReceiver(CallbackOptions{State: "xyz"})
		if err != nil {
			t.Fatalf("failed to start receiver: %v", err)
		}

		start := time.Now()
		_, err = r.WaitForToken(context.Background(), 50*time.Millisecond)
		elapsed := time.Since(start)

		if !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
		if elapsed > 50*time.Millisecond+ShutdownGrace+time.Second {
			t.Errorf("wait took too long: %v", elapsed)
		}

		assertPortFree(t, r.RedirectURL())
	})

	t.Run("Cancellation Releases Port", func(t *testing.T) {
		r, err := StartCallbackReceiver(CallbackOptions{State: "xyz"})
		if err != nil {
			t.Fatalf("failed to start receiver: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)

		_, err = r.WaitForToken(ctx, 0)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}

		assertPortFree(t, r.RedirectURL())
	})

	t.Run("Port In Use", func(t *testing.T) {
		l, err := net.Listen("tcp", "localhost:0")
		if err != nil {
			t.Fatalf("failed to reserve port: %v", err)
		}
		defer l.Close()

		_, err = StartCallbackReceiver(CallbackOptions{Port: l.Addr().(*net.TCPAddr).Port, State: "xyz"})
		if !errors.Is(err, shared.ErrBindFailed) {
			t.Errorf("expected ErrBindFailed, got %v", err)
		}
	})

	t.Run("Stop Is Idempotent", func(t *testing.T) {
		r, err := StartCallbackReceiver(CallbackOptions{State: "xyz"})
		if err != nil {
			t.Fatalf("failed to start receiver: %v", err)
		}

		r.Stop()
		r.Stop()
	})
}
