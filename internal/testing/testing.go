// package testing contains shared test doubles for stores, players, and HTTP transports
package testing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/spotctl/internal/models"
)

// FakeStore is an in-memory key/value store whose operations can be made to fail.
type FakeStore struct {
	mu       sync.Mutex
	values   map[string]string
	GetErr   error
	SetErr   error
	ClearErr error
	Cleared  []string
}

func NewFakeStore(kv map[string]string) *FakeStore {
	values := make(map[string]string, len(kv))
	for k, v := range kv {
		values[k] = v
	}
	return &FakeStore{values: values}
}

func (f *FakeStore) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetErr != nil {
		return "", false, f.GetErr
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *FakeStore) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetErr != nil {
		return f.SetErr
	}
	f.values[key] = value
	return nil
}

func (f *FakeStore) Clear(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ClearErr != nil {
		return f.ClearErr
	}
	delete(f.values, key)
	f.Cleared = append(f.Cleared, key)
	return nil
}

func (f *FakeStore) Close() error { return nil }

// Value returns the stored value for key, or "" when absent.
func (f *FakeStore) Value(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key]
}

// MockPlayer is a scripted playback backend that records every call.
type MockPlayer struct {
	mu     sync.Mutex
	calls  []string
	states []models.PlayerState

	PlayErr   error
	ResumeErr error
	PauseErr  error
	CheckErr  error

	DeviceList    []models.Device
	VolumePercent int
	DevicesErr    error
	VolumeErr     error
}

// NewMockPlayer returns a player whose CheckState yields states in order, then repeats the last one.
func NewMockPlayer(states ...models.PlayerState) *MockPlayer {
	return &MockPlayer{states: states}
}

func (m *MockPlayer) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *MockPlayer) Play(ctx context.Context, deviceID, songID string) error {
	m.record("play:" + deviceID + ":" + songID)
	return m.PlayErr
}

func (m *MockPlayer) Resume(ctx context.Context, deviceID string) error {
	m.record("resume:" + deviceID)
	return m.ResumeErr
}

func (m *MockPlayer) Pause(ctx context.Context, deviceID string) error {
	m.record("pause:" + deviceID)
	return m.PauseErr
}

func (m *MockPlayer) CheckState(ctx context.Context, songID string) (models.PlayerState, error) {
	m.record("check:" + songID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CheckErr != nil {
		return models.PlayerStopped, m.CheckErr
	}
	if len(m.states) == 0 {
		return models.PlayerPlaying, nil
	}
	state := m.states[0]
	if len(m.states) > 1 {
		m.states = m.states[1:]
	}
	return state, nil
}

func (m *MockPlayer) Devices(ctx context.Context) ([]models.Device, error) {
	m.record("devices")
	return m.DeviceList, m.DevicesErr
}

func (m *MockPlayer) Volume(ctx context.Context) (int, error) {
	m.record("volume")
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.VolumePercent, m.VolumeErr
}

func (m *MockPlayer) SetVolume(ctx context.Context, deviceID string, percent int) error {
	m.record(fmt.Sprintf("set-volume:%s:%d", deviceID, percent))
	if m.VolumeErr != nil {
		return m.VolumeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VolumePercent = percent
	return nil
}

// Calls returns a copy of the recorded calls.
func (m *MockPlayer) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Count returns how many recorded calls start with prefix.
func (m *MockPlayer) Count(prefix string) int {
	n := 0
	for _, c := range m.Calls() {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// Reply is one scripted response for a [SequenceRoundTripper].
type Reply struct {
	Status int
	Body   string
	Err    error
}

// SequenceRoundTripper answers requests with replies in order and records each request.
//
// The last reply repeats once the script is exhausted.
type SequenceRoundTripper struct {
	mu       sync.Mutex
	replies  []Reply
	requests []*http.Request
}

func NewSequenceRoundTripper(replies ...Reply) *SequenceRoundTripper {
	return &SequenceRoundTripper{replies: replies}
}

func (s *SequenceRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	idx := len(s.requests) - 1
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	reply := s.replies[idx]
	if reply.Err != nil {
		return nil, reply.Err
	}

	return &http.Response{
		StatusCode: reply.Status,
		Status:     http.StatusText(reply.Status),
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(reply.Body)),
		Request:    req,
	}, nil
}

// Requests returns the recorded requests.
func (s *SequenceRoundTripper) Requests() []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*http.Request(nil), s.requests...)
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
