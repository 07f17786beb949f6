package tasks

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotctl/internal/models"
	"github.com/desertthunder/spotctl/internal/shared"
	"github.com/hashicorp/go-multierror"
)

const (
	DefaultPollDelay    = 2 * time.Second
	DefaultPollInterval = 5 * time.Second
	DefaultCloseTimeout = 2 * time.Second
)

// SessionState is the local lifecycle of one playback attempt.
type SessionState int

const (
	NotStarted SessionState = iota
	Playing
	Paused
	// Done is terminal.
	Done
)

func (s SessionState) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Done:
		return "done"
	default:
		return ""
	}
}

// Player is the subset of the remote player a session drives.
type Player interface {
	Play(ctx context.Context, deviceID, songID string) error
	Resume(ctx context.Context, deviceID string) error
	Pause(ctx context.Context, deviceID string) error
	CheckState(ctx context.Context, songID string) (models.PlayerState, error)
}

// SessionOptions configures a [Session]. Zero durations take the defaults.
type SessionOptions struct {
	DeviceID     string
	SongID       string
	PollDelay    time.Duration
	PollInterval time.Duration
	CloseTimeout time.Duration
	// Updates receives state events without blocking the session. May be nil.
	Updates chan<- StateUpdate
	Logger  *log.Logger
}

// Session owns one playback attempt of one track on one device.
//
// A background poller starts with the session and ends it once the track is no longer the active one.
type Session struct {
	player Player
	opts   SessionOptions
	logger *log.Logger

	mu     sync.Mutex
	state  SessionState
	closed bool

	done     chan struct{}
	doneOnce sync.Once

	stop       chan struct{}
	pollCtx    context.Context
	pollCancel context.CancelFunc
	pollDone   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewSession creates a session in [NotStarted] and starts its poller.
func NewSession(player Player, opts SessionOptions) *Session {
	if opts.PollDelay <= 0 {
		opts.PollDelay = DefaultPollDelay
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = DefaultCloseTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	pollCtx, pollCancel := context.WithCancel(context.Background())
	s := &Session{
		player:     player,
		opts:       opts,
		logger:     shared.WithLogger(logger, "component", "session", "song", opts.SongID),
		state:      NotStarted,
		done:       make(chan struct{}),
		stop:       make(chan struct{}),
		pollCtx:    pollCtx,
		pollCancel: pollCancel,
		pollDone:   make(chan struct{}),
	}

	go s.poll()
	return s
}

// State returns the current local state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the session reaches [Done].
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Play starts the track, or resumes it when paused. Playing is a no-op.
//
// Failures leave the state unchanged so the caller may retry.
func (s *Session) Play(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}

	var err error
	switch s.state {
	case Playing:
		return nil
	case NotStarted:
		err = s.player.Play(ctx, s.opts.DeviceID, s.opts.SongID)
	case Paused:
		err = s.player.Resume(ctx, s.opts.DeviceID)
	}
	if err != nil {
		s.logger.Error("could not play", "state", s.state, "error", err)
		sendUpdate(s.opts.Updates, failedUpdate(s.state, "play", err))
		return err
	}

	s.state = Playing
	s.logger.Debug("playing")
	sendUpdate(s.opts.Updates, transitionUpdate(s.state, s.opts.SongID))
	return nil
}

// Pause pauses a playing track. Other non-terminal states are a no-op.
//
// Failures leave the state unchanged so the caller may retry.
func (s *Session) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	if s.state != Playing {
		return nil
	}

	if err := s.player.Pause(ctx, s.opts.DeviceID); err != nil {
		s.logger.Error("could not pause", "error", err)
		sendUpdate(s.opts.Updates, failedUpdate(s.state, "pause", err))
		return err
	}

	s.state = Paused
	s.logger.Debug("paused")
	sendUpdate(s.opts.Updates, transitionUpdate(s.state, s.opts.SongID))
	return nil
}

func (s *Session) usableLocked() error {
	switch {
	case s.closed:
		return shared.ErrSessionClosed
	case s.state == Done:
		return fmt.Errorf("%w: %s already finished", shared.ErrInvalidState, s.opts.SongID)
	default:
		return nil
	}
}

// Close pauses remote playback unless the session is [Done] and stops the poller.
//
// The pause is sent from [Paused] and [NotStarted] too, since the poller never moves local state and the track
// may have been resumed from another device.
//
// The poller gets CloseTimeout to stop on its own before its in-flight request is cancelled. Close never returns
// while the poller is still running. Later calls return the first result.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		var result *multierror.Error

		s.mu.Lock()
		if err := s.pauseOnCloseLocked(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("pause on close: %w", err))
		}
		s.closed = true
		s.mu.Unlock()

		close(s.stop)
		timer := time.NewTimer(s.opts.CloseTimeout)
		select {
		case <-s.pollDone:
		case <-timer.C:
			s.logger.Warn("poller did not stop in time, cancelling", "timeout", s.opts.CloseTimeout)
			s.pollCancel()
			<-s.pollDone
		}
		timer.Stop()
		s.pollCancel()

		s.closeErr = result.ErrorOrNil()
	})
	return s.closeErr
}

func (s *Session) pauseOnCloseLocked(ctx context.Context) error {
	if s.state == Done {
		return nil
	}

	if err := s.player.Pause(ctx, s.opts.DeviceID); err != nil {
		s.logger.Warn("could not pause on close", "state", s.state, "error", err)
		sendUpdate(s.opts.Updates, failedUpdate(s.state, "pause", err))
		return err
	}

	if s.state == Playing {
		s.state = Paused
		sendUpdate(s.opts.Updates, transitionUpdate(s.state, s.opts.SongID))
	}
	return nil
}

func (s *Session) poll() {
	defer close(s.pollDone)

	timer := time.NewTimer(s.opts.PollDelay)
	defer timer.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-s.pollCtx.Done():
			return
		case <-timer.C:
		}

		select {
		case <-s.stop:
			return
		default:
		}

		if finished := s.checkOnce(); finished {
			return
		}
		timer.Reset(s.opts.PollInterval)
	}
}

// checkOnce polls the remote player and reports whether the session has finished.
func (s *Session) checkOnce() bool {
	observed, err := s.player.CheckState(s.pollCtx, s.opts.SongID)
	if err != nil {
		if s.pollCtx.Err() != nil {
			return true
		}
		s.logger.Warn("could not check player state", "error", err)
		sendUpdate(s.opts.Updates, failedUpdate(s.State(), "check state", err))
		return false
	}

	if observed == models.PlayerStopped {
		s.finish()
		return true
	}

	s.logger.Debug("observed remote state", "observed", observed)
	sendUpdate(s.opts.Updates, observedUpdate(s.State(), observed))
	return false
}

func (s *Session) finish() {
	s.mu.Lock()
	s.state = Done
	s.mu.Unlock()

	s.doneOnce.Do(func() { close(s.done) })
	s.logger.Info("track finished")
	sendUpdate(s.opts.Updates, finishedUpdate(s.opts.SongID))
}
