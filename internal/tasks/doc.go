// Package tasks runs playback sessions with non-blocking state reporting.
//
// # Session Lifecycle
//
// A [Session] moves NotStarted → Playing ⇄ Paused → Done. [Session.Play] and [Session.Pause] drive the remote
// player and only change state when the request succeeds. Done is reached only by the poller.
//
// # Polling
//
// The poller starts with the session, first checks after PollDelay and then every PollInterval counted from the end
// of the previous check. When the remote player no longer reports the session's track it marks the session Done,
// closes [Session.Done] and exits. Other observations are forwarded as updates without touching local state, which
// lets the CLI notice a pause made from another device.
//
// # Teardown
//
// [Session.Close] pauses a playing track as a best effort, signals the poller to stop, and cancels its in-flight
// request if it has not stopped within CloseTimeout. Errors from teardown are aggregated.
//
// # State Reporting
//
// [StateUpdate] values are sent with select/default so a slow or absent reader never blocks the session.
package tasks
