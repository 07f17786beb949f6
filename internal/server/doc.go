// Package server provides the loopback HTTP receiver for the implicit-grant authorization flow.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support, and [BasicRouter] implements it on top of
// [http.ServeMux]. [Middleware] added first wraps outermost. Custom handlers implement [Handler], which adds
// Routes so a handler can own all of its path patterns.
//
// # Callback Receiver
//
// [StartCallbackReceiver] binds a listener on localhost before returning and serves a single [CallbackHandler].
// The provider delivers the bearer token in the URL fragment, which never reaches a server, so the first request to
// /Callback answers with a page whose script re-requests /Callback with the fragment moved into the query string.
// Only that second request carries access_token, expires_in and state.
//
// A request whose state does not match the expected value is rejected and never completes the attempt. The first
// valid request records the token and closes the done channel; later valid requests are answered but ignored.
//
// [CallbackReceiver.WaitForToken] blocks until the token arrives, the timeout elapses, or the context ends, and
// always stops the listener before returning so the port is free for the next attempt.
package server
