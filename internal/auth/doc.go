// Package auth implements the implicit-grant authorization flow and the self-refreshing [Token] built on it.
//
// An [Authorizer] is constructed once and shared. [Authorizer.Authorize] reuses persisted token values when the
// [Store] has them and otherwise opens the browser at the provider's authorize endpoint, waiting on a loopback
// callback receiver for the redirect. A process-wide semaphore keeps a second interactive flow from binding the
// callback port while one is in progress.
//
// A [Token] re-runs the flow through its [Refresher] whenever it is read after expiring. Refresh failures are
// logged and the stale value is returned; listeners registered with [Token.AddListener] run after each successful
// refresh.
package auth
