// Package services implements the Spotify Web API player endpoints behind the [Player] interface.
//
// # Authentication
//
// [PlayerService] sends requests through an [oauth2.Transport] whose source is the caller's self-refreshing token,
// so each request carries the bearer value current at send time.
//
// # Accepted-but-pending Responses
//
// The player API answers 202 when it accepted a command that a device has not applied yet. Every call, including
// the device list, retries exactly once after a fixed delay on 202. Cancelling the context during that delay fails
// the call. Any other status outside the call's success set is a [PlaybackError] naming the status.
//
// # Player State
//
// [PlayerService.CheckState] reads the player document with gjson and reports [models.PlayerStopped] when nothing
// is playing, when the track never started, or when a different track is active.
//
// # Error Handling
//
// Failures are [PlaybackError] values wrapping [shared.ErrPlayback]:
//   - StatusCode set: the API answered with an unexpected status
//   - StatusCode zero: transport failure, cancelled retry, or undecodable body
package services
