// Package models defines the values shared between authorization, playback, and storage.
//
//   - [TokenValues] : an access token with its effective expiry
//   - [Device] : a playback device as reported by the player API
//   - [PlayerState] : the remote player's state relative to one track
//
// Expiry is stored as epoch milliseconds so persisted values stay readable across backends.
package models
