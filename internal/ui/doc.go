// Package ui styles the CLI's human-readable output with lipgloss.
//
// [Styles] holds the shared [Palette]. [StatusLine] renders playback session events, one per line, as the
// play command reports them.
package ui
