// Package season tracks per-agent standings across a season window and
// serves the leaderboard.
package season
