// Package rating computes Elo rating updates for finished games.
package rating

import "math"

// Outcome is the game result from the rated player's point of view.
type Outcome string

const (
	Win  Outcome = "win"
	Loss Outcome = "loss"
	Draw Outcome = "draw"
)

const (
	kFactor   = 32
	minRating = 100
)

// New returns the player's rating after a game against opponentRating with
// the given outcome. Ratings never drop below the floor.
func New(playerRating, opponentRating int, outcome Outcome) int {
	expected := 1 / (1 + math.Pow(10, float64(opponentRating-playerRating)/400))

	var actual float64
	switch outcome {
	case Win:
		actual = 1
	case Loss:
		actual = 0
	default:
		actual = 0.5
	}

	updated := int(math.Round(float64(playerRating) + kFactor*(actual-expected)))
	if updated < minRating {
		return minRating
	}
	return updated
}
