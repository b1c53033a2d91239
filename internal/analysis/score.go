package analysis

import (
	"math"

	"github.com/vovakirdan/nestris-ocr/internal/core"
)

// DefaultDifficulty is the base of the placement score curve.
const DefaultDifficulty = 1.5

// Rating buckets a placement score or a game accuracy.
type Rating int

const (
	RatingError Rating = iota
	RatingBrilliant
	RatingBest
	RatingExcellent
	RatingGood
	RatingInaccuracy
	RatingMistake
	RatingBlunder
)

// String returns the display name of the rating.
func (r Rating) String() string {
	switch r {
	case RatingBrilliant:
		return "Brilliant"
	case RatingBest:
		return "Best"
	case RatingExcellent:
		return "Excellent"
	case RatingGood:
		return "Good"
	case RatingInaccuracy:
		return "Inaccuracy"
	case RatingMistake:
		return "Mistake"
	case RatingBlunder:
		return "Blunder"
	default:
		return "Error"
	}
}

// rescaleEval compresses large negative evaluations so that a bad position
// getting worse costs less than a good position getting worse.
func rescaleEval(ev float64) float64 {
	const c = 10
	if ev < 0 {
		return -math.Sqrt(c - ev)
	}
	return ev/(2*math.Sqrt(c)) - math.Sqrt(c)
}

// PlacementScore maps the gap between the best and the player's evaluation
// to [0, 1]. Matching the best move scores 1.
func PlacementScore(best, player, difficulty float64) float64 {
	if difficulty <= 1 {
		difficulty = DefaultDifficulty
	}
	score := math.Pow(difficulty, rescaleEval(player)-rescaleEval(best))
	return core.ClampF(score, 0, 1)
}

// PlacementRating rates a single placement score.
func PlacementRating(score float64) Rating {
	switch {
	case score >= 0.95:
		return RatingBest
	case score >= 0.90:
		return RatingExcellent
	case score >= 0.7:
		return RatingGood
	case score >= 0.5:
		return RatingInaccuracy
	case score >= 0.3:
		return RatingMistake
	default:
		return RatingBlunder
	}
}

// AccuracyRating rates an overall accuracy given in percent.
func AccuracyRating(accuracy float64) Rating {
	switch {
	case accuracy >= 95:
		return RatingBrilliant
	case accuracy >= 90:
		return RatingBest
	case accuracy >= 80:
		return RatingExcellent
	case accuracy >= 70:
		return RatingGood
	case accuracy >= 60:
		return RatingInaccuracy
	case accuracy >= 50:
		return RatingMistake
	default:
		return RatingBlunder
	}
}
