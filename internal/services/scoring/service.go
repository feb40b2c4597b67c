// Package scoring implements the points policy for answered questions.
package scoring

const (
	// CorrectPoints is awarded for any correct answer
	CorrectPoints = 10
	// MaxSpeedBonus is the extra award for answering within the first second
	MaxSpeedBonus = 5
	// MaxElapsedMs is the upper clamp for reported answer times (5 minutes)
	MaxElapsedMs = 300000
)

// ClampElapsed bounds a reported answer time to [0, MaxElapsedMs]
func ClampElapsed(elapsedMs int) int {
	if elapsedMs < 0 {
		return 0
	}
	if elapsedMs > MaxElapsedMs {
		return MaxElapsedMs
	}
	return elapsedMs
}

// ClampElapsedMs bounds a wire-reported answer time and truncates it to
// whole milliseconds. Values outside the int range clamp like any other.
func ClampElapsedMs(elapsedMs float64) int {
	if !(elapsedMs > 0) {
		return 0
	}
	if elapsedMs >= MaxElapsedMs {
		return MaxElapsedMs
	}
	return int(elapsedMs)
}

// SpeedBonus returns the bonus for a correct answer given after elapsedMs.
// One point is lost per whole elapsed second, reaching zero at 5s.
func SpeedBonus(elapsedMs int) int {
	bonus := MaxSpeedBonus - ClampElapsed(elapsedMs)/1000
	if bonus < 0 {
		return 0
	}
	return bonus
}

// Score returns the points delta for one answer. Never negative.
func Score(isCorrect bool, elapsedMs int) int {
	if !isCorrect {
		return 0
	}
	return CorrectPoints + SpeedBonus(elapsedMs)
}
