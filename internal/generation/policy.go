package generation

import "github.com/phrazzld/cadence-api/internal/domain"

// CountPolicy maps a requested duration to the number of provider tasks.
// Every task yields domain.TracksPerGeneration tracks.
type CountPolicy interface {
	GenerationCount(durationSeconds int) int
}

// CountPolicyFunc adapts a function to CountPolicy.
type CountPolicyFunc func(durationSeconds int) int

// GenerationCount implements CountPolicy.
func (f CountPolicyFunc) GenerationCount(durationSeconds int) int {
	return f(durationSeconds)
}

// AverageTrackPolicy requests enough tasks to cover durationSeconds assuming
// each track lasts averageTrackSeconds, never fewer than one.
func AverageTrackPolicy(averageTrackSeconds int) CountPolicyFunc {
	if averageTrackSeconds <= 0 {
		averageTrackSeconds = 180
	}
	perTask := averageTrackSeconds * domain.TracksPerGeneration
	return func(durationSeconds int) int {
		if durationSeconds <= 0 {
			return 1
		}
		n := (durationSeconds + perTask - 1) / perTask
		if n < 1 {
			return 1
		}
		return n
	}
}
