package tasks

import (
	"math/rand"
	"time"
)

// targetDelay computes the base pause between successive search targets
// within one cycle. An explicit override wins; otherwise the delay
// scales with the target count: 2s up to 5 targets, 10s above 10,
// linearly interpolated in between.
func targetDelay(targetCount, overrideSeconds int) time.Duration {
	if overrideSeconds > 0 {
		return time.Duration(overrideSeconds) * time.Second
	}

	switch {
	case targetCount <= 5:
		return 2 * time.Second
	case targetCount > 10:
		return 10 * time.Second
	default:
		seconds := 2 + float64(targetCount-5)*(10-2)/5
		return time.Duration(seconds * float64(time.Second))
	}
}

// withJitter perturbs a base delay uniformly by up to ±50% so page
// requests never go out on a fixed cadence.
func withJitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	factor := 0.5 + rand.Float64()
	return time.Duration(float64(base) * factor)
}
