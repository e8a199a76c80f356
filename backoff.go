package tonequeue

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffConfig controls the exponential backoff and retry ceiling
// applied to a Job's render attempts (spec §4.5 step 9, §7).
type BackoffConfig struct {
	MaxRetries          uint32
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

type backoffCounter struct {
	BackoffConfig
}

func (bc *backoffCounter) next(attempt uint32) (time.Duration, bool) {
	if bc.MaxRetries > 0 && attempt > bc.MaxRetries {
		return 0, false
	}
	return bc.delay(attempt), true
}

// delay computes the exponential backoff interval for attempt with no
// retry-ceiling check, for callers that retry unconditionally (spec
// §4.5 step 5: resolution-stage failures never exhaust the attempt
// budget).
func (bc *backoffCounter) delay(attempt uint32) time.Duration {
	exp := float64(bc.InitialInterval) * math.Pow(bc.Multiplier, float64(attempt-1))
	if exp > float64(bc.MaxInterval) {
		exp = float64(bc.MaxInterval)
	}
	if bc.RandomizationFactor > 0 {
		delta := bc.RandomizationFactor * exp
		minExp := exp - delta
		maxExp := exp + delta
		exp = minExp + rand.Float64()*(maxExp-minExp)
	}
	return time.Duration(exp)
}
