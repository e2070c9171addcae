// Package timediff implements the modular trigger-time comparator used to
// decide whether two sample packets belong to the same event. Trigger
// times are a counter on the acquisition board that wraps at a
// configured maximum, so plain subtraction is wrong near the wrap point;
// this package always returns the shortest distance on the circular
// number line of circumference MaxTriggerTime.
package timediff

// Comparator computes wrap-aware distances between trigger times modulo
// MaxTriggerTime. It is immutable after construction and safe for
// concurrent use.
type Comparator struct {
	maxTriggerTime uint32
	halfMax        uint32
	threshold      uint32
}

// New builds a Comparator. Inputs to Distance/WithinThreshold are assumed
// to already be reduced modulo maxTriggerTime; this package does not
// re-apply the modulus.
func New(maxTriggerTime, threshold uint32) Comparator {
	return Comparator{
		maxTriggerTime: maxTriggerTime,
		halfMax:        maxTriggerTime / 2,
		threshold:      threshold,
	}
}

// Distance returns the shortest wrap-aware distance between new and old.
// The comparison against halfMax is a strict '>' so the midpoint maps to
// the plain absolute difference, keeping the function single-valued.
func (c Comparator) Distance(newTime, oldTime uint32) uint32 {
	var absDiff uint32
	if newTime >= oldTime {
		absDiff = newTime - oldTime
	} else {
		absDiff = oldTime - newTime
	}
	if absDiff > c.halfMax {
		return c.maxTriggerTime - absDiff
	}
	return absDiff
}

// WithinThreshold reports whether Distance(newTime, oldTime) is within
// the configured (inclusive) threshold.
func (c Comparator) WithinThreshold(newTime, oldTime uint32) bool {
	return c.Distance(newTime, oldTime) <= c.threshold
}

// MaxTriggerTime returns the configured wrap modulus.
func (c Comparator) MaxTriggerTime() uint32 { return c.maxTriggerTime }

// Threshold returns the configured inclusive threshold.
func (c Comparator) Threshold() uint32 { return c.threshold }
