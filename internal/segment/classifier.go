// Package segment classifies assessment counters into a priority segment.
// Classification is a pure, total function: every counter combination maps
// to exactly one segment, and invalid inputs are coerced rather than rejected.
package segment

import "math"

const (
	// classifierVersion tracks the classification rules for debugging and
	// journal entries. Bump when thresholds change.
	classifierVersion = "2026-v1"

	// criticalRedThreshold: this many red findings puts a recipient straight
	// into the CRITICAL segment.
	criticalRedThreshold = 2

	// urgentOrangeThreshold: this many orange findings (or a single red one)
	// classifies as URGENT.
	urgentOrangeThreshold = 2
)

// Per-color monthly revenue impact estimates, in whole dollars. These feed
// the personalization text only; they never influence segment or timing.
const (
	redLeakDollars    = 450
	orangeLeakDollars = 225
	yellowLeakDollars = 75
)

// Segment is the priority tier derived from an assessment.
type Segment string

const (
	SegmentCritical Segment = "CRITICAL"
	SegmentUrgent   Segment = "URGENT"
	SegmentOptimize Segment = "OPTIMIZE"
)

// Counters is a snapshot of assessment finding counts by severity color.
// Values are expected to be non-negative; Classify clamps on its own, so a
// Counters built from raw input never needs pre-validation.
type Counters struct {
	Red    int
	Orange int
	Yellow int
	Green  int
}

// CountersFromTrigger maps the optional integer fields of a trigger payload
// onto Counters. Absent (nil) values count as zero findings.
func CountersFromTrigger(red, orange, yellow, green *int) Counters {
	return Counters{
		Red:    intOrZero(red),
		Orange: intOrZero(orange),
		Yellow: intOrZero(yellow),
		Green:  intOrZero(green),
	}
}

// Normalized returns a copy with every counter clamped to max(0, value).
func (c Counters) Normalized() Counters {
	return Counters{
		Red:    clampCount(c.Red),
		Orange: clampCount(c.Orange),
		Yellow: clampCount(c.Yellow),
		Green:  clampCount(c.Green),
	}
}

// Total returns the normalized number of findings across all severities.
func (c Counters) Total() int {
	n := c.Normalized()
	return n.Red + n.Orange + n.Yellow + n.Green
}

// Classify maps counters to a segment. Rules are evaluated in order, first
// match wins:
//
//  1. red >= 2            -> CRITICAL
//  2. red == 1 or orange >= 2 -> URGENT
//  3. otherwise           -> OPTIMIZE
//
// Inputs are clamped to non-negative values first, so the function is total
// over all integers.
func Classify(c Counters) Segment {
	n := c.Normalized()

	if n.Red >= criticalRedThreshold {
		return SegmentCritical
	}
	if n.Red == 1 || n.Orange >= urgentOrangeThreshold {
		return SegmentUrgent
	}
	return SegmentOptimize
}

// Version returns the classifier rule version.
func Version() string {
	return classifierVersion
}

// EstimateMonthlyLeak computes the estimated monthly revenue loss implied by
// the findings, in whole dollars. Used exclusively for personalization text
// in email bodies; timing and segment selection never read it.
func EstimateMonthlyLeak(c Counters) int {
	n := c.Normalized()
	total := n.Red*redLeakDollars + n.Orange*orangeLeakDollars + n.Yellow*yellowLeakDollars
	return int(math.Min(float64(total), 10000))
}

func clampCount(value int) int {
	if value < 0 {
		return 0
	}
	return value
}

func intOrZero(value *int) int {
	if value == nil {
		return 0
	}
	return *value
}
