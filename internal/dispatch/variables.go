package dispatch

import (
	"fmt"
	"strconv"

	"sequencer_backend/internal/segment"
	"sequencer_backend/internal/state"
)

// Variables builds the substitution map for one instance. Every key the
// shipped copy references must be produced here; remote copy may use any
// subset. The leak estimate feeds personalization only - it never affects
// which steps run or when.
func Variables(inst state.Instance, bookingURL, senderName string) map[string]string {
	counters := inst.Counters.Normalized()

	name := inst.DisplayName
	if name == "" {
		name = "there"
	}
	orgName := inst.OrgName
	if orgName == "" {
		orgName = "your business"
	}

	return map[string]string{
		"name":           name,
		"org_name":       orgName,
		"segment_label":  segmentLabel(segment.Segment(inst.Segment)),
		"leak_estimate":  formatDollars(segment.EstimateMonthlyLeak(counters)),
		"red_count":      strconv.Itoa(counters.Red),
		"orange_count":   strconv.Itoa(counters.Orange),
		"yellow_count":   strconv.Itoa(counters.Yellow),
		"green_count":    strconv.Itoa(counters.Green),
		"total_findings": strconv.Itoa(counters.Total()),
		"booking_url":    bookingURL,
		"sender_name":    senderName,
	}
}

func segmentLabel(s segment.Segment) string {
	switch s {
	case segment.SegmentCritical:
		return "critical"
	case segment.SegmentUrgent:
		return "high-priority"
	default:
		return "healthy"
	}
}

// formatDollars renders a whole-dollar amount with thousands separators,
// e.g. 1125 -> "$1,125".
func formatDollars(amount int) string {
	if amount < 0 {
		amount = 0
	}
	s := strconv.Itoa(amount)
	if len(s) <= 3 {
		return "$" + s
	}

	var out []byte
	for i, digit := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, digit)
	}
	return fmt.Sprintf("$%s", out)
}
