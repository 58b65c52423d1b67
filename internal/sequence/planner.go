package sequence

import (
	"fmt"
	"sort"
	"time"
)

// ScheduledStep is the planner's output for one remaining position: an
// absolute fire time plus the template reference to resolve at send time.
// It is ephemeral - the state store reflects it only once the step executes.
type ScheduledStep struct {
	Position    int
	TemplateRef string
	FireAt      time.Time
}

// Plan computes the absolute fire time for every position of the definition
// that is not listed in alreadySent, in ascending position order. Offsets
// come from the definition's table for the given mode and are applied to the
// anchor, so re-planning after a delay or retry never shifts later steps.
//
// The anchor must be concrete. When the original anchor is unknown the
// caller substitutes the current wall-clock time (and warns); the planner
// itself refuses a zero anchor rather than guessing.
func Plan(anchor time.Time, mode Mode, def Definition, alreadySent map[int]bool) ([]ScheduledStep, error) {
	if anchor.IsZero() {
		return nil, fmt.Errorf("plan %s: anchor time is required", def.Type)
	}

	anchor = anchor.UTC()

	steps := make([]ScheduledStep, 0, len(def.Steps))
	for _, step := range def.Steps {
		if alreadySent[step.Position] {
			continue
		}
		steps = append(steps, ScheduledStep{
			Position:    step.Position,
			TemplateRef: step.TemplateRef,
			FireAt:      anchor.Add(step.Offset(mode)),
		})
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].Position < steps[j].Position })
	return steps, nil
}
