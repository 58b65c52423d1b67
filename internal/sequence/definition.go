// Package sequence holds the static campaign definitions (which steps exist,
// who sends the first one, and the anchor-relative offset tables) plus the
// delay planner that turns a definition into absolute fire times.
package sequence

import (
	"fmt"
	"sort"
	"time"
)

// Type identifies a campaign category. It selects both the step layout and
// the template set.
type Type string

const (
	TypeFiveDay        Type = "five_day"
	TypeNoShowRecovery Type = "no_show_recovery"
	TypePostCall       Type = "post_call"
	TypeOnboarding     Type = "onboarding"
)

// Mode selects between real-time and accelerated offset tables.
type Mode string

const (
	ModeProduction Mode = "production"
	ModeTesting    Mode = "testing"
)

// ParseMode validates a mode token from config or a trigger payload.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case ModeProduction, ModeTesting:
		return Mode(raw), nil
	default:
		return "", fmt.Errorf("unknown operating mode %q", raw)
	}
}

// Step is one position in a sequence. Offsets are relative to the anchor,
// never to the previous step, so a delayed or retried step cannot shift the
// rest of the schedule.
type Step struct {
	Position         int
	TemplateRef      string
	ProductionOffset time.Duration
	TestingOffset    time.Duration
}

// Offset returns the step's anchor-relative offset for the given mode.
func (s Step) Offset(mode Mode) time.Duration {
	if mode == ModeTesting {
		return s.TestingOffset
	}
	return s.ProductionOffset
}

// Definition is the static configuration of one campaign type.
type Definition struct {
	Type Type
	Name string
	// FirstStepExternal marks sequences where an external frontend sends
	// position 1 synchronously before this engine is triggered. The engine
	// then records position 1 as already sent and plans from position 2.
	FirstStepExternal bool
	Steps             []Step
}

// StepCount returns the number of positions in the definition.
func (d Definition) StepCount() int {
	return len(d.Steps)
}

// Step returns the step at the given 1-based position.
func (d Definition) Step(position int) (Step, bool) {
	for _, s := range d.Steps {
		if s.Position == position {
			return s, true
		}
	}
	return Step{}, false
}

// Positions returns every position in ascending order.
func (d Definition) Positions() []int {
	positions := make([]int, 0, len(d.Steps))
	for _, s := range d.Steps {
		positions = append(positions, s.Position)
	}
	sort.Ints(positions)
	return positions
}

// Validate checks the structural invariants of a definition: at least one
// step, positions contiguous from 1, template refs present, and offset
// tables that start at zero and strictly increase.
func (d Definition) Validate() error {
	if d.Type == "" {
		return fmt.Errorf("definition missing type")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("definition %s has no steps", d.Type)
	}

	steps := make([]Step, len(d.Steps))
	copy(steps, d.Steps)
	sort.Slice(steps, func(i, j int) bool { return steps[i].Position < steps[j].Position })

	for i, s := range steps {
		if s.Position != i+1 {
			return fmt.Errorf("definition %s: positions must be contiguous from 1, got %d at index %d", d.Type, s.Position, i)
		}
		if s.TemplateRef == "" {
			return fmt.Errorf("definition %s: step %d missing template ref", d.Type, s.Position)
		}
		if i == 0 {
			if s.ProductionOffset != 0 || s.TestingOffset != 0 {
				return fmt.Errorf("definition %s: step 1 must fire at the anchor (zero offset)", d.Type)
			}
			continue
		}
		if s.ProductionOffset <= steps[i-1].ProductionOffset {
			return fmt.Errorf("definition %s: production offsets must strictly increase at step %d", d.Type, s.Position)
		}
		if s.TestingOffset <= steps[i-1].TestingOffset {
			return fmt.Errorf("definition %s: testing offsets must strictly increase at step %d", d.Type, s.Position)
		}
	}

	return nil
}

func newStep(position int, templateRef string, production, testing time.Duration) Step {
	return Step{
		Position:         position,
		TemplateRef:      templateRef,
		ProductionOffset: production,
		TestingOffset:    testing,
	}
}

// builtinDefinitions returns the campaign definitions shipped with the
// engine. A YAML catalog file may override or extend these.
func builtinDefinitions() []Definition {
	return []Definition{
		{
			Type:              TypeFiveDay,
			Name:              "5-day follow-up",
			FirstStepExternal: true,
			Steps: []Step{
				newStep(1, "five_day.1", 0, 0),
				newStep(2, "five_day.2", 24*time.Hour, 1*time.Minute),
				newStep(3, "five_day.3", 72*time.Hour, 3*time.Minute),
				newStep(4, "five_day.4", 120*time.Hour, 6*time.Minute),
				newStep(5, "five_day.5", 168*time.Hour, 10*time.Minute),
			},
		},
		{
			Type: TypeNoShowRecovery,
			Name: "No-show recovery",
			Steps: []Step{
				newStep(1, "no_show_recovery.1", 0, 0),
				newStep(2, "no_show_recovery.2", 24*time.Hour, 1*time.Minute),
				newStep(3, "no_show_recovery.3", 72*time.Hour, 3*time.Minute),
			},
		},
		{
			Type: TypePostCall,
			Name: "Post-call follow-up",
			Steps: []Step{
				newStep(1, "post_call.1", 0, 0),
				newStep(2, "post_call.2", 48*time.Hour, 2*time.Minute),
			},
		},
		{
			Type: TypeOnboarding,
			Name: "Onboarding",
			Steps: []Step{
				newStep(1, "onboarding.1", 0, 0),
				newStep(2, "onboarding.2", 24*time.Hour, 1*time.Minute),
				newStep(3, "onboarding.3", 96*time.Hour, 4*time.Minute),
				newStep(4, "onboarding.4", 168*time.Hour, 7*time.Minute),
			},
		},
	}
}
