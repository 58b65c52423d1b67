package segment

import "testing"

func TestClassifyRuleTable(t *testing.T) {
	cases := []struct {
		name     string
		counters Counters
		want     Segment
	}{
		{"two reds is critical", Counters{Red: 2}, SegmentCritical},
		{"many reds is critical", Counters{Red: 7, Orange: 9}, SegmentCritical},
		{"single red is urgent", Counters{Red: 1}, SegmentUrgent},
		{"two oranges is urgent", Counters{Orange: 2}, SegmentUrgent},
		{"single orange is optimize", Counters{Orange: 1}, SegmentOptimize},
		{"all zero is optimize", Counters{}, SegmentOptimize},
		{"yellow and green never escalate", Counters{Yellow: 12, Green: 30}, SegmentOptimize},
		{"negative inputs clamp to zero", Counters{Red: -1, Orange: -2}, SegmentOptimize},
		{"negative red with oranges", Counters{Red: -5, Orange: 2}, SegmentUrgent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.counters); got != tc.want {
				t.Fatalf("Classify(%+v) = %s, want %s", tc.counters, got, tc.want)
			}
		})
	}
}

func TestClassifyIsTotal(t *testing.T) {
	// Every combination over a sample grid, including negatives, must land in
	// exactly one of the three segments.
	values := []int{-3, -1, 0, 1, 2, 5}
	for _, red := range values {
		for _, orange := range values {
			for _, yellow := range values {
				got := Classify(Counters{Red: red, Orange: orange, Yellow: yellow, Green: yellow})
				switch got {
				case SegmentCritical, SegmentUrgent, SegmentOptimize:
				default:
					t.Fatalf("Classify(%d,%d,...) returned unknown segment %q", red, orange, got)
				}
			}
		}
	}
}

func TestCountersFromTriggerTreatsNilAsZero(t *testing.T) {
	got := CountersFromTrigger(nil, nil, nil, nil)
	if got != (Counters{}) {
		t.Fatalf("expected zero counters for absent inputs, got %+v", got)
	}
	if seg := Classify(got); seg != SegmentOptimize {
		t.Fatalf("expected OPTIMIZE for absent counters, got %s", seg)
	}

	two := 2
	one := 1
	withValues := CountersFromTrigger(&two, &one, nil, nil)
	if withValues.Red != 2 || withValues.Orange != 1 {
		t.Fatalf("expected red=2 orange=1, got %+v", withValues)
	}
}

func TestEstimateMonthlyLeak(t *testing.T) {
	if got := EstimateMonthlyLeak(Counters{Red: 2, Orange: 1, Yellow: 3}); got != 2*450+225+3*75 {
		t.Fatalf("unexpected leak estimate: %d", got)
	}
	if got := EstimateMonthlyLeak(Counters{Red: -4, Green: 9}); got != 0 {
		t.Fatalf("green findings must not contribute, got %d", got)
	}
	if got := EstimateMonthlyLeak(Counters{Red: 100}); got != 10000 {
		t.Fatalf("expected estimate capped at 10000, got %d", got)
	}
}
