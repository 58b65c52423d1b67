package template

import (
	"sequencer_backend/internal/sequence"
)

// Entry is a single piece of email copy: the subject line and the body text,
// both of which may contain {{key}} placeholders.
type Entry struct {
	Subject string
	Body    string
}

// FallbackTable holds the static in-process copy for every built-in sequence
// step. It is the degraded-mode source of truth: when the remote template
// store is unreachable or has no entry, resolution falls back here so a
// scheduled email still goes out with known-good copy.
type FallbackTable struct {
	entries map[sequence.Type]map[int]Entry
}

// NewFallbackTable builds the table with the shipped copy for all built-in
// sequences. The copy is compiled into the binary on purpose: the fallback
// path must not depend on any external system.
func NewFallbackTable() *FallbackTable {
	return &FallbackTable{entries: builtinCopy()}
}

// Lookup returns the static copy for a sequence step, or ok=false when no
// entry exists for the (type, position) pair.
func (t *FallbackTable) Lookup(seqType sequence.Type, position int) (Entry, bool) {
	steps, ok := t.entries[seqType]
	if !ok {
		return Entry{}, false
	}
	entry, ok := steps[position]
	return entry, ok
}

func builtinCopy() map[sequence.Type]map[int]Entry {
	return map[sequence.Type]map[int]Entry{
		sequence.TypeFiveDay: {
			1: {
				Subject: "{{org_name}}: your audit results are ready",
				Body: `Hi {{name}},

Thanks for requesting an audit for {{org_name}}. Your full report is attached to this email.

The short version: we found {{total_findings}} issues, {{red_count}} of them critical. Together they are costing you an estimated {{leak_estimate}} per month in missed revenue.

Want us to walk you through it? Pick a slot here: {{booking_url}}

{{sender_name}}`,
			},
			2: {
				Subject: "The {{red_count}} issues hurting {{org_name}} most",
				Body: `Hi {{name}},

Yesterday you received the audit for {{org_name}}. If you only have five minutes, start with the {{red_count}} red findings on page one.

Red findings are the ones actively turning customers away today. Fixing just those typically recovers the bulk of the {{leak_estimate}} per month we estimated for you.

If you'd rather have us walk you through the fixes, grab a slot: {{booking_url}}

{{sender_name}}`,
			},
			3: {
				Subject: "A quick win for {{org_name}} (takes 10 minutes)",
				Body: `Hi {{name}},

Most owners we audit never get past reading the report. Here's the fastest way to break that pattern: pick ONE finding from your audit and fix it today.

Our data says the single highest-impact fix for a {{segment_label}} profile like yours usually takes under ten minutes.

Stuck on where to start? That's literally what the free review call is for: {{booking_url}}

{{sender_name}}`,
			},
			4: {
				Subject: "{{name}}, your competitors had the same problems",
				Body: `Hi {{name}},

Every week we audit businesses in the same position as {{org_name}}: solid operation, leaky online presence.

The ones that act close the gap fast. The ones that don't keep paying the {{leak_estimate}} per month we flagged in your report, quietly, forever.

There are still slots open this week if you want help prioritising: {{booking_url}}

{{sender_name}}`,
			},
			5: {
				Subject: "Last note about your {{org_name}} audit",
				Body: `Hi {{name}},

This is the last email about your audit - I don't want to clutter your inbox.

Your report stays valid, and so does the free review call. If the timing is bad right now, bookmark this link for when it isn't: {{booking_url}}

Whatever you decide: fix the red findings. They're the expensive ones.

All the best,
{{sender_name}}`,
			},
		},
		sequence.TypeNoShowRecovery: {
			1: {
				Subject: "We missed you, {{name}}",
				Body: `Hi {{name}},

We had a review call for {{org_name}} on the calendar today, but it looks like the timing didn't work out. No problem - it happens.

Your audit results are still waiting, and the call takes twenty minutes. Want to pick a new slot? {{booking_url}}

{{sender_name}}`,
			},
			2: {
				Subject: "Your audit review for {{org_name}} - new slot?",
				Body: `Hi {{name}},

Quick reminder: your audit flagged an estimated {{leak_estimate}} per month in missed revenue for {{org_name}}, and we still owe you the walkthrough.

Twenty minutes, no pitch, you leave with a prioritised fix list. New slot here: {{booking_url}}

{{sender_name}}`,
			},
			3: {
				Subject: "Closing the loop on {{org_name}}",
				Body: `Hi {{name}},

I'll stop nudging after this one. If a call isn't useful right now, that's completely fine - the report itself has everything you need, starting with the red findings.

If you change your mind, the booking link keeps working: {{booking_url}}

All the best,
{{sender_name}}`,
			},
		},
		sequence.TypePostCall: {
			1: {
				Subject: "Your fix list from today's call",
				Body: `Hi {{name}},

Good talking to you today about {{org_name}}. As promised, here's the plan we discussed, in order of impact:

1. Fix the {{red_count}} red findings from your audit first.
2. Work through the orange findings as time allows.
3. Re-run the audit in 30 days to measure the difference.

Questions while you work through it? Just reply to this email.

{{sender_name}}`,
			},
			2: {
				Subject: "How's the fix list going, {{name}}?",
				Body: `Hi {{name}},

It's been two days since our call about {{org_name}}. Quick check-in: did you get a chance to start on the red findings?

If you've hit a snag, reply and tell me where - that's usually enough to get unstuck. And if you'd rather have us handle the fixes, a follow-up call is here: {{booking_url}}

{{sender_name}}`,
			},
		},
		sequence.TypeOnboarding: {
			1: {
				Subject: "Welcome aboard, {{name}}",
				Body: `Hi {{name}},

Welcome! Your account for {{org_name}} is live. Over the next week I'll send you a few short emails to get you from signed-up to seeing results.

Today, just one thing: log in and confirm your business details are correct. Everything else builds on that.

{{sender_name}}`,
			},
			2: {
				Subject: "Day 1: your baseline numbers",
				Body: `Hi {{name}},

Your first full scan for {{org_name}} has run. These are your baseline numbers - don't worry about how they look, worry about the trend.

From here every fix you make shows up in the dashboard within a day. Start with anything marked red.

{{sender_name}}`,
			},
			3: {
				Subject: "The one habit that makes this work",
				Body: `Hi {{name}},

Customers who get the most out of this do exactly one thing differently: they check the dashboard weekly and fix the top item, every week.

That's it. No marathon sessions. Fifteen minutes a week compounds surprisingly fast.

If you want help setting up a routine for {{org_name}}, book a short onboarding call: {{booking_url}}

{{sender_name}}`,
			},
			4: {
				Subject: "One week in - how's it going?",
				Body: `Hi {{name}},

You've been with us a week now. By this point most accounts have cleared their first red findings - if {{org_name}} hasn't yet, that's the single best place to spend your next fifteen minutes.

Anything unclear, reply to this email and a human answers.

Glad to have you with us,
{{sender_name}}`,
			},
		},
	}
}
