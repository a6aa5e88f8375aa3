// Package consensus defines the contract for resolving a task's
// submitted labels into a final truth label.
package consensus

import "sort"

// Verdict states for a task's submission set.
type Verdict int

// Possible verdicts.
const (
	// Open means the task has fewer submissions than the redundancy cap.
	Open Verdict = iota
	// Resolved means all submissions agree; Outcome.Label holds the
	// unanimous label.
	Resolved
	// Conflict means the cap was reached without unanimity and the task
	// needs manual adjudication.
	Conflict
)

// Outcome is the result of evaluating a task's submissions.
type Outcome struct {
	Verdict Verdict
	// Label is the unanimous label when Verdict is Resolved, otherwise
	// the current mode (useful for surfacing a suggestion to reviewers).
	Label string
}

// Option applies a configuration option to the Resolver.
type Option func(*Resolver)

// WithRedundancy sets how many submissions a task needs before a
// verdict other than Open is possible.
func WithRedundancy(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.redundancy = n
		}
	}
}

// defaultRedundancy matches the platform's standard five-slot tasks.
const defaultRedundancy = 5

// Resolver evaluates submission sets under a fixed redundancy cap.
// Resolution is unanimity-gated: a single dissent routes the task to
// manual review instead of trusting a plurality.
type Resolver struct {
	redundancy int
}

// New creates a Resolver with configuration options.
func New(opts ...Option) *Resolver {
	r := &Resolver{redundancy: defaultRedundancy}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Redundancy returns the configured cap.
func (r *Resolver) Redundancy() int {
	return r.redundancy
}

// Evaluate inspects the submitted labels and returns the verdict.
// Labels beyond the cap never occur under the allocation invariant, but
// Evaluate tolerates them by treating len >= cap as "cap reached".
func (r *Resolver) Evaluate(labels []string) Outcome {
	mode := Mode(labels)
	if len(labels) < r.redundancy {
		return Outcome{Verdict: Open, Label: mode}
	}
	for _, l := range labels {
		if l != mode {
			return Outcome{Verdict: Conflict, Label: mode}
		}
	}
	return Outcome{Verdict: Resolved, Label: mode}
}

// Mode returns the most frequent label, breaking ties lexicographically
// so the result is deterministic. Returns "" for an empty set.
func Mode(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	counts := make(map[string]int, len(labels))
	for _, l := range labels {
		counts[l]++
	}
	candidates := make([]string, 0, len(counts))
	best := 0
	for l, c := range counts {
		if c > best {
			best = c
			candidates = candidates[:0]
		}
		if c == best {
			candidates = append(candidates, l)
		}
	}
	sort.Strings(candidates)
	return candidates[0]
}
