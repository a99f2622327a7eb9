// Package classify implements the stateless suspicion-level rule engine
// of spec §4.4: classify(proc, conn?, launchd?, sig?, parent?) -> {level,
// reasons}. Rules run in a fixed order, expressed as the "sequence of rule
// records" form spec §9 recommends over one long if/else chain.
package classify

import "github.com/bobbyrathoree/macscope/internal/domain"

// Input is everything classify needs about one process at scan time.
// All fields are plain values (no pointers into shared state) so Classify
// stays pure and side-effect free, per spec §4.4's determinism invariant.
type Input struct {
	PID          int
	Name         string
	HasName      bool
	Cmd          string
	ExecPath     string
	HasExec      bool
	User         string
	ProcessOwner string // the user name classify runs as; drives the different-user rule
	CPU          float64

	Outbound int
	Listen   int
	Remotes  []string

	Launchd    string
	HasLaunchd bool

	ParentName string
	HasParent  bool

	Sig *domain.Signature
}

// Result is classify's pure output.
type Result struct {
	Level   domain.SuspicionLevel
	Reasons []string
}

// state accumulates level and reasons across rule phases. raise never
// lowers the level (the one documented exception — the trusted-binary
// downgrade — calls lower explicitly instead).
type state struct {
	level     domain.SuspicionLevel
	reasons   []string
	reasonSet map[string]bool
}

func newState() *state {
	return &state{reasonSet: make(map[string]bool)}
}

// raise sets the level to max(current, lvl); it can never lower it.
func (s *state) raise(lvl domain.SuspicionLevel) {
	if lvl > s.level {
		s.level = lvl
	}
}

// lower is the single sanctioned way to decrease a level (rule 7's
// trusted-binary downgrade).
func (s *state) lower(lvl domain.SuspicionLevel) {
	s.level = lvl
}

// add appends reason if it hasn't already fired, preserving insertion
// (rule-evaluation) order, per spec §3's "reasons is deduplicated and
// ordered by rule-insertion order" invariant.
func (s *state) add(reason string) {
	if s.reasonSet[reason] {
		return
	}
	s.reasonSet[reason] = true
	s.reasons = append(s.reasons, reason)
}

func (s *state) result() Result {
	reasons := s.reasons
	if reasons == nil {
		reasons = []string{}
	}
	return Result{Level: s.level, Reasons: reasons}
}
