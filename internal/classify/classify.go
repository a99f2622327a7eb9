package classify

// ruleFunc is the "rule record" unit spec §9 recommends: each rule is a
// small pure function over (state, Input) rather than a branch in one long
// if/else chain, so rules can be added, removed or reordered independently.
type ruleFunc func(*state, Input)

// order fixes the sequence rule phases run in; spec §8 requires classify be
// deterministic given the same input, which in particular means this order
// never changes at runtime.
var order = []ruleFunc{
	rule1InputMonitoring,
	rule2DataUpload,
	rule3DescriptiveTags,
	rule4NetworkVolume,
	rule5KeywordFamilies,
	rule6Location,
	rule7SignatureTrust,
	rule8Injection,
	rule9NameAnomalies,
	rule10Combinatorial,
	rule11NetworkAnomaly,
}

// Classify runs every rule phase over in, in order, and returns the
// resulting suspicion level and deduplicated, insertion-ordered reasons.
// It has no side effects and depends on nothing but its argument, so the
// orchestrator can call it concurrently across processes without locking.
func Classify(in Input) Result {
	s := newState()
	for _, rule := range order {
		rule(s, in)
	}
	return s.result()
}
