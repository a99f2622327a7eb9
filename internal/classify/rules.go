package classify

import (
	"regexp"
	"strings"

	"github.com/bobbyrathoree/macscope/internal/domain"
)

// haystack is the name+cmd search space most keyword rules search over.
// Rule 1 additionally folds in execPath for some of its branches, since a
// bundled helper tool's identifying strings often live in its path rather
// than its cmdline.
func haystack(in Input) string {
	return strings.ToLower(in.Name + " " + in.Cmd)
}

// isUnsigned reports whether in.Sig represents an executable with no code
// signature at all.
func isUnsigned(sig *domain.Signature) bool {
	return sig == nil || !sig.Signed
}

// rule1InputMonitoring is spec §4.4 rule 1: five independent checks for
// keystroke/UI-event capture, each escalating on its own evidence rather
// than funneling into one shared branch.
func rule1InputMonitoring(s *state, in Input) {
	fullHay := strings.ToLower(in.Name + " " + in.Cmd + " " + in.ExecPath)
	cmdExecHay := strings.ToLower(in.Cmd + " " + in.ExecPath)

	if _, ok := containsAnyFold(fullHay, keyloggerKeywords); ok {
		if in.Outbound > 0 {
			s.raise(domain.LevelCritical)
			s.add("keylogger-with-network-activity")
		} else {
			s.raise(domain.LevelHigh)
			s.add("keylogger-pattern")
		}
	}

	if _, ok := containsAnyFold(cmdExecHay, inputMonitoringTokens); ok {
		if in.Outbound > 2 {
			s.raise(domain.LevelCritical)
			s.add("input-monitoring-with-network")
		}
		if isUnsigned(in.Sig) {
			s.raise(domain.LevelCritical)
			s.add("unsigned-input-monitor")
		}
		if in.HasParent && equalFoldAny(in.ParentName, inputMonitoringSpawnParents()) {
			s.raise(domain.LevelHigh)
			s.add("browser-spawned-input-monitor")
		}
	}

	if _, ok := containsAnyFold(cmdExecHay, accessibilityTokens); ok && in.Outbound > 1 {
		s.raise(domain.LevelCritical)
		s.add("accessibility-with-network")
	}
}

// rule2DataUpload is spec §4.4 rule 2: a process with a large outbound
// connection count and a wide spread of remote endpoints, at least one of
// which matches the non-Apple suspicious-remote heuristic, looks like bulk
// data exfiltration rather than ordinary network chatter.
func rule2DataUpload(s *state, in Input) {
	if in.Outbound <= 10 || len(in.Remotes) <= 5 {
		return
	}
	for _, r := range in.Remotes {
		if remoteLooksSuspicious(r) {
			s.raise(domain.LevelHigh)
			s.add("suspicious-data-upload-pattern")
			return
		}
	}
}

// rule3DescriptiveTags attaches spec §4.4 rule 3's four descriptive tags.
// None of them changes the level here; rule 10's combinatorial tightening
// later raises a LOW level to MED when mgmt-suite or launchd-managed is
// present, and acts on the overall reason count.
func rule3DescriptiveTags(s *state, in Input) {
	if in.User != "" && in.ProcessOwner != "" &&
		in.User != in.ProcessOwner && in.User != "root" && in.User != "_www" {
		s.add("different-user")
	}
	if agentishPattern.MatchString(in.Cmd) {
		s.add("agent-ish")
	}
	if in.HasLaunchd && in.Launchd != "" {
		s.add("launchd-managed")
	}
	if mgmtSuiteVendorPattern.MatchString(in.Cmd) || equalFoldAny(in.Name, mgmtSuiteNames) {
		s.add("mgmt-suite")
	}
}

// rule4NetworkVolume is spec §4.4 rule 4: raw connection counts alone, with
// no regard to level otherwise in play.
func rule4NetworkVolume(s *state, in Input) {
	if in.Outbound+in.Listen > 20 {
		s.add("many-connections")
	}
	if in.Outbound > 50 {
		s.raise(domain.LevelMed)
		s.add("excessive-outbound")
	}
}

// rule5KeywordFamilies is spec §4.4 rule 5: five independent keyword
// families over name+cmd, first match per family wins. remote-access's MED
// never downgrades an already-HIGH level because raise is monotonic.
func rule5KeywordFamilies(s *state, in Input) {
	hay := haystack(in)

	if _, ok := containsAnyFold(hay, screenRecorderKeywords); ok {
		s.raise(domain.LevelMed)
		s.add("screen-recorder")
	}
	if _, ok := containsAnyFold(hay, remoteAccessKeywords); ok {
		s.raise(domain.LevelMed)
		s.add("remote-access")
	}
	if _, ok := containsAnyFold(hay, cryptominerKeywords); ok {
		s.raise(domain.LevelHigh)
		s.add("cryptominer")
	}
	if _, ok := containsAnyFold(hay, dataExfiltrationKeywords); ok && !trustedSignature(in.Sig) {
		s.raise(domain.LevelMed)
		s.add("data-exfiltration")
	}
	if _, ok := containsAnyFold(hay, explicitlySuspiciousKeywords); ok {
		s.raise(domain.LevelCritical)
		s.add("suspicious-name")
	}
}

// trustedSignature reports whether sig is both valid and signed by a team
// rule 5's data-exfiltration carve-out and rule 7 both treat as trusted.
func trustedSignature(sig *domain.Signature) bool {
	if sig == nil || !sig.Signed || !sig.Valid {
		return false
	}
	return sig.HasTeam && (domain.TrustedTeams[sig.TeamIdentifier] || vendorTeamIdentifierAllowlist[sig.TeamIdentifier])
}

// rule6Location raises MED for an executable running from a location that
// is unusual for a long-lived process, or from a path with a hidden
// segment, unless the process itself is a recognized management suite
// (spec §4.4 rule 6).
func rule6Location(s *state, in Input) {
	if !in.HasExec {
		return
	}
	if equalFoldAny(in.Name, mgmtSuiteNames) {
		return
	}
	for _, prefix := range suspiciousLocationPrefixes {
		if strings.HasPrefix(in.ExecPath, prefix) {
			s.raise(domain.LevelMed)
			s.add("suspicious-location:" + prefix)
			return
		}
	}
	if hiddenPathSegment(in.ExecPath) {
		s.raise(domain.LevelMed)
		s.add("hidden-directory-path")
	}
}

// rule7SignatureTrust is spec §4.4 rule 7: bucket the signature into one of
// five trust levels and act on it. trusted-binary is the only downgrade
// path in the whole engine, and only fires from a MED level reached by few
// enough reasons that it's plausibly a false positive.
func rule7SignatureTrust(s *state, in Input) {
	if in.Sig == nil {
		return
	}

	switch trustLevelOf(in.Sig) {
	case domain.TrustMalicious:
		s.raise(domain.LevelCritical)
		s.add("malicious-signature")
	case domain.TrustSuspicious:
		s.raise(domain.LevelHigh)
		s.add("unsigned")
	case domain.TrustUnknown:
		s.add("unknown-signature")
		if !strings.HasPrefix(in.ExecPath, "/usr/local/") {
			s.raise(domain.LevelMed)
		}
	case domain.TrustVerified:
		if in.Sig.HasNotarized && in.Sig.Notarized {
			s.add("notarized")
		}
	case domain.TrustTrusted:
		downgrade := s.level == domain.LevelMed && len(s.reasons) <= 3
		s.add("trusted-binary")
		if downgrade {
			s.lower(domain.LevelLow)
		}
	}
}

// trustLevelOf classifies an observed signature into the coarse trust
// bucket rule 7 branches on: malicious (tampered), suspicious (unsigned),
// trusted (known vendor team or App Store), verified (a real but
// unrecognized identity), or unknown (ad-hoc signed, no team at all).
func trustLevelOf(sig *domain.Signature) domain.TrustLevel {
	if sig.Signed && !sig.Valid {
		return domain.TrustMalicious
	}
	if !sig.Signed {
		return domain.TrustSuspicious
	}
	if domain.TrustedTeams[sig.TeamIdentifier] || vendorTeamIdentifierAllowlist[sig.TeamIdentifier] || sig.IsAppStore {
		return domain.TrustTrusted
	}
	if (sig.HasNotarized && sig.Notarized) || sig.HasTeam {
		return domain.TrustVerified
	}
	return domain.TrustUnknown
}

var shellDashEFlag = regexp.MustCompile(`(^|\s)-e(\s|$)`)

// injectionCategory pairs a fixed parent-process family with the severity
// and reason tag rule 8 assigns when that family spawns a shell/script
// interpreter.
type injectionCategory struct {
	reason  string
	parents []string
	level   domain.SuspicionLevel
}

// injectionCategories enumerates spec §4.4 rule 8's six parent families in
// the fixed order "first category wins" resolves ties by: email, pdf/doc
// and office readers are CRITICAL, browsers/media/archive utilities HIGH.
var injectionCategories = []injectionCategory{
	{"shell-from-email-client", emailClientParents, domain.LevelCritical},
	{"shell-from-pdf-reader", documentViewerParents, domain.LevelCritical},
	{"shell-from-office-app", officeParents, domain.LevelCritical},
	{"shell-from-browser", browserParents, domain.LevelHigh},
	{"shell-from-media-player", mediaPlayerParents, domain.LevelHigh},
	{"shell-from-archive-util", archiveUtilParents, domain.LevelHigh},
}

// rule8Injection raises a per-category severity when a process commonly
// understood to be a passive document/media viewer is observed spawning a
// shell or script interpreter — the classic "Word spawned bash" injection
// signature (spec §4.4 rule 8). The first matching category wins.
func rule8Injection(s *state, in Input) {
	if !in.HasParent {
		return
	}
	if !equalFoldAny(in.Name, shellAndScriptChildNames) {
		return
	}
	for _, cat := range injectionCategories {
		if !equalFoldAny(in.ParentName, cat.parents) {
			continue
		}
		s.raise(cat.level)
		s.add(cat.reason)
		if shellDashEFlag.MatchString(in.Cmd) || strings.Contains(strings.ToLower(in.Cmd), "base64") {
			s.raise(domain.LevelCritical)
			s.add("encoded-payload-injection")
		}
		return
	}
}

// rule9NameAnomalies is spec §4.4 rule 9: hidden/unnamed processes, names
// carrying zero-width characters, and names that closely but not exactly
// match a well-known system process name, including through homoglyph
// substitution or separator stripping, are flagged as likely impersonation
// or concealment.
func rule9NameAnomalies(s *state, in Input) {
	if in.HasName && strings.HasPrefix(in.Name, ".") {
		s.raise(domain.LevelMed)
		s.add("hidden-process")
	}
	if !in.HasName && in.Cmd != "" {
		s.add("unnamed-process")
	}
	if in.HasName && containsZeroWidth(in.Name) {
		s.raise(domain.LevelHigh)
		s.add("zero-width-chars")
	}

	if !in.HasName || in.Name == "" {
		return
	}
	if equalFoldAny(in.Name, wellKnownSystemProcesses) {
		return
	}
	if sys, ok := mimicsSystemProcess(in.Name); ok {
		s.raise(domain.LevelHigh)
		s.add("mimicking-system-process:" + sys)
	}
}

// rule10Combinatorial is spec §4.4 rule 10: three independent threshold
// checks that tighten a LOW level to MED, or a MED level to HIGH, when
// enough weaker signals have accumulated, rather than any single strong one.
func rule10Combinatorial(s *state, in Input) {
	hasMgmtOrLaunchd := false
	for _, r := range s.reasons {
		if r == "mgmt-suite" || r == "launchd-managed" {
			hasMgmtOrLaunchd = true
			break
		}
	}

	if hasMgmtOrLaunchd && s.level == domain.LevelLow {
		s.raise(domain.LevelMed)
	}
	if len(s.reasons) >= 3 && s.level == domain.LevelLow {
		s.raise(domain.LevelMed)
	}
	if len(s.reasons) >= 5 && s.level == domain.LevelMed {
		s.raise(domain.LevelHigh)
	}
}

// rule11NetworkAnomaly is the network-anomaly detector spec §8 scenario 3
// references alongside, but outside of, the ten numbered rules: tag-only,
// it never changes the level on its own, so a cryptominer's HIGH from rule
// 5 is unaffected by also carrying a suspicious-port reason.
func rule11NetworkAnomaly(s *state, in Input) {
	for _, r := range in.Remotes {
		if port := remotePort(r); suspiciousPorts[port] {
			s.add("suspicious-port:" + port)
		}
	}
}
