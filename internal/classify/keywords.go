package classify

import (
	"regexp"
	"strings"
)

// keyloggerKeywords fires rule 1's keylogger branch (spec §4.4 rule 1) when
// found in a process's name, command line or executable path.
var keyloggerKeywords = []string{
	"keylog", "keystroke", "keycapture", "keywatcher", "logkeys", "keygrabber",
}

// inputMonitoringTokens are the low-level macOS input-tap APIs a process
// must reference in its command line or executable path to capture
// keystrokes system-wide (rule 1's input-monitoring branches).
var inputMonitoringTokens = []string{
	"cgeventtapcreate", "cgeventtap", "iohidmanager", "nseventmonitor",
}

// accessibilityTokens are references to the macOS Accessibility API, which a
// process needs to observe or synthesize UI events outside its own windows
// (rule 1's accessibility branch).
var accessibilityTokens = []string{
	"axuielement", "axobserver", "kaxtrustedcheckoptionprompt", "accessibility api",
}

// inputMonitoringSpawnParents is the fixed parent family rule 1's
// browser-spawned-input-monitor branch checks a parent process name against:
// browsers, document viewers, media players and archive utilities — the
// passive-application families an input-monitoring child has no business
// being spawned from.
func inputMonitoringSpawnParents() []string {
	all := make([]string, 0, len(browserParents)+len(documentViewerParents)+len(mediaPlayerParents)+len(archiveUtilParents))
	all = append(all, browserParents...)
	all = append(all, documentViewerParents...)
	all = append(all, mediaPlayerParents...)
	all = append(all, archiveUtilParents...)
	return all
}

// suspiciousRemoteTLDs and trustedRemoteHosts back rule 2's data-upload
// heuristic: a remote endpoint under one of these TLDs, that isn't also an
// Apple/iCloud/local endpoint, contributes to the suspicious-upload pattern.
var suspiciousRemoteTLDs = []string{".ru", ".cn", ".tk", ".onion"}
var trustedRemoteHosts = []string{"apple.com", "icloud.com", "localhost"}
var ipv4HostPattern = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)

// remoteLooksSuspicious reports whether remote (host or host:port) matches
// rule 2's non-Apple heuristic: a suspicious TLD, an onion address, or a
// bare IPv4 literal.
func remoteLooksSuspicious(remote string) bool {
	lower := strings.ToLower(remote)
	for _, h := range trustedRemoteHosts {
		if strings.Contains(lower, h) {
			return false
		}
	}
	host := lower
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	for _, tld := range suspiciousRemoteTLDs {
		if strings.HasSuffix(host, tld) {
			return true
		}
	}
	return ipv4HostPattern.MatchString(host)
}

// suspiciousPorts are remote ports commonly associated with cryptomining
// stratum pools and off-the-shelf C2/remote-access tooling, backing the
// network-anomaly detector referenced alongside the ten numbered rules
// (spec §8 scenario 3's "suspicious-port" reason).
var suspiciousPorts = map[string]bool{
	"3333": true, "4444": true, "5555": true, "7777": true,
	"8333": true, "9999": true, "1337": true, "31337": true,
}

// remotePort extracts the port from a "host:port" remote endpoint string,
// returning "" if none is present.
func remotePort(remote string) string {
	idx := strings.LastIndex(remote, ":")
	if idx == -1 || idx == len(remote)-1 {
		return ""
	}
	return remote[idx+1:]
}

// suspiciousLocationPrefixes are filesystem locations rule 6 treats as
// unusual for a long-running executable (spec §4.4 rule 6).
var suspiciousLocationPrefixes = []string{
	"/tmp/", "/private/tmp/", "/var/tmp/", "/Users/Shared/", "/.Trash/",
}

// hiddenPathSegment reports whether any path component of p starts with a
// dot, i.e. is hidden in the usual Unix sense, excluding the leading "./"
// of a relative path.
func hiddenPathSegment(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if len(seg) > 1 && seg[0] == '.' {
			return true
		}
	}
	return false
}

// mgmtSuiteNames are recognized MDM / endpoint-management agents. Their
// presence exempts a process from rule 6's location check and, via
// mgmtSuiteVendorPattern, feeds the mgmt-suite descriptive tag (rule 3).
var mgmtSuiteNames = []string{"jamf", "munki", "intune", "kandji", "addigy", "fleetd", "fleetdm"}

var mgmtSuiteVendorPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(mgmtSuiteNames, "|") + `)\b`)

// agentishPattern backs rule 3's agent-ish tag: a command line that
// self-describes as a background agent or daemon.
var agentishPattern = regexp.MustCompile(`(?i)\b(launchd|agent|daemon)\b`)

// vendorTeamIdentifierAllowlist backs rule 7's signature-trust check beyond
// domain.TrustedTeams: vendor team IDs the monitor treats as unconditionally
// trusted once signature validity is confirmed.
var vendorTeamIdentifierAllowlist = map[string]bool{
	"EQHXZ8M8AV": true, // Mozilla
	"J2T37FCF9W": true, // 1Password
	"UBF8T346G9": true, // Dropbox
}

// emailClientParents, documentViewerParents, browserParents, officeParents,
// mediaPlayerParents and archiveUtilParents back rule 8's injection
// heuristic: a process of this parent family spawning a shell/script
// interpreter is unusual for ordinary document handling. Each family also
// carries rule 8's per-category severity and reason tag.
var (
	emailClientParents    = []string{"mail", "outlook", "thunderbird", "airmail"}
	documentViewerParents = []string{"preview", "adobe acrobat", "acrobat reader", "pdf expert"}
	browserParents        = []string{"safari", "chrome", "firefox", "microsoft edge", "brave browser"}
	officeParents         = []string{"microsoft word", "microsoft excel", "microsoft powerpoint", "word", "excel", "powerpoint"}
	mediaPlayerParents    = []string{"quicktime player", "vlc", "iina"}
	archiveUtilParents    = []string{"archive utility", "the unarchiver", "keka"}
)

// shellAndScriptChildNames flags a child process name as an interpreter
// capable of running attacker-supplied code, for rule 8.
var shellAndScriptChildNames = []string{
	"sh", "bash", "zsh", "osascript", "python", "python3", "perl", "ruby", "curl", "wget",
}

// screenRecorderKeywords, remoteAccessKeywords, cryptominerKeywords,
// dataExfiltrationKeywords and explicitlySuspiciousKeywords back rule 5's
// keyword families (spec §4.4 rule 5), each with its own severity.
var (
	screenRecorderKeywords       = []string{"screencapture", "screenrecord", "avfoundation-capture"}
	remoteAccessKeywords         = []string{"teamviewer", "anydesk", "vnc", "remotedesktop", "screenshare"}
	cryptominerKeywords          = []string{"xmrig", "cryptonight", "stratum+tcp", "minerd", "cpuminer", "randomx"}
	dataExfiltrationKeywords     = []string{"curl", "wget", "scp", "rsync", "nc -e", "exfil"}
	explicitlySuspiciousKeywords = []string{"malware", "trojan", "ransomware", "backdoor", "rootkit"}
)

// wellKnownSystemProcesses are macOS system process names rule 9 checks
// user-launched binaries against for lookalike/mimicry (spec §4.4 rule 9).
var wellKnownSystemProcesses = []string{
	"kernel_task", "launchd", "WindowServer", "loginwindow", "Finder", "Dock",
	"SystemUIServer", "coreaudiod", "mds", "mdworker", "cfprefsd", "syslogd",
	"UserEventAgent", "logd", "securityd", "trustd", "opendirectoryd",
}

// zeroWidthRunes are zero-width Unicode code points rule 9's zero-width
// branch treats as always suspicious in a process name.
var zeroWidthRunes = map[rune]bool{
	'\u200B': true, // zero width space
	'\u200C': true, // zero width non-joiner
	'\u200D': true, // zero width joiner
	'\uFEFF': true, // zero width no-break space
}

func containsZeroWidth(s string) bool {
	for _, r := range s {
		if zeroWidthRunes[r] {
			return true
		}
	}
	return false
}

func containsAnyFold(haystack string, needles []string) (string, bool) {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return n, true
		}
	}
	return "", false
}

func equalFoldAny(s string, candidates []string) bool {
	lower := strings.ToLower(s)
	for _, c := range candidates {
		if lower == strings.ToLower(c) {
			return true
		}
	}
	return false
}
