package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bobbyrathoree/macscope/internal/domain"
)

// TestClassify_KeyloggerWithNetwork is spec §8 end-to-end scenario 1: a
// keylogger-named process with any outbound connection is CRITICAL.
func TestClassify_KeyloggerWithNetwork(t *testing.T) {
	in := Input{
		PID: 100, HasName: true, Name: "keywatcher",
		Cmd:      "/tmp/keywatcher --upload",
		ExecPath: "/tmp/keywatcher", HasExec: true,
		Outbound: 3,
		Sig:      &domain.Signature{Signed: false},
	}

	got := Classify(in)
	assert.Equal(t, domain.LevelCritical, got.Level)
	assert.Contains(t, got.Reasons, "keylogger-with-network-activity")
}

func TestClassify_KeyloggerWithoutNetworkIsHigh(t *testing.T) {
	in := Input{
		PID: 101, HasName: true, Name: "keystroke-helper",
		Cmd: "/tmp/keystroke-helper",
	}

	got := Classify(in)
	assert.Equal(t, domain.LevelHigh, got.Level)
	assert.Contains(t, got.Reasons, "keylogger-pattern")
}

// TestClassify_UnsignedInputMonitor is spec §8 end-to-end scenario 2: an
// unsigned process referencing a low-level input-tap API is CRITICAL via
// unsigned-input-monitor, not merely the HIGH an unsigned-executable finding
// alone would produce.
func TestClassify_UnsignedInputMonitor(t *testing.T) {
	in := Input{
		PID: 102, HasName: true, Name: "helperd",
		Cmd: "/opt/x --CGEventTap",
		Sig: &domain.Signature{Signed: false},
	}

	got := Classify(in)
	assert.Equal(t, domain.LevelCritical, got.Level)
	assert.Contains(t, got.Reasons, "unsigned-input-monitor")
}

func TestClassify_InputMonitoringWithHeavyOutboundIsCritical(t *testing.T) {
	in := Input{
		PID: 103, HasName: true, Name: "watcherhelper",
		Cmd:      "watcherhelper --iohidmanager",
		Outbound: 3,
		Sig:      &domain.Signature{Signed: true, Valid: true},
	}

	got := Classify(in)
	assert.Equal(t, domain.LevelCritical, got.Level)
	assert.Contains(t, got.Reasons, "input-monitoring-with-network")
}

func TestClassify_BrowserSpawnedInputMonitor(t *testing.T) {
	in := Input{
		PID: 104, HasName: true, Name: "helper",
		Cmd:        "helper --nseventmonitor",
		HasParent:  true,
		ParentName: "Safari",
		Sig:        &domain.Signature{Signed: true, Valid: true},
	}

	got := Classify(in)
	assert.Equal(t, domain.LevelHigh, got.Level)
	assert.Contains(t, got.Reasons, "browser-spawned-input-monitor")
}

func TestClassify_AccessibilityWithNetwork(t *testing.T) {
	in := Input{
		PID: 105, HasName: true, Name: "uiwatcher",
		Cmd:      "uiwatcher --axuielement",
		Outbound: 2,
		Sig:      &domain.Signature{Signed: true, Valid: true},
	}

	got := Classify(in)
	assert.Equal(t, domain.LevelCritical, got.Level)
	assert.Contains(t, got.Reasons, "accessibility-with-network")
}

func TestClassify_SuspiciousDataUploadPattern(t *testing.T) {
	in := Input{
		PID: 106, HasName: true, Name: "uploader",
		Outbound: 11,
		Remotes: []string{
			"1.2.3.4:443", "5.6.7.8:443", "evil.ru:443",
			"a.b.cn:443", "c.d.tk:443", "e.f.g:443",
		},
	}

	got := Classify(in)
	assert.Equal(t, domain.LevelHigh, got.Level)
	assert.Contains(t, got.Reasons, "suspicious-data-upload-pattern")
}

func TestClassify_DataUploadBelowThresholdIsLow(t *testing.T) {
	in := Input{
		PID: 107, HasName: true, Name: "uploader",
		Outbound: 11,
		Remotes:  []string{"1.2.3.4:443", "apple.com:443"},
	}

	got := Classify(in)
	assert.NotContains(t, got.Reasons, "suspicious-data-upload-pattern")
}

func TestClassify_MgmtSuiteAndLaunchdManagedTighten(t *testing.T) {
	in := Input{
		PID: 108, HasName: true, Name: "jamf",
		Cmd:  "jamf policy-agent",
		User: "root", ProcessOwner: "root",
		Launchd: "com.jamf.management.daemon", HasLaunchd: true,
	}

	got := Classify(in)
	assert.Contains(t, got.Reasons, "mgmt-suite")
	assert.Contains(t, got.Reasons, "agent-ish")
	assert.Contains(t, got.Reasons, "launchd-managed")
	// mgmt-suite/launchd-managed present at a LOW level is rule 10's
	// explicit tightening condition.
	assert.Equal(t, domain.LevelMed, got.Level)
}

func TestClassify_DifferentUserTagAloneStaysLow(t *testing.T) {
	in := Input{
		PID: 109, HasName: true, Name: "proc",
		User: "alice", ProcessOwner: "bob",
	}

	got := Classify(in)
	assert.Contains(t, got.Reasons, "different-user")
	assert.Equal(t, domain.LevelLow, got.Level)
}

func TestClassify_ExcessiveOutboundIsMed(t *testing.T) {
	in := Input{PID: 110, HasName: true, Name: "proc", Outbound: 51}

	got := Classify(in)
	assert.Equal(t, domain.LevelMed, got.Level)
	assert.Contains(t, got.Reasons, "excessive-outbound")
}

func TestClassify_ManyConnectionsTagDoesNotAloneRaiseLevel(t *testing.T) {
	in := Input{PID: 111, HasName: true, Name: "proc", Outbound: 15, Listen: 10}

	got := Classify(in)
	assert.Contains(t, got.Reasons, "many-connections")
	assert.Equal(t, domain.LevelLow, got.Level)
}

// TestClassify_Cryptominer is spec §8 end-to-end scenario 3.
func TestClassify_Cryptominer(t *testing.T) {
	in := Input{
		PID: 112, HasName: true, Name: "xmrig",
		Cmd:      "/usr/local/bin/xmrig --algo randomx --pool pool.supportxmr.com:3333",
		ExecPath: "/usr/local/bin/xmrig", HasExec: true,
		CPU:     98,
		Remotes: []string{"pool.supportxmr.com:3333"},
	}

	got := Classify(in)
	assert.Equal(t, domain.LevelHigh, got.Level)
	assert.Contains(t, got.Reasons, "cryptominer")
	assert.Contains(t, got.Reasons, "suspicious-port:3333")
}

func TestRule11NetworkAnomalyTagsSuspiciousPortWithoutChangingLevel(t *testing.T) {
	in := Input{
		PID: 1, HasName: true, Name: "innocuous",
		Remotes: []string{"example.com:3333"},
	}
	got := Classify(in)
	assert.Contains(t, got.Reasons, "suspicious-port:3333")
	assert.Equal(t, domain.LevelLow, got.Level)
}

func TestRule11NetworkAnomalyIgnoresOrdinaryPorts(t *testing.T) {
	in := Input{
		PID: 1, HasName: true, Name: "innocuous",
		Remotes: []string{"example.com:443"},
	}
	got := Classify(in)
	for _, r := range got.Reasons {
		assert.NotContains(t, r, "suspicious-port")
	}
}

// TestClassify_TrustedDowngrade is spec §8 end-to-end scenario 4: a
// trusted-vendor-signed binary picks up trusted-binary, and a
// data-exfiltration-looking command line from that same trusted vendor
// never raises the level at all.
func TestClassify_TrustedDowngrade(t *testing.T) {
	in := Input{
		PID:      113,
		HasName:  true,
		Name:     "softwareupdated",
		Cmd:      "curl https://update.apple.com",
		Outbound: 1,
		Sig:      &domain.Signature{Signed: true, Valid: true, HasTeam: true, TeamIdentifier: "Apple Inc."},
	}

	got := Classify(in)
	assert.Equal(t, domain.LevelLow, got.Level)
	assert.Contains(t, got.Reasons, "trusted-binary")
	assert.NotContains(t, got.Reasons, "data-exfiltration")
}

func TestClassify_TrustedDowngradeFromMedWithFewReasons(t *testing.T) {
	in := Input{
		PID: 114, HasName: true, Name: "updater",
		Cmd:      "updater",
		ExecPath: "/tmp/updater", HasExec: true,
		Sig: &domain.Signature{Signed: true, Valid: true, HasTeam: true, TeamIdentifier: "Apple Inc."},
	}

	got := Classify(in)
	assert.Equal(t, domain.LevelLow, got.Level)
	assert.Contains(t, got.Reasons, "trusted-binary")
}

func TestClassify_TrustedDowngradeDoesNotApplyToMerelyVerified(t *testing.T) {
	in := Input{
		PID: 115, HasName: true, Name: "updater",
		Cmd:      "updater",
		ExecPath: "/tmp/updater", HasExec: true,
		Sig: &domain.Signature{Signed: true, Valid: true, HasTeam: true, TeamIdentifier: "Some Random Dev LLC"},
	}

	got := Classify(in)
	assert.NotEqual(t, domain.LevelLow, got.Level)
	assert.NotContains(t, got.Reasons, "trusted-binary")
}

func TestClassify_MaliciousSignatureIsCritical(t *testing.T) {
	in := Input{
		PID: 116, HasName: true, Name: "proc",
		Sig: &domain.Signature{Signed: true, Valid: false},
	}

	got := Classify(in)
	assert.Equal(t, domain.LevelCritical, got.Level)
	assert.Contains(t, got.Reasons, "malicious-signature")
}

func TestClassify_SuspiciousUnsignedIsHigh(t *testing.T) {
	in := Input{
		PID: 117, HasName: true, Name: "proc",
		Sig: &domain.Signature{Signed: false},
	}

	got := Classify(in)
	assert.Equal(t, domain.LevelHigh, got.Level)
	assert.Contains(t, got.Reasons, "unsigned")
}

func TestClassify_UnknownSignatureRaisesMedOutsideUsrLocal(t *testing.T) {
	in := Input{
		PID: 118, HasName: true, Name: "proc",
		ExecPath: "/Applications/proc.app/Contents/MacOS/proc", HasExec: true,
		Sig: &domain.Signature{Signed: true, Valid: true},
	}

	got := Classify(in)
	assert.Equal(t, domain.LevelMed, got.Level)
	assert.Contains(t, got.Reasons, "unknown-signature")
}

func TestClassify_UnknownSignatureUnderUsrLocalDoesNotRaise(t *testing.T) {
	in := Input{
		PID: 119, HasName: true, Name: "proc",
		ExecPath: "/usr/local/bin/proc", HasExec: true,
		Sig: &domain.Signature{Signed: true, Valid: true},
	}

	got := Classify(in)
	assert.Equal(t, domain.LevelLow, got.Level)
	assert.Contains(t, got.Reasons, "unknown-signature")
}

func TestClassify_InjectionCategorySeverity(t *testing.T) {
	cases := []struct {
		parent     string
		wantLevel  domain.SuspicionLevel
		wantReason string
	}{
		{"Mail", domain.LevelCritical, "shell-from-email-client"},
		{"Preview", domain.LevelCritical, "shell-from-pdf-reader"},
		{"Microsoft Word", domain.LevelCritical, "shell-from-office-app"},
		{"Safari", domain.LevelHigh, "shell-from-browser"},
		{"VLC", domain.LevelHigh, "shell-from-media-player"},
		{"The Unarchiver", domain.LevelHigh, "shell-from-archive-util"},
	}

	for _, c := range cases {
		in := Input{
			PID: 120, HasName: true, Name: "bash",
			Cmd:        "bash -c 'echo hi'",
			HasParent:  true,
			ParentName: c.parent,
		}
		got := Classify(in)
		assert.Equal(t, c.wantLevel, got.Level, "parent %s", c.parent)
		assert.Contains(t, got.Reasons, c.wantReason, "parent %s", c.parent)
	}
}

func TestClassify_InjectionWithEncodedPayloadEscalates(t *testing.T) {
	in := Input{
		PID: 121, HasName: true, Name: "bash",
		Cmd:        "bash -c 'echo hi | base64'",
		HasParent:  true,
		ParentName: "Microsoft Word",
	}

	got := Classify(in)
	assert.Equal(t, domain.LevelCritical, got.Level)
	assert.Contains(t, got.Reasons, "shell-from-office-app")
	assert.Contains(t, got.Reasons, "encoded-payload-injection")
}

func TestClassify_HiddenProcess(t *testing.T) {
	in := Input{PID: 122, HasName: true, Name: ".hidden-agent"}

	got := Classify(in)
	assert.Equal(t, domain.LevelMed, got.Level)
	assert.Contains(t, got.Reasons, "hidden-process")
}

func TestClassify_UnnamedProcess(t *testing.T) {
	in := Input{PID: 123, HasName: false, Cmd: "/some/path arg1 arg2"}

	got := Classify(in)
	assert.Contains(t, got.Reasons, "unnamed-process")
}

func TestClassify_ZeroWidthChars(t *testing.T) {
	in := Input{PID: 124, HasName: true, Name: "F​inder"}

	got := Classify(in)
	assert.Equal(t, domain.LevelHigh, got.Level)
	assert.Contains(t, got.Reasons, "zero-width-chars")
}

// TestClassify_Mimicry is spec §8 end-to-end scenario 5: a homoglyph
// substitution of a well-known system process name is flagged as mimicry.
func TestClassify_Mimicry(t *testing.T) {
	in := Input{PID: 125, HasName: true, Name: "kerne1_task"}

	got := Classify(in)
	assert.Equal(t, domain.LevelHigh, got.Level)
	assert.Contains(t, got.Reasons, "mimicking-system-process:kernel_task")
}

func TestClassify_MimicryBySeparatorStripping(t *testing.T) {
	in := Input{PID: 126, HasName: true, Name: "kernel-task"}

	got := Classify(in)
	assert.Equal(t, domain.LevelHigh, got.Level)
	assert.Contains(t, got.Reasons, "mimicking-system-process:kernel_task")
}

func TestClassify_MimicryLevenshteinRequiresLengthFive(t *testing.T) {
	// "mde" is edit-distance 1 from "mds" but under the length-5 floor, so
	// it must not be flagged as impersonating the real "mds" process.
	in := Input{PID: 127, HasName: true, Name: "mde"}

	got := Classify(in)
	assert.NotContains(t, got.Reasons, "mimicking-system-process:mds")
}

func TestClassify_RealSystemProcessIsNotFlagged(t *testing.T) {
	in := Input{PID: 128, HasName: true, Name: "Finder"}

	got := Classify(in)
	assert.Empty(t, got.Reasons)
	assert.Equal(t, domain.LevelLow, got.Level)
}

func TestClassify_CombinatorialThreeReasonsRaisesMed(t *testing.T) {
	in := Input{
		PID:  129,
		HasName: true, Name: "proc",
		User: "alice", ProcessOwner: "bob",
		Cmd:     "proc --agent",
		Launchd: "com.example.proc", HasLaunchd: true,
	}

	got := Classify(in)
	// different-user, agent-ish, launchd-managed together trip both the
	// mgmt-suite/launchd-managed condition and the reasons>=3 condition.
	assert.Equal(t, domain.LevelMed, got.Level)
}

func TestClassify_DeterministicReasonOrder(t *testing.T) {
	in := Input{
		PID: 130, HasName: true, Name: "keylogwatcher",
		Cmd:      "/tmp/keylogwatcher --upload --cgeventtap",
		ExecPath: "/tmp/keylogwatcher", HasExec: true,
		Outbound: 12,
		Sig:      &domain.Signature{Signed: false},
	}

	first := Classify(in)
	second := Classify(in)
	assert.Equal(t, first, second)
}

func TestClassify_UnknownProcessIsLow(t *testing.T) {
	in := Input{PID: 1, HasName: true, Name: "Finder"}
	got := Classify(in)
	assert.Equal(t, domain.LevelLow, got.Level)
	assert.Empty(t, got.Reasons)
}
