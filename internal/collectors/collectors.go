// Package collectors isolates OS-command invocation behind four pure
// operations (spec §4.1). Every collector here fails soft: a timeout or a
// subprocess error yields an empty container and a logged warning, never a
// propagated error, per spec §7's taxonomy.
package collectors

import (
	"context"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/bobbyrathoree/macscope/internal/domain"
)

const (
	processListTimeout  = 5 * time.Second
	connectionTimeout   = 8 * time.Second
	launchDaemonTimeout = 5 * time.Second
	signatureTimeout    = 3 * time.Second
)

// Collectors runs the four external collectors against the real OS.
type Collectors struct {
	log *zap.Logger
}

// New returns a Collectors that shells out to ps, lsof, launchctl and
// codesign/spctl, each under its own hard timeout.
func New(log *zap.Logger) *Collectors {
	return &Collectors{log: log}
}

// runCommand executes name with args under ctx, returning stdout. Any
// non-zero exit, timeout, or spawn failure is reported to the caller, who
// is expected to treat it as "no data" per spec §4.1's failure policy.
func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	return string(out), err
}

// ListProcesses enumerates running processes (spec §4.1). It never blocks
// past processListTimeout.
func (c *Collectors) ListProcesses(ctx context.Context) []domain.RawProcess {
	ctx, cancel := context.WithTimeout(ctx, processListTimeout)
	defer cancel()

	out, err := runCommand(ctx, "ps", "-axo", "pid=,ppid=,user=,pcpu=,pmem=,comm=,command=")
	if err != nil {
		c.log.Warn("listProcesses collector failed", zap.Error(err))
		return nil
	}
	return parsePS(out)
}

// ConnectionSummaries builds a per-pid connection aggregate from a socket
// listing (spec §4.1). Timeout: 8s.
func (c *Collectors) ConnectionSummaries(ctx context.Context) map[int]domain.ConnectionSummary {
	ctx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	out, err := runCommand(ctx, "lsof", "-i", "-n", "-P")
	if err != nil {
		c.log.Warn("getConnectionSummary collector failed", zap.Error(err))
		return map[int]domain.ConnectionSummary{}
	}
	return parseLsof(out)
}

// LaunchDaemons maps pid to the launchd service label managing it (spec
// §4.1). Timeout: 5s.
func (c *Collectors) LaunchDaemons(ctx context.Context) map[int]string {
	ctx, cancel := context.WithTimeout(ctx, launchDaemonTimeout)
	defer cancel()

	out, err := runCommand(ctx, "launchctl", "list")
	if err != nil {
		c.log.Warn("collectLaunchDaemons collector failed", zap.Error(err))
		return map[int]string{}
	}
	return parseLaunchctl(out)
}

// Signature extracts the code-signing state of execPath (spec §4.1): a
// validity check followed by a detail extraction, each under its own 3s
// timeout. Returns Signed=false when codesign reports the binary is not
// signed, and nil when the path is unreadable or both invocations fail
// outright.
func (c *Collectors) Signature(ctx context.Context, execPath string) *domain.Signature {
	validCtx, cancel := context.WithTimeout(ctx, signatureTimeout)
	defer cancel()
	validOut, validErr := runCommand(validCtx, "codesign", "-dv", "--verbose=2", execPath)

	if validErr != nil && isNotSigned(validErr, validOut) {
		return &domain.Signature{Signed: false}
	}

	detailCtx, cancel2 := context.WithTimeout(ctx, signatureTimeout)
	defer cancel2()
	detailOut, detailErr := runCommand(detailCtx, "codesign", "-dvvv", execPath)
	if detailErr != nil && validErr != nil {
		c.log.Debug("getSignature collector failed", zap.String("path", execPath), zap.Error(detailErr))
		return nil
	}

	sig := parseCodesignDetail(validOut + "\n" + detailOut)
	sig.Signed = true
	return sig
}

// isNotSigned reports whether a codesign failure means "this binary carries
// no signature at all" as opposed to a transient/spawn error.
func isNotSigned(err error, output string) bool {
	combined := output
	if ee, ok := err.(*exec.ExitError); ok {
		combined += string(ee.Stderr)
	}
	return containsFold(combined, "not signed")
}
