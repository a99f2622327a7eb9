// Package hostfacts provides the injected host-environment record spec §9
// asks for, so the classifier and stats endpoint never call os.* directly
// and tests can simulate root/non-root and arbitrary usernames.
package hostfacts

import (
	"os"
	"os/user"
	"runtime"
	"time"
)

// Facts describes the host the engine is running on.
type Facts struct {
	Platform string
	Arch     string
	Hostname string
	// Uptime is the time since the Provider was created, i.e. the
	// monitor's own uptime, not the time since the host booted.
	Uptime   time.Duration
	TotalMem uint64
	FreeMem  uint64
	CPUCount int
	IsRoot   bool
}

// Provider supplies Facts and the identity of the process owner, so the
// classifier's "different-user" rule (spec §4.4 rule 3) never shells out.
type Provider interface {
	Facts() Facts
	ProcessOwner() string
}

// osProvider is the real, system-calling implementation used in production.
type osProvider struct {
	bootTime time.Time
}

// NewOSProvider returns a Provider backed by the real operating system.
func NewOSProvider() Provider {
	return &osProvider{bootTime: time.Now()}
}

func (p *osProvider) Facts() Facts {
	hostname, _ := os.Hostname()

	total, free := memInfo()

	return Facts{
		Platform: runtime.GOOS,
		Arch:     runtime.GOARCH,
		Hostname: hostname,
		Uptime:   time.Since(p.bootTime),
		TotalMem: total,
		FreeMem:  free,
		CPUCount: runtime.NumCPU(),
		IsRoot:   os.Geteuid() == 0,
	}
}

func (p *osProvider) ProcessOwner() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Username
}

// StaticProvider is a fixed Provider for tests, per spec §9's guidance
// to avoid touching real system calls in tests.
type StaticProvider struct {
	F     Facts
	Owner string
}

func (s StaticProvider) Facts() Facts        { return s.F }
func (s StaticProvider) ProcessOwner() string { return s.Owner }
