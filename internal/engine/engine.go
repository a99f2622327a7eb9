// Package engine is the scan orchestrator of spec §4.5: one pass over the
// process table per interval, fanning collectors out, enriching and
// classifying each process, then committing the result to the store and
// re-arming itself for the next interval.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/bobbyrathoree/macscope/internal/audit"
	"github.com/bobbyrathoree/macscope/internal/classify"
	"github.com/bobbyrathoree/macscope/internal/collectors"
	"github.com/bobbyrathoree/macscope/internal/domain"
	"github.com/bobbyrathoree/macscope/internal/hostfacts"
	"github.com/bobbyrathoree/macscope/internal/sigcache"
	"github.com/bobbyrathoree/macscope/internal/store"
	"github.com/bobbyrathoree/macscope/internal/workerpool"
)

// maxProcesses bounds how many processes a single scan considers (spec §5:
// "at most 200 processes per scan"). The first 200 in the collector's own
// order are kept, not the most suspicious 200, so a process past that
// position is never classified.
const maxProcesses = 200

// enrichConcurrency is the batch width for per-process enrichment (spec
// §4.5 step 5): bounded by a weighted semaphore, not an unbounded fan-out.
const enrichConcurrency = 10

// collectBudget is the hard ceiling on the collector fan-out phase (spec
// §4.5 step 1).
const collectBudget = 15 * time.Second

// highOutboundThreshold is the per-process outbound-connection count above
// which a signature lookup is requested at all (spec §4.5 step 4): below it,
// classification proceeds with Codesign left nil rather than paying for a
// codesign exec on every process with an exec path.
const highOutboundThreshold = 50

// tightSignatureTimeout is the wrapper timeout applied to a signature lookup
// once highOutboundThreshold is crossed for that process.
const tightSignatureTimeout = 2 * time.Second

// Collectors is the subset of collectors.Collectors the engine depends on.
type Collectors interface {
	ListProcesses(ctx context.Context) []domain.RawProcess
	ConnectionSummaries(ctx context.Context) map[int]domain.ConnectionSummary
	LaunchDaemons(ctx context.Context) map[int]string
	Signature(ctx context.Context, execPath string) *domain.Signature
}

var _ Collectors = (*collectors.Collectors)(nil)

// Engine wires one scan pass together. Construct with New and drive it with
// Run, which self-re-arms until ctx is cancelled.
type Engine struct {
	collectors Collectors
	sigCache   *sigcache.Cache
	signer     workerpool.Signer
	store      *store.Store
	facts      hostfacts.Provider
	audit      *audit.Log
	log        *zap.Logger

	mu            sync.Mutex
	scannerCache  map[int]domain.ScannerCacheEntry
	lastInterval  time.Duration
}

// New builds an Engine from its collaborators. signer is typically a
// *workerpool.Pool; callers may also pass a workerpool.InlineFallback.
func New(c Collectors, sc *sigcache.Cache, signer workerpool.Signer, st *store.Store, facts hostfacts.Provider, al *audit.Log, log *zap.Logger) *Engine {
	return &Engine{
		collectors:   c,
		sigCache:     sc,
		signer:       signer,
		store:        st,
		facts:        facts,
		audit:        al,
		log:          log,
		scannerCache: make(map[int]domain.ScannerCacheEntry),
		lastInterval: 10 * time.Second,
	}
}

// Run executes ScanOnce on a self-re-arming loop: each pass's adaptive
// interval decides when the next one fires, until ctx is cancelled (spec
// §4.5 step 9's "adaptive rescheduling" and §9's self-re-arming timer note).
func (e *Engine) Run(ctx context.Context) {
	for {
		interval := e.ScanOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// ScanOnce performs one full collect -> enrich -> classify -> commit pass
// and returns how long to wait before the next one (spec §4.5 steps 1-9).
func (e *Engine) ScanOnce(ctx context.Context) time.Duration {
	start := time.Now()

	raw, conns, launchd := e.collect(ctx)

	if len(raw) > maxProcesses {
		e.log.Warn("scan: truncating process list", zap.Int("observed", len(raw)), zap.Int("cap", maxProcesses))
		raw = raw[:maxProcesses]
	}

	byPID := make(map[int]domain.RawProcess, len(raw))
	for _, p := range raw {
		byPID[p.PID] = p
	}

	enriched := e.enrich(ctx, raw, byPID, conns, launchd)

	owner := e.facts.ProcessOwner()
	for i := range enriched {
		e.classifyOne(&enriched[i], owner)
	}

	e.pruneScannerCache(enriched)

	// Stable-sort descending by level (CRITICAL first) then descending by
	// cpu before committing (spec §4.5 step 6).
	sort.SliceStable(enriched, func(i, j int) bool {
		if enriched[i].Level != enriched[j].Level {
			return enriched[i].Level > enriched[j].Level
		}
		return enriched[i].CPU > enriched[j].CPU
	})

	e.store.Commit(enriched)

	for _, p := range enriched {
		if p.Level >= domain.LevelHigh {
			e.audit.Record(p)
		}
	}

	interval := e.nextInterval(enriched)
	e.log.Debug("scan complete",
		zap.Int("processes", len(enriched)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Duration("next_interval", interval))
	return interval
}

// collect runs the three listing collectors concurrently under a single
// budget (spec §4.5 step 1); a slow or failing collector yields an empty
// result for its own data rather than failing the whole scan.
func (e *Engine) collect(ctx context.Context) ([]domain.RawProcess, map[int]domain.ConnectionSummary, map[int]string) {
	ctx, cancel := context.WithTimeout(ctx, collectBudget)
	defer cancel()

	var raw []domain.RawProcess
	var conns map[int]domain.ConnectionSummary
	var launchd map[int]string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw = e.collectors.ListProcesses(gctx)
		return nil
	})
	g.Go(func() error {
		conns = e.collectors.ConnectionSummaries(gctx)
		return nil
	})
	g.Go(func() error {
		launchd = e.collectors.LaunchDaemons(gctx)
		return nil
	})
	_ = g.Wait()

	if conns == nil {
		conns = map[int]domain.ConnectionSummary{}
	}
	if launchd == nil {
		launchd = map[int]string{}
	}
	return raw, conns, launchd
}

// enrich joins each raw process with its connection summary, launchd label,
// parent name and code signature, enrichConcurrency at a time.
func (e *Engine) enrich(ctx context.Context, raw []domain.RawProcess, byPID map[int]domain.RawProcess, conns map[int]domain.ConnectionSummary, launchd map[int]string) []domain.Process {
	out := make([]domain.Process, len(raw))
	sem := semaphore.NewWeighted(enrichConcurrency)
	var wg sync.WaitGroup

	for i, rp := range raw {
		i, rp := i, rp
		wg.Add(1)
		_ = sem.Acquire(ctx, 1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			out[i] = e.enrichOne(ctx, rp, byPID, conns, launchd)
		}()
	}
	wg.Wait()
	return out
}

func (e *Engine) enrichOne(ctx context.Context, rp domain.RawProcess, byPID map[int]domain.RawProcess, conns map[int]domain.ConnectionSummary, launchd map[int]string) domain.Process {
	p := domain.Process{
		PID: rp.PID, PPID: rp.PPID, HasPPID: rp.HasPPID,
		Name: rp.Name, Cmd: rp.Cmd, User: rp.User,
		ExecPath: rp.ExecPath, HasExec: rp.HasExec,
		CPU: rp.CPU, Mem: rp.Mem,
	}

	if rp.HasPPID {
		if parent, ok := byPID[rp.PPID]; ok {
			p.ParentName = parent.Name
			p.HasParent = true
		}
	}
	if c, ok := conns[rp.PID]; ok {
		p.Conn = c
	}
	if label, ok := launchd[rp.PID]; ok {
		p.Launchd = label
		p.HasLaunchd = true
	}

	// Selective: only the noisy processes pay for a signature lookup (spec
	// §4.5 step 4, §2 "Worker-pool signature lookup (selective)"). A process
	// below the threshold is classified with Codesign left nil.
	if p.HasExec && p.Conn.Outbound > highOutboundThreshold {
		p.Codesign = e.signatureOf(ctx, p.ExecPath)
	}

	return p
}

// signatureOf consults the signature cache first (spec §4.2) and only
// dispatches to the worker pool on a miss, inserting the result back into
// the cache so the next scan of an unchanged binary is free.
func (e *Engine) signatureOf(ctx context.Context, execPath string) *domain.Signature {
	if cached, ok := e.sigCache.Lookup(execPath); ok {
		return cached
	}

	sigCtx, cancel := context.WithTimeout(ctx, tightSignatureTimeout)
	defer cancel()

	sig, err := e.signer.SignatureOf(sigCtx, execPath)
	if err != nil {
		e.log.Debug("scan: signature lookup failed", zap.String("path", execPath), zap.Error(err))
		return nil
	}
	if sig != nil {
		e.sigCache.Insert(execPath, sig)
	}
	return sig
}

// classifyOne runs the rule engine and applies the scanner-cache shortcut:
// an unchanged fingerprint reuses the prior classification verbatim,
// keeping results stable and cheap across otherwise-identical scans.
func (e *Engine) classifyOne(p *domain.Process, owner string) {
	fp := fingerprintOf(*p)

	e.mu.Lock()
	cached, ok := e.scannerCache[p.PID]
	e.mu.Unlock()

	if ok && cached.Fingerprint == fp {
		p.Level = cached.Level
		p.Reasons = cached.Reasons
		return
	}

	result := classify.Classify(classify.Input{
		PID: p.PID, Name: p.Name, HasName: p.Name != "", Cmd: p.Cmd,
		ExecPath: p.ExecPath, HasExec: p.HasExec,
		User: p.User, ProcessOwner: owner,
		Outbound: p.Conn.Outbound, Listen: p.Conn.Listen, Remotes: p.Conn.Remotes,
		Launchd: p.Launchd, HasLaunchd: p.HasLaunchd,
		ParentName: p.ParentName, HasParent: p.HasParent,
		Sig: p.Codesign,
	})
	p.Level = result.Level
	p.Reasons = result.Reasons

	e.mu.Lock()
	e.scannerCache[p.PID] = domain.ScannerCacheEntry{Fingerprint: fp, Level: result.Level, Reasons: result.Reasons}
	e.mu.Unlock()
}

// fingerprintOf is the subset of a process's fields whose change forces a
// fresh classify: name, cmd, exec path, connection counts, signature state
// and parent. User, launchd label and remote endpoints are not part of it,
// so a change to only those reuses the cached result.
func fingerprintOf(p domain.Process) domain.Fingerprint {
	signed, valid, team := false, false, ""
	if p.Codesign != nil {
		signed, valid, team = p.Codesign.Signed, p.Codesign.Valid, p.Codesign.TeamIdentifier
	}
	return domain.Fingerprint(fmt.Sprintf("%s|%s|%s|%d|%d|%t|%t|%s|%s|%t",
		p.Name, p.Cmd, p.ExecPath, p.Conn.Outbound, p.Conn.Listen, signed, valid, team, p.ParentName, p.HasParent))
}

// pruneScannerCache drops entries for processes that no longer exist, so
// the cache doesn't grow unbounded across the life of a long-running scan
// loop (pids are reused by the OS and a stale entry would misclassify).
func (e *Engine) pruneScannerCache(current []domain.Process) {
	alive := make(map[int]bool, len(current))
	for _, p := range current {
		alive[p.PID] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for pid := range e.scannerCache {
		if !alive[pid] {
			delete(e.scannerCache, pid)
		}
	}
}

// nextInterval computes the adaptive rescan delay (spec §4.5 step 9): 5s if
// any process is CRITICAL, 7s if any is HIGH, 15s if the table is small and
// nothing is MED-or-above, else 10s — always clamped to [5s,15s].
func (e *Engine) nextInterval(procs []domain.Process) time.Duration {
	hasCritical, hasHigh, hasMedOrAbove := false, false, false
	for _, p := range procs {
		switch {
		case p.Level >= domain.LevelCritical:
			hasCritical = true
		case p.Level >= domain.LevelHigh:
			hasHigh = true
		}
		if p.Level >= domain.LevelMed {
			hasMedOrAbove = true
		}
	}

	var interval time.Duration
	switch {
	case hasCritical:
		interval = 5 * time.Second
	case hasHigh:
		interval = 7 * time.Second
	case len(procs) < 100 && !hasMedOrAbove:
		interval = 15 * time.Second
	default:
		interval = 10 * time.Second
	}

	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	if interval > 15*time.Second {
		interval = 15 * time.Second
	}

	e.mu.Lock()
	e.lastInterval = interval
	e.mu.Unlock()
	return interval
}

// LastInterval reports the most recently computed adaptive interval, for
// /api/stats.
func (e *Engine) LastInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastInterval
}
