// Package store holds the latest scan's process snapshot and notifies
// subscribers of what changed, without ever blocking a reader behind a
// writer or a slow subscriber behind a fan-out (spec §4.5 step 9, §5).
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bobbyrathoree/macscope/internal/domain"
)

// Snapshot is one committed, immutable view of the process table. Readers
// always see a complete, self-consistent snapshot — they never observe a
// scan half-written.
type Snapshot struct {
	Processes []domain.Process
	Digest    string
	At        time.Time
}

// Store publishes snapshots via an atomic pointer so Snapshot() never takes
// a lock, and wakes subscribers on buffered, per-subscriber signal channels
// so one slow consumer cannot stall a commit (spec §5's "push fan-out must
// not hold the write path hostage" design goal). A wake carries no payload:
// each subscriber's own goroutine reads the live Snapshot and diffs it
// against the copy it last sent, per spec §9's "subscribers snapshot on
// wake and compute deltas" against their own lastSent. That makes a dropped
// or coalesced wake harmless — the next one still diffs against the true
// last-observed state, so no subscriber can desynchronize.
type Store struct {
	current atomic.Pointer[Snapshot]

	mu          sync.Mutex
	subscribers map[string]chan struct{}
}

// New returns a Store with an empty initial snapshot.
func New() *Store {
	s := &Store{subscribers: make(map[string]chan struct{})}
	s.current.Store(&Snapshot{Processes: []domain.Process{}, Digest: digestOf(nil), At: time.Time{}})
	return s
}

// Snapshot returns the most recently committed snapshot. Safe for
// concurrent use with Commit; never blocks.
func (s *Store) Snapshot() Snapshot {
	return *s.current.Load()
}

// subscriberBuffer is how many pending wakes a slow subscriber may
// accumulate before Commit starts dropping them (spec §4.5's fan-out must
// not block on a stalled consumer). A single buffered slot is enough: a
// wake only means "go re-read Snapshot()", so coalescing extra wakes loses
// nothing.
const subscriberBuffer = 1

// Subscribe registers a new wake channel under id, replacing any existing
// subscription with the same id.
func (s *Store) Subscribe(id string) <-chan struct{} {
	ch := make(chan struct{}, subscriberBuffer)
	s.mu.Lock()
	s.subscribers[id] = ch
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes id's wake channel.
func (s *Store) Unsubscribe(id string) {
	s.mu.Lock()
	ch, ok := s.subscribers[id]
	delete(s.subscribers, id)
	s.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Commit stores procs as the new current snapshot and returns the delta
// against the previous one (used by callers that only need the store's own
// before/after comparison, such as tests), then
// wakes every subscriber without holding s.mu for the send (spec §4.5 step
// 9: take a copy of the subscriber set under lock, then iterate outside
// it). procs is taken as already ordered by the caller (spec §4.5 step 6's
// level/cpu sort) — the store does not re-sort it.
//
// If the freshly computed stability digest matches the previous snapshot's,
// nothing observable changed and Commit is a no-op: the snapshot is not
// replaced and no subscriber is woken (spec §4.5's "if unchanged from the
// prior digest, no notification").
func (s *Store) Commit(procs []domain.Process) domain.Delta {
	ordered := make([]domain.Process, len(procs))
	copy(ordered, procs)

	prev := s.current.Load()
	digest := digestOf(ordered)
	if digest == prev.Digest {
		return domain.Delta{}
	}

	delta := Diff(prev.Processes, ordered)

	next := &Snapshot{Processes: ordered, Digest: digest, At: time.Now()}
	s.current.Store(next)

	s.mu.Lock()
	targets := make([]chan struct{}, 0, len(s.subscribers))
	for _, ch := range s.subscribers {
		targets = append(targets, ch)
	}
	s.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- struct{}{}:
		default:
			// subscriber already has a pending wake queued; it will read
			// the latest Snapshot when it gets to it.
		}
	}

	return delta
}

// Diff computes Added/Updated/Removed by PID. A process is Updated when it
// existed before and any field differs under structural comparison — this
// is a deliberate choice of field-by-field equality over re-serializing to
// JSON and comparing bytes, so formatting changes to the wire encoding
// never manufacture a spurious delta. Exported so each push subscriber can
// compute its own delta against its own lastSent (spec §9), rather than
// receiving one delta precomputed against the store's global previous
// snapshot.
func Diff(before, after []domain.Process) domain.Delta {
	beforeByPID := make(map[int]domain.Process, len(before))
	for _, p := range before {
		beforeByPID[p.PID] = p
	}
	afterByPID := make(map[int]domain.Process, len(after))
	for _, p := range after {
		afterByPID[p.PID] = p
	}

	var d domain.Delta
	for _, p := range after {
		old, existed := beforeByPID[p.PID]
		if !existed {
			d.Added = append(d.Added, p)
			continue
		}
		if !processesEqual(old, p) {
			d.Updated = append(d.Updated, p)
		}
	}
	for pid := range beforeByPID {
		if _, stillPresent := afterByPID[pid]; !stillPresent {
			d.Removed = append(d.Removed, pid)
		}
	}
	sort.Ints(d.Removed)
	return d
}

// processesEqual is the structural comparator: every field that a
// subscriber could observe over the wire must match for two records to be
// considered unchanged.
func processesEqual(a, b domain.Process) bool {
	if a.PID != b.PID || a.PPID != b.PPID || a.HasPPID != b.HasPPID ||
		a.Name != b.Name || a.Cmd != b.Cmd || a.User != b.User ||
		a.ExecPath != b.ExecPath || a.HasExec != b.HasExec ||
		a.CPU != b.CPU || a.Mem != b.Mem ||
		a.ParentName != b.ParentName || a.HasParent != b.HasParent ||
		a.Launchd != b.Launchd || a.HasLaunchd != b.HasLaunchd ||
		a.Level != b.Level {
		return false
	}
	if a.Conn.Outbound != b.Conn.Outbound || a.Conn.Listen != b.Conn.Listen {
		return false
	}
	if len(a.Conn.Remotes) != len(b.Conn.Remotes) {
		return false
	}
	for i := range a.Conn.Remotes {
		if a.Conn.Remotes[i] != b.Conn.Remotes[i] {
			return false
		}
	}
	if len(a.Reasons) != len(b.Reasons) {
		return false
	}
	for i := range a.Reasons {
		if a.Reasons[i] != b.Reasons[i] {
			return false
		}
	}
	return signaturesEqual(a.Codesign, b.Codesign)
}

func signaturesEqual(a, b *domain.Signature) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Signed != b.Signed || a.Valid != b.Valid ||
		a.TeamIdentifier != b.TeamIdentifier || a.HasTeam != b.HasTeam ||
		a.Notarized != b.Notarized || a.HasNotarized != b.HasNotarized ||
		a.Identifier != b.Identifier || a.HasIdentifier != b.HasIdentifier ||
		a.IsAppStore != b.IsAppStore {
		return false
	}
	if len(a.Authorities) != len(b.Authorities) {
		return false
	}
	for i := range a.Authorities {
		if a.Authorities[i] != b.Authorities[i] {
			return false
		}
	}
	return true
}

// digestOf computes the stability digest Commit uses to decide whether
// anything worth pushing changed: len | pid:round(cpu*10):level:
// (outbound+listen), joined across the process list in the caller's order
// (spec §4.5). Known bias: a change outside that tuple — a cpu move under
// 0.05, or a connection swapped for another so outbound+listen is the same
// — leaves the digest unchanged, so Commit treats that scan as a no-op.
func digestOf(procs []domain.Process) string {
	parts := make([]string, 0, len(procs)+1)
	parts = append(parts, fmt.Sprintf("%d", len(procs)))
	for _, p := range procs {
		parts = append(parts, fmt.Sprintf("%d:%d:%d:%d",
			p.PID, int(p.CPU*10+0.5), int(p.Level), p.Conn.Outbound+p.Conn.Listen))
	}
	return strings.Join(parts, "|")
}
