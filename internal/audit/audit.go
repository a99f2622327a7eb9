// Package audit appends one JSON line per newly suspicious process to a
// durable log, independent of the in-memory store the UI reads from (spec
// §4.5 step 9b, §6). Write failures are logged and swallowed: a full disk
// must never stall the scan loop.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bobbyrathoree/macscope/internal/domain"
)

// DefaultPath is where the log is written when no override is configured.
const DefaultPath = ".procscope/suspicious-processes.log"

// connectionFields and codesignFields mirror the nested objects spec §6
// documents for an audit record.
type connectionFields struct {
	Outbound int      `json:"outbound"`
	Listen   int      `json:"listen"`
	Remotes  []string `json:"remotes"`
}

type codesignFields struct {
	Signed     bool   `json:"signed"`
	Valid      bool   `json:"valid"`
	TeamID     string `json:"team_id,omitempty"`
	Notarized  bool   `json:"notarized"`
}

// record is one JSONL line.
type record struct {
	Timestamp   time.Time        `json:"timestamp"`
	Level       string           `json:"level"`
	PID         int              `json:"pid"`
	PPID        int              `json:"ppid,omitempty"`
	Name        string           `json:"name"`
	User        string           `json:"user"`
	Cmd         string           `json:"cmd"`
	ExecPath    string           `json:"exec_path,omitempty"`
	Parent      string           `json:"parent,omitempty"`
	Reasons     []string         `json:"reasons"`
	Connections connectionFields `json:"connections"`
	Codesign    *codesignFields  `json:"codesign,omitempty"`
}

// killActionRecord is one JSONL line for a kill-endpoint invocation,
// separate from the suspicious-process records above: it is written once
// per call, never deduplicated, regardless of whether the signal send
// succeeded.
type killActionRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	PID       int       `json:"pid"`
	Succeeded bool      `json:"succeeded"`
	Error     string    `json:"error,omitempty"`
}

// maxRemotesLogged caps how many remote endpoints an audit line carries,
// per spec §6's "remotes (max 5)".
const maxRemotesLogged = 5

// Log is an append-only JSONL sink with a process-lifetime dedup table: the
// same pid|name|level combination is written at most once per run, so a
// process pinned at HIGH does not re-log every scan interval.
type Log struct {
	path string
	log  *zap.Logger

	mu   sync.Mutex
	seen map[string]bool
}

// Open prepares a Log writing to path (DefaultPath under the user's home
// directory when path is empty), creating parent directories as needed.
func Open(path string, log *zap.Logger) (*Log, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		path = filepath.Join(home, DefaultPath)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit: create log directory: %w", err)
	}
	return &Log{path: path, log: log, seen: make(map[string]bool)}, nil
}

func dedupKey(p domain.Process) string {
	return fmt.Sprintf("%d|%s|%s", p.PID, p.Name, p.Level.String())
}

// Record appends p to the log unless an identical pid|name|level has
// already been written this run. Failures are logged, never returned, per
// spec §7's "audit-log write failures never propagate."
func (l *Log) Record(p domain.Process) {
	key := dedupKey(p)

	l.mu.Lock()
	if l.seen[key] {
		l.mu.Unlock()
		return
	}
	l.seen[key] = true
	l.mu.Unlock()

	rec := record{
		Timestamp: time.Now().UTC(),
		Level:     p.Level.String(),
		PID:       p.PID,
		Name:      p.Name,
		User:      p.User,
		Cmd:       p.Cmd,
		Reasons:   p.Reasons,
		Connections: connectionFields{
			Outbound: p.Conn.Outbound,
			Listen:   p.Conn.Listen,
			Remotes:  capRemotes(p.Conn.Remotes),
		},
	}
	if p.HasPPID {
		rec.PPID = p.PPID
	}
	if p.HasExec {
		rec.ExecPath = p.ExecPath
	}
	if p.HasParent {
		rec.Parent = p.ParentName
	}
	if p.Codesign != nil {
		rec.Codesign = &codesignFields{
			Signed:    p.Codesign.Signed,
			Valid:     p.Codesign.Valid,
			TeamID:    p.Codesign.TeamIdentifier,
			Notarized: p.Codesign.Notarized,
		}
	}

	l.append(rec)
}

// RecordKillAction appends one line per kill-endpoint call regardless of
// outcome, so a dismissed kill attempt is as visible as a successful one.
func (l *Log) RecordKillAction(pid int, killErr error) {
	rec := killActionRecord{
		Timestamp: time.Now().UTC(),
		Action:    "kill",
		PID:       pid,
		Succeeded: killErr == nil,
	}
	if killErr != nil {
		rec.Error = killErr.Error()
	}

	line, err := json.Marshal(rec)
	if err != nil {
		l.log.Error("audit: marshal kill action", zap.Error(err))
		return
	}
	line = append(line, '\n')

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.log.Error("audit: open log", zap.String("path", l.path), zap.Error(err))
		return
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		l.log.Error("audit: write kill action", zap.Error(err))
	}
}

func capRemotes(remotes []string) []string {
	if len(remotes) <= maxRemotesLogged {
		return remotes
	}
	return remotes[:maxRemotesLogged]
}

func (l *Log) append(rec record) {
	line, err := json.Marshal(rec)
	if err != nil {
		l.log.Error("audit: marshal record", zap.Error(err))
		return
	}
	line = append(line, '\n')

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.log.Error("audit: open log", zap.String("path", l.path), zap.Error(err))
		return
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		l.log.Error("audit: write record", zap.Error(err))
	}
}
