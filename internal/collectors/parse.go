package collectors

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/bobbyrathoree/macscope/internal/domain"
)

// parsePS parses `ps -axo pid=,ppid=,user=,pcpu=,pmem=,comm=,command=`
// output into RawProcess records. Malformed lines are skipped rather than
// aborting the whole collector.
func parsePS(output string) []domain.RawProcess {
	var procs []domain.RawProcess

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}

		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		ppid, ppidErr := strconv.Atoi(fields[1])
		cpu, _ := strconv.ParseFloat(fields[3], 64)
		mem, _ := strconv.ParseFloat(fields[4], 64)

		// comm= is fields[5]; command= (the full cmdline) is everything
		// after, found by locating the comm token inside the raw line and
		// taking the remainder. ps repeats comm as the first token of the
		// full command, so the split point is the 6th field boundary.
		idx := nthFieldEnd(line, 5)
		comm := fields[5]
		cmd := comm
		if idx >= 0 && idx < len(line) {
			cmd = strings.TrimSpace(line[idx:])
		}
		if cmd == "" {
			cmd = comm
		}

		proc := domain.RawProcess{
			PID:  pid,
			Name: baseName(comm),
			Cmd:  cmd,
			User: fields[2],
			CPU:  cpu,
			Mem:  mem,
		}
		if ppidErr == nil {
			proc.PPID = ppid
			proc.HasPPID = true
		}
		if execPath, ok := deriveExecPath(cmd); ok {
			proc.ExecPath = execPath
			proc.HasExec = true
		}

		procs = append(procs, proc)
	}

	return procs
}

// nthFieldEnd returns the byte offset immediately after the nth
// (0-indexed) whitespace-delimited field in s, or -1 if s has fewer
// fields.
func nthFieldEnd(s string, n int) int {
	count := -1
	inField := false
	for i, r := range s {
		isSpace := r == ' ' || r == '\t'
		if !isSpace && !inField {
			inField = true
			count++
		} else if isSpace && inField {
			inField = false
			if count == n {
				return i
			}
		}
	}
	if inField && count == n {
		return len(s)
	}
	return -1
}

// baseName returns the last path component of p.
func baseName(p string) string {
	if idx := strings.LastIndex(p, "/"); idx >= 0 && idx+1 < len(p) {
		return p[idx+1:]
	}
	return p
}

// deriveExecPath tokenizes cmd, strips surrounding quotes, and keeps the
// first token only if it is an absolute path or ends with .app (spec §4.1).
func deriveExecPath(cmd string) (string, bool) {
	trimmed := strings.TrimSpace(cmd)
	if trimmed == "" {
		return "", false
	}

	first := trimmed
	if trimmed[0] == '"' || trimmed[0] == '\'' {
		quote := trimmed[0]
		if end := strings.IndexByte(trimmed[1:], quote); end >= 0 {
			first = trimmed[1 : end+1]
		}
	} else {
		fields := strings.Fields(trimmed)
		if len(fields) > 0 {
			first = fields[0]
		}
	}
	first = strings.Trim(first, `"'`)

	if strings.HasPrefix(first, "/") || strings.HasSuffix(first, ".app") {
		return first, true
	}
	return "", false
}

// parseLsof parses `lsof -i -n -P` output into per-pid connection
// summaries (spec §4.1). Rows whose NAME column contains "->" contribute
// an outbound connection with the remote recorded; rows marked LISTEN
// contribute a listening count; other rows with a port notation count as
// outbound without a remote sample.
func parseLsof(output string) map[int]domain.ConnectionSummary {
	result := make(map[int]domain.ConnectionSummary)

	scanner := bufio.NewScanner(strings.NewReader(output))
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			first = false
			if strings.HasPrefix(strings.ToUpper(line), "COMMAND") {
				continue
			}
		}
		fields := strings.Fields(line)
		if len(fields) < 9 {
			continue
		}

		pid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}

		name := fields[len(fields)-2]
		if strings.Contains(fields[len(fields)-1], ":") || strings.Contains(name, ":") {
			// NAME may or may not be split by a trailing TYPE column; use
			// the last two fields joined back together defensively.
			name = strings.Join(fields[8:], " ")
		}

		summary := result[pid]

		switch {
		case strings.Contains(name, "(LISTEN)"):
			summary.Listen++
		case strings.Contains(name, "->"):
			summary.Outbound++
			parts := strings.SplitN(name, "->", 2)
			if len(parts) == 2 {
				remote := strings.TrimSpace(strings.Fields(parts[1])[0])
				summary.AddRemote(remote)
			}
		case strings.Contains(name, ":"):
			summary.Outbound++
		}

		result[pid] = summary
	}

	return result
}

// parseLaunchctl parses `launchctl list` output into pid -> service label.
// Rows whose PID field is "-" or non-numeric are skipped (spec §4.1).
func parseLaunchctl(output string) map[int]string {
	result := make(map[int]string)

	scanner := bufio.NewScanner(strings.NewReader(output))
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			first = false
			if strings.HasPrefix(strings.ToUpper(line), "PID") {
				continue
			}
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}

		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}

		label := strings.Join(fields[2:], " ")
		result[pid] = label
	}

	return result
}

// parseCodesignDetail extracts team identifier, authorities, notarization,
// identifier, and App-Store indicator from combined codesign -dvvv output.
func parseCodesignDetail(output string) *domain.Signature {
	sig := &domain.Signature{Valid: true}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "TeamIdentifier="):
			team := strings.TrimPrefix(line, "TeamIdentifier=")
			if team != "" && team != "not set" {
				sig.TeamIdentifier = team
				sig.HasTeam = true
			}
		case strings.HasPrefix(line, "Authority="):
			sig.Authorities = append(sig.Authorities, strings.TrimPrefix(line, "Authority="))
		case strings.HasPrefix(line, "Identifier="):
			sig.Identifier = strings.TrimPrefix(line, "Identifier=")
			sig.HasIdentifier = true
		case strings.Contains(line, "flags=0x10000(runtime)") || containsFold(line, "notarized"):
			sig.Notarized = true
			sig.HasNotarized = true
		}
	}

	for _, auth := range sig.Authorities {
		if containsFold(auth, "mac app store") {
			sig.IsAppStore = true
		}
	}

	if containsFold(output, "invalid signature") || containsFold(output, "a sealed resource is missing") {
		sig.Valid = false
	}

	return sig
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
