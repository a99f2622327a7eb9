//go:build darwin

package hostfacts

import (
	"bufio"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// vmStatTimeout bounds the vm_stat shell-out the same way collectors bounds
// every subprocess it runs (spec §4.1's per-collector hard timeout).
const vmStatTimeout = 3 * time.Second

// memInfo reports total physical memory via the hw.memsize sysctl and an
// approximation of free memory from vm_stat's free + inactive page counts,
// both best-effort per spec §1's Non-goal on exact resource percentages.
func memInfo() (total, free uint64) {
	total, _ = unix.SysctlUint64("hw.memsize")

	pageSize, err := unix.SysctlUint32("hw.pagesize")
	if err != nil || pageSize == 0 {
		pageSize = 4096
	}

	ctx, cancel := context.WithTimeout(context.Background(), vmStatTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "vm_stat").Output()
	if err != nil {
		return total, 0
	}

	freePages := parseVMStatFreePages(string(out))
	free = freePages * uint64(pageSize)
	return total, free
}

// parseVMStatFreePages sums the "Pages free" and "Pages inactive" counters
// out of vm_stat's report, which is the BSD convention for memory that can
// be reclaimed without paging (the same definition Activity Monitor uses
// for its green "free" sliver plus reclaimable inactive pages).
func parseVMStatFreePages(report string) uint64 {
	var total uint64
	scanner := bufio.NewScanner(strings.NewReader(report))
	for scanner.Scan() {
		line := scanner.Text()
		for _, prefix := range []string{"Pages free:", "Pages inactive:"} {
			if !strings.HasPrefix(line, prefix) {
				continue
			}
			field := strings.TrimSuffix(strings.TrimSpace(strings.TrimPrefix(line, prefix)), ".")
			n, err := strconv.ParseUint(field, 10, 64)
			if err != nil {
				continue
			}
			total += n
		}
	}
	return total
}
