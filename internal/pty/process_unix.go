//go:build !windows

package pty

import (
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// signalProcessTree signals the session started for the pty (its process
// group) and then every descendant found in the process table, which
// catches children that moved to their own group.
func signalProcessTree(pid int, sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return syscall.EINVAL
	}
	descendants, _ := descendantPIDs(pid)
	groupErr := signalProcessGroup(pid, s)
	for _, child := range descendants {
		_ = syscall.Kill(child, s)
	}
	if groupErr != nil {
		return syscall.Kill(pid, s)
	}
	return nil
}

func signalProcessGroup(pid int, sig syscall.Signal) error {
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		return err
	}
	if pgid <= 0 {
		return syscall.ESRCH
	}
	return syscall.Kill(-pgid, sig)
}

func descendantPIDs(root int) ([]int, error) {
	out, err := exec.Command("ps", "-axo", "pid=,ppid=").Output()
	if err != nil {
		return nil, err
	}
	return parseDescendants(string(out), root), nil
}

func parseDescendants(table string, root int) []int {
	children := make(map[int][]int)
	for _, line := range strings.Split(table, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		ppid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		children[ppid] = append(children[ppid], pid)
	}

	var descendants []int
	stack := []int{root}
	seen := map[int]bool{root: true}
	for len(stack) > 0 {
		pid := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range children[pid] {
			if seen[child] {
				continue
			}
			seen[child] = true
			descendants = append(descendants, child)
			stack = append(stack, child)
		}
	}
	return descendants
}
