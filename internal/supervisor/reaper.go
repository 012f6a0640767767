// ABOUTME: Best-effort cleanup of gateway processes the supervisor does not track
// ABOUTME: Lists the process table with go-ps and sends SIGTERM to name matches

package supervisor

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"syscall"

	ps "github.com/mitchellh/go-ps"
)

// Reaper terminates untracked gateway processes, for example ones launched
// directly by the onboarding CLI. It returns the pids it signalled.
type Reaper interface {
	Reap(pattern *regexp.Regexp, selfPid int) ([]int, error)
}

// PSReaper is the process-table Reaper used outside tests.
type PSReaper struct{}

// Reap sends SIGTERM to every process whose executable name matches pattern,
// except selfPid. Per-process failures are collected, not fatal.
func (PSReaper) Reap(pattern *regexp.Regexp, selfPid int) ([]int, error) {
	procs, err := ps.Processes()
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	var (
		reaped []int
		errs   []error
	)
	for _, p := range procs {
		if p.Pid() == selfPid || !pattern.MatchString(p.Executable()) {
			continue
		}
		proc, err := os.FindProcess(p.Pid())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			if !errors.Is(err, os.ErrProcessDone) {
				errs = append(errs, fmt.Errorf("signalling %d (%s): %w", p.Pid(), p.Executable(), err))
			}
			continue
		}
		reaped = append(reaped, p.Pid())
	}
	return reaped, errors.Join(errs...)
}
