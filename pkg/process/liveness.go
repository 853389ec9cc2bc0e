package process

import (
	"errors"
	"time"

	gops "github.com/shirou/gopsutil/v4/process"
)

// startTimeTolerance absorbs the difference between the OS process-table
// timestamp granularity and the wall clock captured at start.
const startTimeTolerance = 2 * time.Second

// IsRunning reports whether the process with the given identity is still
// alive. A live process whose creation time does not match startTime is a
// recycled PID and reported as not running.
func IsRunning(pid Pid, startTime time.Time) (bool, error) {
	proc, err := gops.NewProcess(int32(pid))
	if err != nil {
		if errors.Is(err, gops.ErrorProcessNotRunning) {
			return false, nil
		}
		return false, err
	}

	if startTime.IsZero() {
		return true, nil
	}

	createMs, err := proc.CreateTime()
	if err != nil {
		// Process exists but its creation time is unreadable; assume it is the
		// one we started.
		return true, nil
	}

	created := time.UnixMilli(createMs)
	diff := created.Sub(startTime)
	if diff < 0 {
		diff = -diff
	}
	return diff <= startTimeTolerance, nil
}
