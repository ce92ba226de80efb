// Package procfile provides a process handle that survives PID reuse.
//
// A handle captures the pid together with the start time of the process
// (field 22 of /proc/<pid>/stat) and, when the kernel supports it, a pidfd.
// A pid that is later recycled by an unrelated process never compares as
// the same process.
package procfile

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"time"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

const (
	// retries when the process is replaced while the pidfd is being opened
	openRetry = 3

	// poll interval of Wait when pidfd is not available
	pollInterval = 100 * time.Millisecond
)

// ProcFile is a reference to one specific process instance
type ProcFile struct {
	pid       int
	pidfd     int
	startTime uint64
}

// FromPid returns a handle of the running process pid. It returns nil
// without error if there is no such process.
func FromPid(pid int) (*ProcFile, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("procfile: invalid pid %d", pid)
	}
	for i := 0; i < openRetry; i++ {
		st, ok, err := readStartTime(pid)
		if err != nil || !ok {
			return nil, err
		}

		fd, err := unix.PidfdOpen(pid, 0)
		switch {
		case err == unix.ESRCH:
			return nil, nil
		case err == unix.ENOSYS:
			fd = -1
		case err != nil:
			return nil, fmt.Errorf("procfile: pidfd_open(%d): %v", pid, err)
		}

		// the pidfd refers to the process seen by the second read
		st2, ok, err := readStartTime(pid)
		if err != nil || !ok {
			closeFd(fd)
			return nil, err
		}
		if st != st2 {
			closeFd(fd)
			continue
		}
		return &ProcFile{pid: pid, pidfd: fd, startTime: st}, nil
	}
	return nil, fmt.Errorf("procfile: pid %d keeps being reused", pid)
}

// Pid returns the process id
func (p *ProcFile) Pid() int {
	return p.pid
}

// StartTime returns the start time of the process in clock ticks after boot
func (p *ProcFile) StartTime() uint64 {
	return p.startTime
}

// Equal reports whether both handles refer to the same process instance
func (p *ProcFile) Equal(o *ProcFile) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.pid == o.pid && p.startTime == o.startTime
}

// IsAlive reports whether the process captured by the handle still exists
func (p *ProcFile) IsAlive() bool {
	if p.pidfd >= 0 {
		err := unix.PidfdSendSignal(p.pidfd, 0, nil, 0)
		return err == nil || err == unix.EPERM
	}
	st, ok, err := readStartTime(p.pid)
	return err == nil && ok && st == p.startTime
}

// Signal delivers sig to the process. It returns syscall.ESRCH if the
// process no longer exists.
func (p *ProcFile) Signal(sig syscall.Signal) error {
	if p.pidfd >= 0 {
		return unix.PidfdSendSignal(p.pidfd, sig, nil, 0)
	}
	if !p.IsAlive() {
		return syscall.ESRCH
	}
	return unix.Kill(p.pid, sig)
}

// Wait blocks until the process exits. The process is not reaped.
func (p *ProcFile) Wait() error {
	if p.pidfd < 0 {
		for p.IsAlive() {
			time.Sleep(pollInterval)
		}
		return nil
	}
	fds := []unix.PollFd{{Fd: int32(p.pidfd), Events: unix.POLLIN}}
	for {
		_, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("procfile: poll pidfd of %d: %v", p.pid, err)
		}
		if fds[0].Revents != 0 {
			return nil
		}
	}
}

// Close releases the pidfd
func (p *ProcFile) Close() error {
	if p.pidfd < 0 {
		return nil
	}
	err := unix.Close(p.pidfd)
	p.pidfd = -1
	return err
}

// readStartTime returns false if the process does not exist
func readStartTime(pid int) (uint64, bool, error) {
	proc, err := procfs.NewProc(pid)
	if isNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("procfile: open /proc/%d: %v", pid, err)
	}
	stat, err := proc.Stat()
	if isNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("procfile: read /proc/%d/stat: %v", pid, err)
	}
	return stat.Starttime, true, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ESRCH)
}

func closeFd(fd int) {
	if fd >= 0 {
		unix.Close(fd)
	}
}
