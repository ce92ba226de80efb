package forkexec

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"syscall"
)

// ExitStatus is the termination status of a target process
type ExitStatus struct {
	ExitCode int
	Signal   syscall.Signal
}

// Signaled reports whether the process was terminated by a signal
func (s ExitStatus) Signaled() bool {
	return s.Signal != 0
}

// Code returns the shell style exit code, 128 + signal for signaled process
func (s ExitStatus) Code() int {
	if s.Signaled() {
		return 128 + int(s.Signal)
	}
	return s.ExitCode
}

func (s ExitStatus) String() string {
	if s.Signaled() {
		return fmt.Sprintf("signal: %v", s.Signal)
	}
	return fmt.Sprintf("exit status %d", s.ExitCode)
}

// Waiter reports the termination of a target through its supervisor.
// The target is not a child of the calling process, so it is never
// reaped by the caller.
type Waiter struct {
	// Pid of the target in the pid namespace of the supervisor
	Pid int

	status *os.File
	done   chan struct{}
	result ExitStatus
	err    error
}

func newWaiter(pid int, status *os.File) *Waiter {
	w := &Waiter{
		Pid:    pid,
		status: status,
		done:   make(chan struct{}),
	}
	go w.reap()
	return w
}

func (w *Waiter) reap() {
	defer close(w.done)
	defer w.status.Close()

	var buf [4]byte
	if _, err := io.ReadFull(w.status, buf[:]); err != nil {
		w.err = fmt.Errorf("forkexec: supervisor exited without status: %v", err)
		return
	}
	ws := binary.NativeEndian.Uint32(buf[:])
	if ws == statusWaitFailed {
		w.err = fmt.Errorf("forkexec: supervisor failed to wait for pid %d", w.Pid)
		return
	}
	st := syscall.WaitStatus(ws)
	switch {
	case st.Exited():
		w.result = ExitStatus{ExitCode: st.ExitStatus()}
	case st.Signaled():
		w.result = ExitStatus{Signal: st.Signal()}
	default:
		w.err = fmt.Errorf("forkexec: unexpected wait status %#x", ws)
	}
}

// Done is closed when the target has terminated
func (w *Waiter) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the target terminates. It can be called multiple times
// and from multiple goroutines.
func (w *Waiter) Wait() (ExitStatus, error) {
	<-w.done
	return w.result, w.err
}
