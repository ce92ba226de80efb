package forkexec

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"unsafe" // required for go:linkname.

	"github.com/distrod-go/distrod/pkg/mount"
	"golang.org/x/sys/unix"
)

//go:linkname beforeFork syscall.runtime_BeforeFork
func beforeFork()

//go:linkname afterFork syscall.runtime_AfterFork
func afterFork()

//go:linkname afterForkInChild syscall.runtime_AfterForkInChild
func afterForkInChild()

// Start forks the supervisor and the target and returns once the target
// has called execve. Any failure before execve is returned as error and
// no Waiter is created.
func (r *Runner) Start() (*Waiter, error) {
	if len(r.Args) == 0 {
		return nil, fmt.Errorf("forkexec: no argument provided")
	}
	if len(r.Namespaces) > 0 && r.CloneFlags != 0 {
		return nil, fmt.Errorf("forkexec: namespaces and clone flags are exclusive")
	}
	path := r.Path
	if path == "" {
		path = r.Args[0]
	}
	argv0, argv, env, err := prepareExec(path, r.Args, r.Env)
	if err != nil {
		return nil, err
	}

	// prepare work dir
	workdir, err := syscallStringFromString(r.WorkDir)
	if err != nil {
		return nil, err
	}

	// prepare pivot_root param
	pivotRoot, err := syscallStringFromString(r.PivotRoot)
	if err != nil {
		return nil, err
	}
	var oldRoot []*byte
	if pivotRoot != nil {
		// relative to the new root, resolved after chdir(PivotRoot)
		o := strings.Trim(r.OldRoot, "/")
		if o == "" {
			o = DefaultOldRoot
		}
		if oldRoot, err = mount.ArrayPtrFromStrings(mount.PathPrefix(o)); err != nil {
			return nil, err
		}
	}

	// execPipe reports ChildError from any of the children, EOF means the
	// target called execve successfully (close_on_exec)
	// statusPipe carries the target pid and wait status from the supervisor
	// p[0] is used by parent and p[1] is used by child
	var execPipe, statusPipe [2]int
	if err := unix.Pipe2(execPipe[:], unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	if err := unix.Pipe2(statusPipe[:], unix.O_CLOEXEC); err != nil {
		unix.Close(execPipe[0])
		unix.Close(execPipe[1])
		return nil, err
	}

	// fork in child
	pid, err1 := forkAndExecInChild(r, argv0, argv, env, workdir, pivotRoot, oldRoot, execPipe, statusPipe)

	// restore all signals
	afterFork()
	syscall.ForkLock.Unlock()

	return syncWithChild(execPipe, statusPipe, int(pid), err1)
}

func syncWithChild(execPipe, statusPipe [2]int, pid int, err1 syscall.Errno) (*Waiter, error) {
	unix.Close(execPipe[1])
	unix.Close(statusPipe[1])

	// clone syscall failed
	if err1 != 0 {
		unix.Close(execPipe[0])
		unix.Close(statusPipe[0])
		return nil, ChildError{Err: err1, Location: LocClone}
	}

	// the first child exits as soon as the supervisor is forked
	waitChild(pid)

	err := readChildError(execPipe[0])
	unix.Close(execPipe[0])
	if err != nil {
		unix.Close(statusPipe[0])
		return nil, err
	}

	var tpid int32
	buf := (*[unsafe.Sizeof(tpid)]byte)(unsafe.Pointer(&tpid))[:]
	if err := readFull(statusPipe[0], buf); err != nil {
		unix.Close(statusPipe[0])
		return nil, fmt.Errorf("forkexec: supervisor did not report pid: %v", err)
	}
	return newWaiter(int(tpid), os.NewFile(uintptr(statusPipe[0]), "supervisor-status")), nil
}

// readChildError reads the exec pipe until EOF, returns ChildError if any
func readChildError(fd int) error {
	var childErr ChildError
	buf := (*[unsafe.Sizeof(childErr)]byte)(unsafe.Pointer(&childErr))[:]
	n, err := readRetry(fd, buf)
	switch {
	case err != nil:
		return err
	case n == 0:
		return nil
	case n == len(buf):
		return childErr
	default:
		return syscall.EPIPE
	}
}

func readFull(fd int, buf []byte) error {
	for len(buf) > 0 {
		n, err := readRetry(fd, buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.New("unexpected EOF")
		}
		buf = buf[n:]
	}
	return nil
}

func readRetry(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	for err == unix.EINTR {
		n, err = unix.Read(fd, buf)
	}
	return n, err
}

func waitChild(pid int) {
	var wstatus syscall.WaitStatus
	_, err := syscall.Wait4(pid, &wstatus, 0, nil)
	for err == syscall.EINTR {
		_, err = syscall.Wait4(pid, &wstatus, 0, nil)
	}
}
