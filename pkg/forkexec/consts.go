package forkexec

import (
	"golang.org/x/sys/unix"
)

// defines missing consts from syscall package
const (
	SECCOMP_SET_MODE_FILTER = 1

	// UnshareFlags are the namespaces a target can be cloned into
	UnshareFlags = unix.CLONE_NEWIPC | unix.CLONE_NEWNET | unix.CLONE_NEWNS |
		unix.CLONE_NEWPID | unix.CLONE_NEWUTS | unix.CLONE_NEWCGROUP

	// Read-only bind mount need to be remounted
	bindRo = unix.MS_BIND | unix.MS_RDONLY

	// reported by the supervisor when wait4 on the target failed
	statusWaitFailed = ^uint32(0)
)

// used by mount and pivot_root in the target
var (
	none  = [...]byte{'n', 'o', 'n', 'e', 0}
	slash = [...]byte{'/', 0}
	dot   = [...]byte{'.', 0}
	empty = [...]byte{0}

	// old root directory used when OldRoot is not specified
	DefaultOldRoot = "old_root"

	// go does not allow constant uintptr to be negative...
	_AT_FDCWD = unix.AT_FDCWD
)
