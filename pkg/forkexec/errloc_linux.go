package forkexec

import (
	"fmt"
	"syscall"
)

// ErrorLocation defines the location where child process failed to exec
type ErrorLocation int

// ChildError defines the specific error and location where it failed
type ChildError struct {
	Err      syscall.Errno
	Location ErrorLocation
	Index    int
}

// Location constants
const (
	LocClone ErrorLocation = iota + 1
	LocSetns
	LocCloneSupervisor
	LocCloneTarget
	LocDup3
	LocFcntl
	LocSetSid
	LocMountRoot
	LocMountBindRoot
	LocMountChdir
	LocMountMkdir
	LocMount
	LocPivotRootMkdir
	LocPivotRoot
	LocChdir
	LocSeccomp
	LocSetGroups
	LocSetGid
	LocSetUid
	LocSetNoNewPrivs
	LocExecve
)

var locToString = []string{
	"unknown",
	"clone",
	"setns",
	"clone(supervisor)",
	"clone(target)",
	"dup3",
	"fcntl",
	"setsid",
	"mount(root)",
	"mount(bind_root)",
	"mount(chdir)",
	"mount(mkdir)",
	"mount",
	"pivot_root(mkdir)",
	"pivot_root",
	"chdir",
	"seccomp",
	"setgroups",
	"setgid",
	"setuid",
	"set_no_new_privs",
	"execve",
}

func (e ErrorLocation) String() string {
	if e >= LocClone && e <= LocExecve {
		return locToString[e]
	}
	return "unknown"
}

func (e ChildError) Error() string {
	if e.Index > 0 {
		return fmt.Sprintf("%s(%d): %s", e.Location.String(), e.Index, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Location.String(), e.Err.Error())
}

// Unwrap returns the errno so that errors.Is(err, syscall.ENOENT) works
func (e ChildError) Unwrap() error {
	return e.Err
}
