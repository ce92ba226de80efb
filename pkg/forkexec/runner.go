package forkexec

import (
	"syscall"

	"github.com/distrod-go/distrod/pkg/mount"
)

// Runner is the configuration of a supervised process. The target can be
// created in new namespaces (CloneFlags) or inside existing ones
// (Namespaces), but not both.
type Runner struct {
	// Path is the executable, Args[0] is used when empty
	Path string

	// argv and env for execve syscall for the child process
	Args []string
	Env  []string

	// file disriptors map for new process, from 0 to len - 1
	Files []uintptr

	// work path set by chdir(dir) (current working directory for child)
	// if pivot_root is defined, this will execute after changed to new root
	WorkDir string

	// Namespaces holds namespace fds (/proc/<pid>/ns/*) joined with setns
	// before the supervisor is forked. Order matters: the mount namespace
	// should be the last one since it changes root and work directory
	Namespaces []int

	// clone unshare flag to create linux namespace for the target
	CloneFlags uintptr

	// mounts defines the mount syscalls after unshare mount namespace
	// targets are relative to PivotRoot if it is defined
	Mounts []mount.SyscallParams

	// pivot_root defines a new root after unshare mount namespace
	// it should be a directory in absolute path
	// Call path:
	// mount(root, root, NULL, MS_BIND | MS_REC, NULL)
	// chdir(root)
	// [do mounts]
	// mkdir -p OldRoot
	// pivot_root(".", OldRoot)
	// chdir("/")
	PivotRoot string

	// OldRoot is where the previous root stays mounted after pivot_root,
	// relative to the new root (default: old_root)
	OldRoot string

	// Credential holds user and group identities to be assumed
	// by the target before execve
	Credential *syscall.Credential

	// seccomp syscall filter applied to the target
	Seccomp *syscall.SockFprog

	// no_new_privs calls prctl(PR_SET_NO_NEW_PRIVS) to disable calls to
	// setuid processes
	NoNewPrivs bool

	// Setsid starts the target in a new session
	Setsid bool
}
