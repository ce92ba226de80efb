package container

import (
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	// DefaultInit is executed as pid 1 of the container
	DefaultInit = "/sbin/init"

	// DefaultOldRoot is where the host root stays mounted inside the container
	DefaultOldRoot = "/mnt/distrod_root"

	// SignalPoweroff is SIGRTMIN+4, which asks systemd to power off
	SignalPoweroff = syscall.Signal(0x26)

	// containerEnv tells init that it runs inside a container
	containerEnv = "container=distrod"

	// PathEnv is the PATH of the init process
	PathEnv = "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

	cloneFlags = unix.CLONE_NEWNS | unix.CLONE_NEWPID | unix.CLONE_NEWUTS | unix.CLONE_NEWIPC
)

// namespaces joined by exec, mnt must be the last one since it changes root
var execNamespaces = []string{"ipc", "uts", "pid", "mnt"}
