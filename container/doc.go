// Package container runs a Linux rootfs as a container whose init process
// lives in new mount, pid, uts and ipc namespaces.
//
// # Overview
//
// All processes are started through pkg/forkexec, so the calling process
// never changes its own namespaces and never becomes the parent of a
// container process.
//
// ## launch
//
// - clone init with CLONE_NEWNS | CLONE_NEWPID | CLONE_NEWUTS | CLONE_NEWIPC
// - mount proc, sysfs and /dev under the rootfs
// - pivot_root into the rootfs, the host root stays at the old root mount point
// - execve init with stdio on /dev/null
//
// ## exec
//
// - open /proc/<init>/ns/{ipc,uts,pid,mnt}
// - setns into them in a forked child, which forks the target
// - drop credential and execve
//
// ## stop
//
// - send the stop signal (or SIGKILL) to init through its pidfd
// - wait until init disappears
//
// A Container can be rebuilt from the pid of a running init with FromPid,
// which is how later invocations of the tool find a running container.
package container
