// Package forkexec spawns detached processes through a supervisor.
//
// Start forks three times:
//
//	caller ── A (joins namespaces, forks B, exits)
//	           └─ B (supervisor: forks C, reports C's pid and wait status)
//	               └─ C (target: fds, mounts, pivot_root, credential, execve)
//
// A exits right away and is reaped by Start, so the caller never becomes the
// parent of the target and does not collect zombies. B is reparented to the
// init process of its pid namespace and keeps the status pipe whose read end
// is owned by the returned Waiter.
//
// Only raw syscalls are used after the first fork, since the forked children
// are single-threaded copies of a Go process. This is what allows setns on a
// mount namespace, which the kernel refuses for multi-threaded callers.
//
// setns / pid namespace requires kernel >= 3.8
// pipe2, dup3 requires kernel >= 2.6.27
package forkexec
