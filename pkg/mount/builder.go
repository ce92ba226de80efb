package mount

import (
	"os"

	"golang.org/x/sys/unix"
)

const (
	bind   = unix.MS_BIND | unix.MS_NOSUID | unix.MS_PRIVATE
	roBind = bind | unix.MS_RDONLY
	rbind  = unix.MS_BIND | unix.MS_REC
	mFlag  = unix.MS_NOSUID | unix.MS_NOATIME | unix.MS_NODEV
	kFlag  = unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC
)

// Builder builds fork_exec friendly mount syscall format
type Builder struct {
	Mounts []Mount
}

// NewBuilder creates new mount builder instance
func NewBuilder() *Builder {
	return &Builder{}
}

// Build creates sequence of syscalls for fork_exec
// skipNotExists skips bind mounts that source not exists
func (b *Builder) Build(skipNotExists bool) ([]SyscallParams, error) {
	ret := make([]SyscallParams, 0, len(b.Mounts))
	for _, m := range b.Mounts {
		mknod, err := isBindMountFileOrNotExists(m)
		if err != nil {
			if skipNotExists {
				continue
			}
			return nil, err
		}
		sp, err := m.ToSyscall()
		if err != nil {
			return nil, err
		}
		sp.MakeNod = mknod
		ret = append(ret, *sp)
	}
	return ret, nil
}

func isBindMountFileOrNotExists(m Mount) (bool, error) {
	if !m.IsBindMount() {
		return false, nil
	}
	fi, err := os.Stat(m.Source)
	if err != nil {
		return false, err
	}
	return !fi.IsDir(), nil
}

// WithBind adds a bind mount to builder
func (b *Builder) WithBind(source, target string, readonly bool) *Builder {
	var flags uintptr = bind
	if readonly {
		flags = roBind
	}
	b.Mounts = append(b.Mounts, Mount{
		Source: source,
		Target: target,
		Flags:  flags,
	})
	return b
}

// WithRecursiveBind adds a recursive bind mount, keeping all submounts of source
func (b *Builder) WithRecursiveBind(source, target string) *Builder {
	b.Mounts = append(b.Mounts, Mount{
		Source: source,
		Target: target,
		Flags:  rbind,
	})
	return b
}

// WithTmpfs add a tmpfs mount to builder
func (b *Builder) WithTmpfs(target, data string) *Builder {
	b.Mounts = append(b.Mounts, Mount{
		Source: "tmpfs",
		Target: target,
		FsType: "tmpfs",
		Flags:  mFlag,
		Data:   data,
	})
	return b
}

// WithProc add a proc mount, it reflects the pid namespace of the mounting process
func (b *Builder) WithProc(target string) *Builder {
	b.Mounts = append(b.Mounts, Mount{
		Source: "proc",
		Target: target,
		FsType: "proc",
		Flags:  kFlag,
	})
	return b
}

// WithSysfs add a sysfs mount to builder
func (b *Builder) WithSysfs(target string) *Builder {
	b.Mounts = append(b.Mounts, Mount{
		Source: "sysfs",
		Target: target,
		FsType: "sysfs",
		Flags:  kFlag,
	})
	return b
}
