package container

import (
	"syscall"

	"github.com/distrod-go/distrod/pkg/forkexec"
	"github.com/distrod-go/distrod/pkg/mount"
	"github.com/distrod-go/distrod/pkg/procfile"
	"github.com/distrod-go/distrod/pkg/seccomp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotLaunched is returned by operations which need a running init
	ErrNotLaunched = errors.New("container: not launched")

	// ErrStopped is returned by operations on a stopped container
	ErrStopped = errors.New("container: stopped")
)

// Options configures a Container
type Options struct {
	// Init is the argv of the init process, DefaultInit if empty
	Init []string

	// Env is appended to the environment of init
	Env []string

	// Mounts are performed under the rootfs before pivot_root, empty uses
	// mount.NewDistroBuilder
	Mounts *mount.Builder

	// Seccomp denies syscalls for init and exec'd processes
	Seccomp *seccomp.Builder

	// StopSignal is sent to init by a graceful Stop, SignalPoweroff if zero
	StopSignal syscall.Signal

	// Stderr keeps stderr of init for debug
	Stderr bool
}

// Container is a distro running in its own namespaces.
// Unlaunched -> Launched -> Stopped.
type Container struct {
	opts Options

	initPid int
	proc    *procfile.ProcFile
	init    *forkexec.Waiter
	stopped bool
}

// New creates an unlaunched container
func New(opts Options) *Container {
	return &Container{opts: opts}
}

// FromPid binds a container to an init process that is already running
func FromPid(pid int, opts Options) (*Container, error) {
	p, err := procfile.FromPid(pid)
	if err != nil {
		return nil, errors.Wrapf(err, "container: open init %d", pid)
	}
	if p == nil {
		return nil, errors.Errorf("container: init %d: %v", pid, syscall.ESRCH)
	}
	logrus.WithField("pid", pid).Debug("container: bound to running init")
	return &Container{
		opts:    opts,
		initPid: pid,
		proc:    p,
	}, nil
}

// InitPid returns the host pid of init
func (c *Container) InitPid() (int, error) {
	if err := c.checkLaunched(); err != nil {
		return 0, err
	}
	return c.initPid, nil
}

// IsAlive reports whether init is still running
func (c *Container) IsAlive() bool {
	return c.proc != nil && c.proc.IsAlive()
}

func (c *Container) checkLaunched() error {
	if c.stopped {
		return ErrStopped
	}
	if c.initPid == 0 {
		return ErrNotLaunched
	}
	return nil
}

func (c *Container) seccompFilter() (*syscall.SockFprog, error) {
	if c.opts.Seccomp == nil {
		return nil, nil
	}
	f, err := c.opts.Seccomp.Build()
	if err != nil {
		return nil, errors.Wrap(err, "container: build seccomp filter")
	}
	return f.SockFprog(), nil
}
