// Package distro drives a distro rootfs through its container: it finds the
// installed or running distro, keeps /etc/environment of the rootfs in sync
// with the host and records the running container for later invocations.
package distro

import (
	"os"
	"strings"

	"github.com/distrod-go/distrod/config"
	"github.com/distrod-go/distrod/container"
	"github.com/distrod-go/distrod/pkg/forkexec"
	"github.com/distrod-go/distrod/pkg/hostenv"
	"github.com/distrod-go/distrod/pkg/mountinfo"
	"github.com/distrod-go/distrod/pkg/procfile"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotDirectory is returned when a rootfs path is not a directory
	ErrNotDirectory = errors.New("distro: not a directory")

	// ErrNoDefaultRootfs is returned when no rootfs is given and none is configured
	ErrNoDefaultRootfs = errors.New("distro: no default rootfs configured")
)

// Container is the part of container.Container used by Distro
type Container interface {
	Launch(rootfs, oldRoot string) error
	Exec(cmd *container.Command, cred *specs.User) (*forkexec.Waiter, error)
	Stop(force bool) error
	InitPid() (int, error)
}

// Manager finds distros and carries their collaborators
type Manager struct {
	cfg     *config.Config
	store   RunInfoStore
	hostEnv hostenv.Collector
	mounts  mountinfo.Lister

	newContainer     func() Container
	containerFromPid func(pid int) (Container, error)
}

// Option configures Manager
type Option func(*Manager)

// WithRunInfoStore replaces the run info file
func WithRunInfoStore(s RunInfoStore) Option {
	return func(m *Manager) { m.store = s }
}

// WithHostEnv replaces the WSL environment collector
func WithHostEnv(c hostenv.Collector) Option {
	return func(m *Manager) { m.hostEnv = c }
}

// WithMountLister replaces the reader of /proc/self/mountinfo
func WithMountLister(l mountinfo.Lister) Option {
	return func(m *Manager) { m.mounts = l }
}

// WithContainerFactory replaces how containers are created and rebound
func WithContainerFactory(newFn func() Container, fromPid func(int) (Container, error)) Option {
	return func(m *Manager) {
		m.newContainer = newFn
		m.containerFromPid = fromPid
	}
}

// NewManager creates a Manager from cfg, nil cfg uses config.Default
func NewManager(cfg *config.Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	copts, err := ContainerOptions(cfg)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:     cfg,
		store:   NewFileStore(cfg.Distrod.RunInfoPath),
		hostEnv: hostenv.NewWSL(cfg.WSL.EnvKeys),
		mounts:  mountinfo.Self,
		newContainer: func() Container {
			return container.New(copts)
		},
		containerFromPid: func(pid int) (Container, error) {
			return container.FromPid(pid, copts)
		},
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Config returns the configuration of m
func (m *Manager) Config() *config.Config {
	return m.cfg
}

// GetInstalledDistro returns the distro at rootfs, or the default one when
// rootfs is empty. It returns nil without error if the path does not exist.
func (m *Manager) GetInstalledDistro(rootfs string) (*Distro, error) {
	if rootfs == "" {
		rootfs = m.cfg.Distrod.DefaultDistroImage
		if rootfs == "" {
			return nil, ErrNoDefaultRootfs
		}
	}
	fi, err := os.Stat(rootfs)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "stat rootfs %s", rootfs)
	}
	if !fi.IsDir() {
		return nil, errors.Wrap(ErrNotDirectory, rootfs)
	}
	return &Distro{
		rootfs:    rootfs,
		container: m.newContainer(),
		m:         m,
	}, nil
}

// GetRunningDistro returns the distro recorded in the run info, nil if there
// is no record or the recorded init is gone
func (m *Manager) GetRunningDistro() (*Distro, error) {
	info, err := m.store.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load the distro run info")
	}
	if info == nil {
		return nil, nil
	}
	logger := logrus.WithFields(logrus.Fields{
		"rootfs": info.Rootfs,
		"pid":    info.InitPid,
	})
	p, err := procfile.FromPid(int(info.InitPid))
	if err != nil {
		return nil, errors.Wrapf(err, "check init %d", info.InitPid)
	}
	if p == nil {
		logger.Debug("distro: stale run info")
		return nil, nil
	}
	p.Close()

	c, err := m.containerFromPid(int(info.InitPid))
	if err != nil {
		return nil, errors.Wrap(err, "rebind the running container")
	}
	logger.Debug("distro: found running distro")
	return &Distro{
		rootfs:    info.Rootfs,
		container: c,
		m:         m,
	}, nil
}

// IsInsideRunningDistro guesses whether the calling process runs inside the
// container from the old root mount point. It is a heuristic and answers
// true when the mount table can not be read.
func (m *Manager) IsInsideRunningDistro() bool {
	entries, err := m.mounts.Entries()
	if err != nil {
		logrus.WithError(err).Warn("distro: cannot read the mount table, assuming inside the distro")
		return true
	}
	return mountinfo.HasPrefix(entries, m.cfg.Distrod.OldRootPath)
}

// Distro is an installed or running distro
type Distro struct {
	rootfs    string
	container Container
	m         *Manager
}

// Rootfs returns the rootfs path of the distro
func (d *Distro) Rootfs() string {
	return d.rootfs
}

// InitPid returns the pid of the container init
func (d *Distro) InitPid() (int, error) {
	return d.container.InitPid()
}

// Launch starts the container and records it in the run info. A failure
// to set up /etc/environment only logs a warning.
func (d *Distro) Launch() error {
	if err := d.m.setupEnvFile(d.rootfs); err != nil {
		logrus.WithError(err).Warn("distro: failed to setup /etc/environment")
	}
	if err := d.container.Launch(d.rootfs, d.m.cfg.Distrod.OldRootPath); err != nil {
		return errors.Wrap(err, "launch the container")
	}
	return d.exportRunInfo()
}

func (d *Distro) exportRunInfo() error {
	pid, err := d.container.InitPid()
	if err != nil {
		return errors.Wrap(err, "distro is not launched yet, but being exported")
	}
	info := &RunInfo{Rootfs: d.rootfs, InitPid: uint32(pid)}
	if err := d.m.store.Store(info); err != nil {
		return errors.Wrap(err, "export the distro run info")
	}
	return nil
}

// ExecCommand runs cmd inside the container. PATH of cmd is always prefixed
// with the distrod bin dir, the environment of the calling process is used
// when cmd.Env is nil.
func (d *Distro) ExecCommand(cmd *container.Command, cred *specs.User) (*forkexec.Waiter, error) {
	c := *cmd
	env := c.Env
	if env == nil {
		env = os.Environ()
	}
	c.Env = withPath(env, AddBinDirToPath(d.m.cfg.Distrod.BinDir, lookupEnv(env, "PATH")))

	w, err := d.container.Exec(&c, cred)
	if err != nil {
		return nil, errors.Wrap(err, "exec command in the container")
	}
	return w, nil
}

// Stop restores /etc/environment, stops the container and deletes the run
// info. A failure to restore /etc/environment only logs a warning.
func (d *Distro) Stop(sigkill bool) error {
	if err := d.m.cleanupEnvFile(d.rootfs); err != nil {
		logrus.WithError(err).Warn("distro: failed to clean up /etc/environment")
	}
	if err := d.container.Stop(sigkill); err != nil {
		return errors.Wrap(err, "stop the container")
	}
	if err := d.m.store.Delete(); err != nil {
		return errors.Wrap(err, "delete the distro run info")
	}
	return nil
}

func lookupEnv(env []string, key string) string {
	prefix := key + "="
	for i := len(env) - 1; i >= 0; i-- {
		if strings.HasPrefix(env[i], prefix) {
			return env[i][len(prefix):]
		}
	}
	return ""
}

// withPath returns a copy of env with a single PATH entry
func withPath(env []string, path string) []string {
	ret := make([]string, 0, len(env)+1)
	for _, e := range env {
		if !strings.HasPrefix(e, "PATH=") {
			ret = append(ret, e)
		}
	}
	return append(ret, "PATH="+path)
}
