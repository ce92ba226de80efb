package distro

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/distrod-go/distrod/config"
	"github.com/distrod-go/distrod/container"
	"github.com/distrod-go/distrod/pkg/forkexec"
	"github.com/distrod-go/distrod/pkg/hostenv"
	"github.com/distrod-go/distrod/pkg/mountinfo"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContainer struct {
	pid       int
	launchErr error

	rootfs  string
	oldRoot string
	exec    *container.Command
	cred    *specs.User
	stopped bool
	force   bool
}

func (c *fakeContainer) Launch(rootfs, oldRoot string) error {
	if c.launchErr != nil {
		return c.launchErr
	}
	c.rootfs, c.oldRoot = rootfs, oldRoot
	c.pid = os.Getpid()
	return nil
}

func (c *fakeContainer) Exec(cmd *container.Command, cred *specs.User) (*forkexec.Waiter, error) {
	if c.pid == 0 {
		return nil, container.ErrNotLaunched
	}
	c.exec, c.cred = cmd, cred
	return nil, nil
}

func (c *fakeContainer) Stop(force bool) error {
	if c.pid == 0 {
		return container.ErrNotLaunched
	}
	c.stopped, c.force = true, force
	return nil
}

func (c *fakeContainer) InitPid() (int, error) {
	if c.pid == 0 {
		return 0, container.ErrNotLaunched
	}
	return c.pid, nil
}

type testEnv struct {
	m      *Manager
	c      *fakeContainer
	store  *MemoryStore
	rootfs string
}

func newTestEnv(t *testing.T, env hostenv.Static, opts ...Option) *testEnv {
	t.Helper()
	rootfs := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(rootfs, "etc"), 0755))

	te := &testEnv{
		c:      &fakeContainer{},
		store:  &MemoryStore{},
		rootfs: rootfs,
	}
	cfg := config.Default()
	cfg.Distrod.DefaultDistroImage = rootfs
	opts = append([]Option{
		WithRunInfoStore(te.store),
		WithHostEnv(env),
		WithContainerFactory(
			func() Container { return te.c },
			func(pid int) (Container, error) { return te.c, nil },
		),
	}, opts...)
	m, err := NewManager(cfg, opts...)
	require.NoError(t, err)
	te.m = m
	return te
}

func (te *testEnv) envFile(t *testing.T) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(te.rootfs, envFilePath))
	require.NoError(t, err)
	return string(content)
}

func deadPid(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	return cmd.Process.Pid
}

func TestGetInstalledDistro(t *testing.T) {
	te := newTestEnv(t, nil)

	d, err := te.m.GetInstalledDistro("")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, te.rootfs, d.Rootfs())

	d, err = te.m.GetInstalledDistro(filepath.Join(te.rootfs, "missing"))
	require.NoError(t, err)
	assert.Nil(t, d)

	file := filepath.Join(te.rootfs, "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err = te.m.GetInstalledDistro(file)
	assert.ErrorIs(t, err, ErrNotDirectory)

	te.m.cfg.Distrod.DefaultDistroImage = ""
	_, err = te.m.GetInstalledDistro("")
	assert.ErrorIs(t, err, ErrNoDefaultRootfs)
}

func TestLaunchStop(t *testing.T) {
	te := newTestEnv(t, nil)

	d, err := te.m.GetInstalledDistro(te.rootfs)
	require.NoError(t, err)
	require.NoError(t, d.Launch())

	assert.Equal(t, "PATH=/opt/distrod/bin\n", te.envFile(t))
	assert.Equal(t, "/mnt/distrod_root", te.c.oldRoot)

	info, err := te.store.Load()
	require.NoError(t, err)
	assert.Equal(t, &RunInfo{Rootfs: te.rootfs, InitPid: uint32(os.Getpid())}, info)

	running, err := te.m.GetRunningDistro()
	require.NoError(t, err)
	require.NotNil(t, running)
	assert.Equal(t, te.rootfs, running.Rootfs())

	require.NoError(t, running.Stop(false))
	assert.True(t, te.c.stopped)
	assert.False(t, te.c.force)
	assert.Equal(t, "", te.envFile(t))

	info, err = te.store.Load()
	require.NoError(t, err)
	assert.Nil(t, info)

	running, err = te.m.GetRunningDistro()
	require.NoError(t, err)
	assert.Nil(t, running)
}

func TestLaunchStop_HostEnv(t *testing.T) {
	te := newTestEnv(t, hostenv.Static{
		"WSL_INTEROP":     "/run/WSL/8_interop",
		"WSL_DISTRO_NAME": "Distrod",
	})
	original := "# set by the admin\nLANG=C.UTF-8\nPATH=\"/usr/local/bin:/usr/bin\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(te.rootfs, envFilePath), []byte(original), 0644))

	d, err := te.m.GetInstalledDistro("")
	require.NoError(t, err)
	require.NoError(t, d.Launch())

	f := te.envFile(t)
	assert.Contains(t, f, "PATH=\"/opt/distrod/bin:/usr/local/bin:/usr/bin\"\n")
	assert.Contains(t, f, "WSL_INTEROP=/run/WSL/8_interop\n")
	assert.Contains(t, f, "WSL_DISTRO_NAME=Distrod\n")

	// launching again does not prefix twice
	require.NoError(t, te.m.setupEnvFile(te.rootfs))
	assert.Equal(t, f, te.envFile(t))

	require.NoError(t, d.Stop(true))
	assert.True(t, te.c.force)
	assert.Equal(t, original, te.envFile(t))
}

func TestLaunch_HostEnvLineBreak(t *testing.T) {
	te := newTestEnv(t, hostenv.Static{
		"WSL_INTEROP":     "/run/WSL/8_interop\nLD_PRELOAD=/tmp/x.so",
		"WSL_DISTRO_NAME": "Distrod",
	})

	d, err := te.m.GetInstalledDistro("")
	require.NoError(t, err)
	require.NoError(t, d.Launch())

	f := te.envFile(t)
	assert.NotContains(t, f, "LD_PRELOAD")
	assert.NotContains(t, f, "WSL_INTEROP")
	assert.Contains(t, f, "WSL_DISTRO_NAME=Distrod\n")
}

func TestLaunch_EnvFileFailureIsAdvisory(t *testing.T) {
	te := newTestEnv(t, nil)
	require.NoError(t, os.RemoveAll(filepath.Join(te.rootfs, "etc")))

	d, err := te.m.GetInstalledDistro("")
	require.NoError(t, err)
	require.NoError(t, d.Launch())

	info, err := te.store.Load()
	require.NoError(t, err)
	assert.NotNil(t, info)
}

func TestLaunch_Failure(t *testing.T) {
	te := newTestEnv(t, nil)
	te.c.launchErr = errors.New("clone: operation not permitted")

	d, err := te.m.GetInstalledDistro("")
	require.NoError(t, err)
	assert.Error(t, d.Launch())

	info, err := te.store.Load()
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestExportRunInfo_BeforeLaunch(t *testing.T) {
	te := newTestEnv(t, nil)
	d, err := te.m.GetInstalledDistro("")
	require.NoError(t, err)

	err = d.exportRunInfo()
	assert.ErrorIs(t, err, container.ErrNotLaunched)
	info, err := te.store.Load()
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestExportRunInfo_UnlaunchedContainer(t *testing.T) {
	te := newTestEnv(t, nil, WithContainerFactory(
		func() Container { return container.New(container.Options{}) },
		nil,
	))
	d, err := te.m.GetInstalledDistro("")
	require.NoError(t, err)
	assert.ErrorIs(t, d.exportRunInfo(), container.ErrNotLaunched)
}

func TestGetRunningDistro_Stale(t *testing.T) {
	te := newTestEnv(t, nil)
	require.NoError(t, te.store.Store(&RunInfo{Rootfs: te.rootfs, InitPid: uint32(deadPid(t))}))

	d, err := te.m.GetRunningDistro()
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestGetRunningDistro_UnsafeRunInfo(t *testing.T) {
	p := filepath.Join(t.TempDir(), "distrod.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"rootfs":"/","init_pid":1}`), 0644))
	store := &FileStore{Path: p, UID: os.Getuid() + 1, GID: os.Getgid()}

	te := newTestEnv(t, nil, WithRunInfoStore(store))
	_, err := te.m.GetRunningDistro()
	assert.ErrorIs(t, err, ErrUnsafeRunInfo)
}

func TestExecCommand(t *testing.T) {
	te := newTestEnv(t, nil)
	d, err := te.m.GetInstalledDistro("")
	require.NoError(t, err)

	cmd := &container.Command{Path: "bash", Env: []string{"TERM=xterm", "PATH=/usr/bin:/bin"}}
	_, err = d.ExecCommand(cmd, nil)
	assert.ErrorIs(t, err, container.ErrNotLaunched)

	require.NoError(t, d.Launch())
	cred := &specs.User{UID: 1000, GID: 1000}
	_, err = d.ExecCommand(cmd, cred)
	require.NoError(t, err)
	assert.Equal(t, []string{"TERM=xterm", "PATH=/opt/distrod/bin:/usr/bin:/bin"}, te.c.exec.Env)
	assert.Equal(t, cred, te.c.cred)
	// the caller's command is left untouched
	assert.Equal(t, []string{"TERM=xterm", "PATH=/usr/bin:/bin"}, cmd.Env)

	_, err = d.ExecCommand(&container.Command{Path: "bash", Env: []string{}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"PATH=/opt/distrod/bin"}, te.c.exec.Env)
}

func TestIsInsideRunningDistro(t *testing.T) {
	for _, tc := range []struct {
		name    string
		entries []mountinfo.Entry
		err     error
		inside  bool
	}{
		{"host", []mountinfo.Entry{{Path: "/"}, {Path: "/mnt/c"}}, nil, false},
		{"container", []mountinfo.Entry{{Path: "/"}, {Path: "/mnt/distrod_root"}, {Path: "/mnt/distrod_root/proc"}}, nil, true},
		{"error", nil, errors.New("permission denied"), true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			lister := mountinfo.ListerFunc(func() ([]mountinfo.Entry, error) {
				return tc.entries, tc.err
			})
			te := newTestEnv(t, nil, WithMountLister(lister))
			assert.Equal(t, tc.inside, te.m.IsInsideRunningDistro())
		})
	}
}

func TestNewManager_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Container.StopSignal = "SIGNOPE"
	_, err := NewManager(cfg)
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Seccomp.Deny = []string{"reboot"}
	cfg.Seccomp.Action = "explode"
	_, err = NewManager(cfg)
	assert.Error(t, err)
}
