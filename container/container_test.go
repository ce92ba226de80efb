package container

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnlaunched(t *testing.T) {
	c := New(Options{})

	_, err := c.InitPid()
	assert.ErrorIs(t, err, ErrNotLaunched)

	_, err = c.Exec(&Command{Path: "/bin/true"}, nil)
	assert.ErrorIs(t, err, ErrNotLaunched)

	assert.ErrorIs(t, c.Stop(false), ErrNotLaunched)
	assert.False(t, c.IsAlive())
}

func TestFromPid(t *testing.T) {
	c, err := FromPid(os.Getpid(), Options{})
	require.NoError(t, err)
	pid, err := c.InitPid()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, c.IsAlive())
}

func TestFromPid_Exited(t *testing.T) {
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	_, err := FromPid(cmd.Process.Pid, Options{})
	assert.Error(t, err)
}

func TestStop_Kill(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	reaped := make(chan struct{})
	go func() {
		cmd.Wait()
		close(reaped)
	}()

	c, err := FromPid(cmd.Process.Pid, Options{})
	require.NoError(t, err)
	require.NoError(t, c.Stop(true))
	<-reaped
	assert.False(t, c.IsAlive())

	_, err = c.InitPid()
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, c.Stop(true), ErrStopped)
}

func TestLookPath(t *testing.T) {
	root := t.TempDir()
	bin := filepath.Join(root, "usr/bin")
	require.NoError(t, os.MkdirAll(bin, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "tool"), []byte("#!/bin/sh\n"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "data"), []byte("x"), 0644))
	require.NoError(t, os.Symlink("/etc/alternatives/editor", filepath.Join(bin, "editor")))

	env := []string{"PATH=/sbin:/usr/bin"}
	p, err := lookPath(root, "tool", env)
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/tool", p)

	p, err = lookPath(root, "editor", env)
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/editor", p)

	_, err = lookPath(root, "data", env)
	assert.ErrorIs(t, err, errNotFound)

	_, err = lookPath(root, "tool", nil)
	assert.ErrorIs(t, err, errNoPath)

	p, err = lookPath(root, "./tool", nil)
	require.NoError(t, err)
	assert.Equal(t, "./tool", p)
}

func TestToCredential(t *testing.T) {
	assert.Nil(t, toCredential(nil))
	cred := toCredential(&specs.User{UID: 1000, GID: 100, AdditionalGids: []uint32{27}})
	assert.EqualValues(t, 1000, cred.Uid)
	assert.EqualValues(t, 100, cred.Gid)
	assert.Equal(t, []uint32{27}, cred.Groups)
}

func TestExec_OwnNamespaces(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("requires root")
	}
	c, err := FromPid(os.Getpid(), Options{})
	require.NoError(t, err)

	w, err := c.Exec(&Command{
		Path: "sh",
		Args: []string{"sh", "-c", "exit 3"},
		Env:  []string{"PATH=/usr/bin:/bin"},
	}, nil)
	require.NoError(t, err)
	st, err := w.Wait()
	require.NoError(t, err)
	assert.Equal(t, 3, st.Code())
}
