package distro

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserStore(t *testing.T) *FileStore {
	t.Helper()
	return &FileStore{
		Path: filepath.Join(t.TempDir(), "distrod.json"),
		UID:  os.Getuid(),
		GID:  os.Getgid(),
	}
}

func TestFileStore(t *testing.T) {
	s := newUserStore(t)

	info, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, info)

	require.NoError(t, s.Store(&RunInfo{Rootfs: "/var/lib/distrod/ubuntu", InitPid: 42}))
	content, err := os.ReadFile(s.Path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"rootfs": "/var/lib/distrod/ubuntu", "init_pid": 42}`, string(content))

	// replaces the previous record
	require.NoError(t, s.Store(&RunInfo{Rootfs: "/var/lib/distrod/arch", InitPid: 43}))
	info, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, &RunInfo{Rootfs: "/var/lib/distrod/arch", InitPid: 43}, info)

	require.NoError(t, s.Delete())
	require.NoError(t, s.Delete())
	info, err = s.Load()
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestFileStore_Unsafe(t *testing.T) {
	s := newUserStore(t)
	require.NoError(t, s.Store(&RunInfo{Rootfs: "/", InitPid: 1}))

	other := &FileStore{Path: s.Path, UID: s.UID + 1, GID: s.GID}
	_, err := other.Load()
	assert.ErrorIs(t, err, ErrUnsafeRunInfo)
	assert.ErrorIs(t, other.Store(&RunInfo{Rootfs: "/", InitPid: 2}), ErrUnsafeRunInfo)

	// the unsafe file is left in place
	info, err := s.Load()
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.InitPid)
}

func TestFileStore_Corrupted(t *testing.T) {
	s := newUserStore(t)
	require.NoError(t, os.WriteFile(s.Path, []byte("{"), 0644))
	_, err := s.Load()
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	s := &MemoryStore{}
	info := &RunInfo{Rootfs: "/", InitPid: 1}
	require.NoError(t, s.Store(info))
	info.InitPid = 2

	got, err := s.Load()
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.InitPid)

	require.NoError(t, s.Delete())
	got, err = s.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}
