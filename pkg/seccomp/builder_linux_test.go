package seccomp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEmpty(t *testing.T) {
	b := Builder{}
	f, err := b.Build()
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Nil(t, f.SockFprog())
}

func TestBuildDenyList(t *testing.T) {
	b := Builder{Deny: []string{"kexec_load", "init_module"}}
	f, err := b.Build()
	require.NoError(t, err)
	require.NotEmpty(t, f)

	prog := f.SockFprog()
	require.NotNil(t, prog)
	assert.Equal(t, len(f), int(prog.Len))
}

func TestBuildUnknownSyscall(t *testing.T) {
	b := Builder{Deny: []string{"not_a_syscall"}}
	_, err := b.Build()
	assert.Error(t, err)
}

func TestParseAction(t *testing.T) {
	for s, want := range map[string]Action{
		"":      ActionErrno,
		"errno": ActionErrno,
		"kill":  ActionKill,
		"allow": ActionAllow,
		"log":   ActionLog,
	} {
		got, err := ParseAction(s)
		require.NoError(t, err)
		assert.Equal(t, want, got, s)
	}
	_, err := ParseAction("trace")
	assert.Error(t, err)
}
