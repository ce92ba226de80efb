package forkexec

import (
	"errors"
	"io"
	"os"
	"strings"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"
	"time"
)

func stdFiles(t *testing.T) []uintptr {
	t.Helper()
	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { null.Close() })
	return []uintptr{null.Fd(), null.Fd(), null.Fd()}
}

func TestStart_ExitCode(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		args []string
		code int
	}{
		{[]string{"/bin/true"}, 0},
		{[]string{"/bin/false"}, 1},
		{[]string{"/bin/sh", "-c", "exit 7"}, 7},
	} {
		r := Runner{
			Args:  tc.args,
			Files: stdFiles(t),
		}
		w, err := r.Start()
		if err != nil {
			t.Fatal(err)
		}
		s, err := w.Wait()
		if err != nil {
			t.Fatal(err)
		}
		if s.Signaled() || s.Code() != tc.code {
			t.Fatalf("%v: expected exit %d, got %v", tc.args, tc.code, s)
		}
	}
}

func TestStart_Signaled(t *testing.T) {
	t.Parallel()
	r := Runner{
		Args:  []string{"/bin/sh", "-c", "kill -9 $$"},
		Files: stdFiles(t),
	}
	w, err := r.Start()
	if err != nil {
		t.Fatal(err)
	}
	s, err := w.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if s.Signal != syscall.SIGKILL {
		t.Fatalf("expected SIGKILL, got %v", s)
	}
	if s.Code() != 128+9 {
		t.Fatalf("expected code 137, got %d", s.Code())
	}
}

func TestStart_ExecError(t *testing.T) {
	t.Parallel()
	r := Runner{
		Args:  []string{"/nonexistent/binary"},
		Files: stdFiles(t),
	}
	w, err := r.Start()
	if err == nil {
		w.Wait()
		t.Fatal("expected exec error")
	}
	var ce ChildError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ChildError, got %T %v", err, err)
	}
	if ce.Location != LocExecve || ce.Err != syscall.ENOENT {
		t.Fatalf("unexpected child error %v", ce)
	}
	if !errors.Is(err, syscall.ENOENT) {
		t.Fatalf("expected to unwrap to ENOENT")
	}
}

func TestStart_ChdirError(t *testing.T) {
	t.Parallel()
	r := Runner{
		Args:    []string{"/bin/true"},
		WorkDir: "/nonexistent/dir",
		Files:   stdFiles(t),
	}
	_, err := r.Start()
	var ce ChildError
	if !errors.As(err, &ce) || ce.Location != LocChdir {
		t.Fatalf("expected chdir error, got %v", err)
	}
}

func TestStart_Output(t *testing.T) {
	t.Parallel()
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer pr.Close()

	files := stdFiles(t)
	files[1] = pw.Fd()
	r := Runner{
		Args:  []string{"/bin/sh", "-c", "echo $GREETING"},
		Env:   []string{"GREETING=hello"},
		Files: files,
	}
	w, err := r.Start()
	pw.Close()
	if err != nil {
		t.Fatal(err)
	}
	out, err := io.ReadAll(pr)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(out)) != "hello" {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := w.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestWaiter_NotChild(t *testing.T) {
	t.Parallel()
	r := Runner{
		Args:  []string{"/bin/sh", "-c", "sleep 0.2"},
		Files: stdFiles(t),
	}
	w, err := r.Start()
	if err != nil {
		t.Fatal(err)
	}
	// the target is parented by the supervisor, not by us
	if _, err := syscall.Wait4(w.Pid, nil, syscall.WNOHANG, nil); err != syscall.ECHILD {
		t.Fatalf("expected ECHILD, got %v", err)
	}
	s1, err1 := w.Wait()
	s2, err2 := w.Wait()
	if err1 != nil || err2 != nil || s1 != s2 {
		t.Fatalf("expected cached result, got %v %v / %v %v", s1, err1, s2, err2)
	}
	select {
	case <-w.Done():
	default:
		t.Fatal("done should be closed after Wait")
	}
}

// parentPid reads the ppid field of /proc/<pid>/stat
func parentPid(t *testing.T, pid int) int {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		t.Fatal(err)
	}
	f := strings.Fields(string(b[strings.LastIndexByte(string(b), ')')+1:]))
	ppid, err := strconv.Atoi(f[1])
	if err != nil {
		t.Fatal(err)
	}
	return ppid
}

func TestStart_SupervisorFds(t *testing.T) {
	t.Parallel()
	r := Runner{
		Args:  []string{"/bin/sleep", "5"},
		Files: stdFiles(t),
	}
	start := time.Now()
	w, err := r.Start()
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		syscall.Kill(w.Pid, syscall.SIGKILL)
		w.Wait()
	}()
	// Start returns on execve, not on exit of the target
	if d := time.Since(start); d > 2*time.Second {
		t.Fatalf("start blocked for %v", d)
	}

	// the supervisor keeps nothing but the status pipe
	fdDir := filepath.Join("/proc", strconv.Itoa(parentPid(t, w.Pid)), "fd")
	var fds []os.DirEntry
	for i := 0; i < 20; i++ {
		if fds, err = os.ReadDir(fdDir); err != nil {
			t.Fatal(err)
		}
		if len(fds) == 1 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("supervisor holds %d fds", len(fds))
}

func TestStart_InvalidArgs(t *testing.T) {
	t.Parallel()
	if _, err := (&Runner{}).Start(); err == nil {
		t.Fatal("expected error for empty args")
	}
	r := Runner{
		Args:       []string{"/bin/true"},
		Namespaces: []int{0},
		CloneFlags: syscall.CLONE_NEWNS,
	}
	if _, err := r.Start(); err == nil {
		t.Fatal("expected error for namespaces with clone flags")
	}
}

func TestStart_NewNamespaces(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("requires root")
	}
	t.Parallel()
	r := Runner{
		Args:       []string{"/bin/sh", "-c", "test $$ -eq 1"},
		CloneFlags: syscall.CLONE_NEWPID | syscall.CLONE_NEWNS | syscall.CLONE_NEWUTS,
		Files:      stdFiles(t),
	}
	w, err := r.Start()
	if err != nil {
		t.Fatal(err)
	}
	s, err := w.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if s.Code() != 0 {
		t.Fatalf("expected pid 1 in new pid namespace, got %v", s)
	}
}
