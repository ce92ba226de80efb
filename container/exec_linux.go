package container

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/distrod-go/distrod/pkg/forkexec"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Command is a program to run inside the container
type Command struct {
	// Path is looked up in the PATH of Env inside the rootfs unless it
	// contains a slash
	Path string

	// Args holds the argv, Args[0] is used as arg0. Path is used when empty
	Args []string

	// Env of the program
	Env []string

	// Dir is the work directory inside the container, "/" if empty
	Dir string

	// stdio of the program, nil inherits the one of the calling process
	Stdin, Stdout, Stderr *os.File
}

// Exec runs cmd in the namespaces of init. The returned Waiter reports the
// exit status of the program.
func (c *Container) Exec(cmd *Command, cred *specs.User) (*forkexec.Waiter, error) {
	if err := c.checkLaunched(); err != nil {
		return nil, err
	}
	procRoot := filepath.Join("/proc", strconv.Itoa(c.initPid))

	path, err := lookPath(filepath.Join(procRoot, "root"), cmd.Path, cmd.Env)
	if err != nil {
		return nil, errors.Wrapf(err, "container: look up %s", cmd.Path)
	}
	args := cmd.Args
	if len(args) == 0 {
		args = []string{cmd.Path}
	}

	nsFiles := make([]*os.File, 0, len(execNamespaces))
	defer func() {
		for _, f := range nsFiles {
			f.Close()
		}
	}()
	nsFds := make([]int, 0, len(execNamespaces))
	for _, ns := range execNamespaces {
		f, err := os.Open(filepath.Join(procRoot, "ns", ns))
		if err != nil {
			return nil, errors.Wrapf(err, "container: open %s namespace", ns)
		}
		nsFiles = append(nsFiles, f)
		nsFds = append(nsFds, int(f.Fd()))
	}

	filter, err := c.seccompFilter()
	if err != nil {
		return nil, err
	}

	workDir := cmd.Dir
	if workDir == "" {
		workDir = "/"
	}
	r := &forkexec.Runner{
		Path:       path,
		Args:       args,
		Env:        cmd.Env,
		Files:      stdio(cmd),
		WorkDir:    workDir,
		Namespaces: nsFds,
		Credential: toCredential(cred),
		Seccomp:    filter,
	}
	logrus.WithFields(logrus.Fields{
		"init": c.initPid,
		"path": path,
		"args": args,
		"dir":  workDir,
	}).Debug("container: exec")

	w, err := r.Start()
	if err != nil {
		return nil, errors.Wrapf(err, "container: exec %s", path)
	}
	return w, nil
}

func stdio(cmd *Command) []uintptr {
	pick := func(f, def *os.File) uintptr {
		if f == nil {
			f = def
		}
		return f.Fd()
	}
	return []uintptr{
		pick(cmd.Stdin, os.Stdin),
		pick(cmd.Stdout, os.Stdout),
		pick(cmd.Stderr, os.Stderr),
	}
}

func toCredential(u *specs.User) *syscall.Credential {
	if u == nil {
		return nil
	}
	groups := make([]uint32, len(u.AdditionalGids))
	copy(groups, u.AdditionalGids)
	return &syscall.Credential{
		Uid:    u.UID,
		Gid:    u.GID,
		Groups: groups,
	}
}

func (c *Command) String() string {
	return fmt.Sprintf("%s %v", c.Path, c.Args)
}
