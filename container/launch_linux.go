package container

import (
	"os"
	"path/filepath"

	"github.com/distrod-go/distrod/pkg/forkexec"
	"github.com/distrod-go/distrod/pkg/mount"
	"github.com/distrod-go/distrod/pkg/procfile"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// openInit binds the started init, replaced in tests
var openInit = procfile.FromPid

// Launch starts init inside rootfs in new namespaces. The host root stays
// mounted at oldRoot inside the container.
func (c *Container) Launch(rootfs, oldRoot string) error {
	if c.stopped {
		return ErrStopped
	}
	if c.initPid != 0 {
		return errors.New("container: already launched")
	}
	root, err := filepath.Abs(rootfs)
	if err != nil {
		return errors.Wrapf(err, "container: resolve rootfs %s", rootfs)
	}
	if oldRoot == "" {
		oldRoot = DefaultOldRoot
	}

	// container mount points
	mb := c.opts.Mounts
	if mb == nil {
		mb = mount.NewDistroBuilder()
	}
	mounts, err := mb.Build(true)
	if err != nil {
		return errors.Wrap(err, "container: build rootfs mounts")
	}

	filter, err := c.seccompFilter()
	if err != nil {
		return err
	}

	// prepare stdin / stdout / stderr
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return errors.Wrap(err, "container: open /dev/null")
	}
	defer devNull.Close()

	files := []uintptr{devNull.Fd(), devNull.Fd(), devNull.Fd()}
	if c.opts.Stderr {
		files[2] = os.Stderr.Fd()
	}

	args := c.opts.Init
	if len(args) == 0 {
		args = []string{DefaultInit}
	}
	env := append([]string{PathEnv, containerEnv}, c.opts.Env...)

	r := &forkexec.Runner{
		Args:       args,
		Env:        env,
		Files:      files,
		WorkDir:    "/",
		CloneFlags: cloneFlags,
		Mounts:     mounts,
		PivotRoot:  root,
		OldRoot:    oldRoot,
		Seccomp:    filter,
		Setsid:     true,
	}
	logger := logrus.WithFields(logrus.Fields{
		"rootfs":   root,
		"old_root": oldRoot,
		"init":     args[0],
	})
	logger.Debug("container: starting init")

	w, err := r.Start()
	if err != nil {
		return errors.Wrap(err, "container: start init")
	}

	p, err := openInit(w.Pid)
	if err != nil {
		// leave nothing running that is not recorded
		unix.Kill(w.Pid, unix.SIGKILL)
		w.Wait()
		return errors.Wrap(err, "container: open init")
	}
	if p == nil {
		st, err := w.Wait()
		if err != nil {
			return errors.Wrap(err, "container: init exited immediately")
		}
		return errors.Errorf("container: init exited immediately (%v)", st)
	}

	c.initPid = w.Pid
	c.proc = p
	c.init = w
	logger.WithField("pid", w.Pid).Info("container: launched")
	return nil
}
