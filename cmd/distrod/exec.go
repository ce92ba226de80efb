package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/distrod-go/distrod/container"
	"github.com/distrod-go/distrod/distro"
	"github.com/distrod-go/distrod/pkg/passwd"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var execCommand = cli.Command{
	Name:      "exec",
	Usage:     "execute a command inside the distro, launching it if needed",
	ArgsUsage: "<command> [args...]",
	Flags: []cli.Flag{
		rootfsFlag,
		cli.StringFlag{Name: "user,u", Value: "", Usage: "set the user, uid, and/or gid for the process"},
		cli.StringFlag{Name: "cwd", Value: "", Usage: "set the current working dir"},
		cli.StringFlag{Name: "arg0", Value: "", Usage: "set argv[0] of the command"},
	},
	Action: func(context *cli.Context) error {
		if context.NArg() == 0 {
			return errors.New("exec requires a command")
		}
		m, err := loadManager(context)
		if err != nil {
			return err
		}
		status, err := execDistro(context, m)
		if err != nil {
			return err
		}
		os.Exit(status)
		return nil
	},
}

func execDistro(context *cli.Context, m *distro.Manager) (int, error) {
	d, err := m.GetRunningDistro()
	if err != nil {
		return -1, err
	}
	if d == nil {
		if err := refuseInside(m, "launch"); err != nil {
			return -1, err
		}
		if d, err = installedDistro(context, m); err != nil {
			return -1, err
		}
		logrus.WithField("rootfs", d.Rootfs()).Info("launching the distro")
		if err := d.Launch(); err != nil {
			return -1, err
		}
	}

	var cred *specs.User
	if u := context.String("user"); u != "" {
		c, err := passwd.Lookup(d.Rootfs(), u)
		if err != nil {
			return -1, err
		}
		cred = &c.User
	}

	args := []string(context.Args())
	argv := append([]string{args[0]}, args[1:]...)
	if arg0 := context.String("arg0"); arg0 != "" {
		argv[0] = arg0
	}
	cmd := &container.Command{
		Path: args[0],
		Args: argv,
		Dir:  context.String("cwd"),
	}

	// terminal signals are delivered to the command, keep us alive to
	// report its status
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGQUIT)
	defer signal.Stop(sigs)

	w, err := d.ExecCommand(cmd, cred)
	if err != nil {
		return -1, err
	}
	st, err := w.Wait()
	if err != nil {
		return -1, err
	}
	logrus.WithField("status", st.String()).Debug("command exited")
	return st.Code(), nil
}
