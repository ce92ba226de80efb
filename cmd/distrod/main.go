package main

import (
	"os"

	"github.com/distrod-go/distrod/config"
	"github.com/distrod-go/distrod/distro"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var rootfsFlag = cli.StringFlag{
	Name:  "rootfs",
	Value: "",
	Usage: "path to the distro rootfs, the configured default if empty",
}

func main() {
	app := cli.NewApp()
	app.Name = "distrod"
	app.Usage = "run a Linux distro with systemd in its own namespaces"
	app.Version = "0.1"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Value: config.Path(), Usage: "path to the configuration file"},
		cli.BoolFlag{Name: "debug", Usage: "enable debug output in the logs"},
		cli.StringFlag{Name: "log-file", Value: "", Usage: "write logs to the file instead of stderr"},
	}
	app.Commands = []cli.Command{
		launchCommand,
		execCommand,
		stopCommand,
		statusCommand,
		initRootfsCommand,
		cleanupRootfsCommand,
	}
	app.Before = func(context *cli.Context) error {
		if context.GlobalBool("debug") {
			logrus.SetLevel(logrus.DebugLevel)
		}
		if path := context.GlobalString("log-file"); path != "" {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return err
			}
			logrus.SetOutput(f)
		}
		return nil
	}
	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

// loadManager loads the configuration given by the global flags
func loadManager(context *cli.Context) (*distro.Manager, error) {
	cfg, err := config.Load(context.GlobalString("config"))
	if err != nil {
		return nil, err
	}
	return distro.NewManager(cfg)
}

// refuseInside stops destructive commands issued from inside the distro
func refuseInside(m *distro.Manager, name string) error {
	if m.IsInsideRunningDistro() {
		return errors.Errorf("%s is not allowed inside the running distro", name)
	}
	return nil
}

// installedDistro returns the distro at the --rootfs flag or the default one
func installedDistro(context *cli.Context, m *distro.Manager) (*distro.Distro, error) {
	rootfs := context.String("rootfs")
	d, err := m.GetInstalledDistro(rootfs)
	if err != nil {
		return nil, err
	}
	if d == nil {
		if rootfs == "" {
			rootfs = m.Config().Distrod.DefaultDistroImage
		}
		return nil, errors.Errorf("no distro is installed at %s", rootfs)
	}
	return d, nil
}
