package main

import (
	"fmt"

	"github.com/urfave/cli"
)

var launchCommand = cli.Command{
	Name:  "launch",
	Usage: "launch the distro in a new container",
	Flags: []cli.Flag{
		rootfsFlag,
	},
	Action: func(context *cli.Context) error {
		m, err := loadManager(context)
		if err != nil {
			return err
		}
		if err := refuseInside(m, "launch"); err != nil {
			return err
		}
		running, err := m.GetRunningDistro()
		if err != nil {
			return err
		}
		if running != nil {
			fmt.Printf("%s is already running\n", running.Rootfs())
			return nil
		}
		d, err := installedDistro(context, m)
		if err != nil {
			return err
		}
		if err := d.Launch(); err != nil {
			return err
		}
		pid, _ := d.InitPid()
		fmt.Printf("%s is launched (init pid %d)\n", d.Rootfs(), pid)
		return nil
	},
}

var stopCommand = cli.Command{
	Name:  "stop",
	Usage: "stop the running distro",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "sigkill,9", Usage: "kill init instead of asking it to power off"},
	},
	Action: func(context *cli.Context) error {
		m, err := loadManager(context)
		if err != nil {
			return err
		}
		if err := refuseInside(m, "stop"); err != nil {
			return err
		}
		d, err := m.GetRunningDistro()
		if err != nil {
			return err
		}
		if d == nil {
			fmt.Println("no distro is running")
			return nil
		}
		return d.Stop(context.Bool("sigkill"))
	},
}

var statusCommand = cli.Command{
	Name:  "status",
	Usage: "show the running distro",
	Action: func(context *cli.Context) error {
		m, err := loadManager(context)
		if err != nil {
			return err
		}
		d, err := m.GetRunningDistro()
		if err != nil {
			return err
		}
		if d == nil {
			fmt.Println("no distro is running")
			return nil
		}
		pid, err := d.InitPid()
		if err != nil {
			return err
		}
		fmt.Printf("rootfs:   %s\ninit pid: %d\ninside:   %v\n", d.Rootfs(), pid, m.IsInsideRunningDistro())
		return nil
	},
}
