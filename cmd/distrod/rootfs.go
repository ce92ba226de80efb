package main

import (
	"github.com/distrod-go/distrod/distro"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

var initRootfsCommand = cli.Command{
	Name:      "init-rootfs",
	Usage:     "prepare a freshly installed rootfs to run under distrod",
	ArgsUsage: "<rootfs>",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "overwrite", Usage: "reset resolv.conf and disable conflicting systemd units"},
	},
	Action: func(context *cli.Context) error {
		if context.NArg() != 1 {
			return errors.New("init-rootfs requires exactly one rootfs path")
		}
		return distro.InitializeDistroRootfs(context.Args().First(), context.Bool("overwrite"))
	},
}

var cleanupRootfsCommand = cli.Command{
	Name:      "cleanup-rootfs",
	Usage:     "revert the changes made to /etc/environment of a rootfs",
	ArgsUsage: "<rootfs>",
	Action: func(context *cli.Context) error {
		if context.NArg() != 1 {
			return errors.New("cleanup-rootfs requires exactly one rootfs path")
		}
		m, err := loadManager(context)
		if err != nil {
			return err
		}
		return m.CleanupDistroRootfs(context.Args().First())
	},
}
