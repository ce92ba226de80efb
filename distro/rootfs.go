package distro

import (
	"os"
	"path/filepath"

	"github.com/distrod-go/distrod/pkg/systemdunit"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// units that fight with the network set up by WSL
	unitsToDisable = []string{
		"dhcpcd.service",
		"NetworkManager.service",
		"multipathd.service",
	}

	// units that fail inside a container
	unitsToMask = []string{
		"systemd-remount-fs.service",
		"systemd-modules-load.service",
	}

	hostname = os.Hostname
)

func checkDir(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "stat %s", path)
	}
	if !fi.IsDir() {
		return errors.Wrap(ErrNotDirectory, path)
	}
	return nil
}

// InitializeDistroRootfs prepares a freshly installed rootfs to run under
// distrod. Files a user may have edited (etc/resolv.conf) and systemd units
// are only touched when overwritesPotentialUserfiles is set.
func InitializeDistroRootfs(path string, overwritesPotentialUserfiles bool) error {
	if err := checkDir(path); err != nil {
		return err
	}

	// remove systemd network configurations
	networks, err := filepath.Glob(filepath.Join(path, "etc/systemd/network/*.network"))
	if err != nil {
		return errors.Wrap(err, "search systemd network files")
	}
	for _, n := range networks {
		if err := os.Remove(n); err != nil {
			return errors.Wrapf(err, "remove %s", n)
		}
	}

	// echo hostname > etc/hostname
	name, err := hostname()
	if err != nil {
		return errors.Wrap(err, "get hostname")
	}
	etc := filepath.Join(path, "etc")
	if err := os.MkdirAll(etc, 0755); err != nil {
		return errors.Wrapf(err, "create %s", etc)
	}
	hostnamePath := filepath.Join(etc, "hostname")
	if err := os.WriteFile(hostnamePath, []byte(name+"\n"), 0644); err != nil {
		return errors.Wrapf(err, "write hostname to %s", hostnamePath)
	}

	if !overwritesPotentialUserfiles {
		return nil
	}

	// touch an empty resolv.conf so that WSL overwrites it
	resolvConf := filepath.Join(etc, "resolv.conf")
	if err := os.Remove(resolvConf); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove %s", resolvConf)
	}
	f, err := os.Create(resolvConf)
	if err != nil {
		return errors.Wrapf(err, "touch %s", resolvConf)
	}
	f.Close()

	for _, u := range unitsToDisable {
		if err := systemdunit.NewDisabler(path, u).Disable(); err != nil {
			logrus.WithError(err).WithField("unit", u).Warn("distro: failed to disable unit")
		}
	}
	for _, u := range unitsToMask {
		if err := systemdunit.NewDisabler(path, u).Mask(); err != nil {
			logrus.WithError(err).WithField("unit", u).Warn("distro: failed to mask unit")
		}
	}
	return nil
}

// CleanupDistroRootfs reverts the changes made to /etc/environment of path
func (m *Manager) CleanupDistroRootfs(path string) error {
	if err := checkDir(path); err != nil {
		return err
	}
	return errors.Wrap(m.cleanupEnvFile(path), "cleanup /etc/environment")
}
