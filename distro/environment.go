package distro

import (
	"os"
	"path/filepath"

	"github.com/distrod-go/distrod/pkg/envfile"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const envFilePath = "etc/environment"

// setupEnvFile merges the host environment into /etc/environment of rootfs
// and prefixes the bin dir to its PATH
func (m *Manager) setupEnvFile(rootfs string) error {
	p := filepath.Join(rootfs, envFilePath)
	f, err := envfile.Open(p)
	if err != nil {
		return errors.Wrapf(err, "open %s", p)
	}

	env, err := m.hostEnv.Collect()
	if err != nil {
		return errors.Wrap(err, "collect the WSL environment")
	}
	for k, v := range env {
		if err := f.Put(k, v); err != nil {
			logrus.WithError(err).WithField("key", k).Warn("distro: skip host environment variable")
		}
	}

	binDir := m.cfg.Distrod.BinDir
	path, _ := f.Get("PATH")
	if !pathContains(path, binDir) {
		if err := f.Put("PATH", AddBinDirToPath(binDir, path)); err != nil {
			return errors.Wrap(err, "add the bin dir to PATH")
		}
	}
	return errors.Wrap(f.Save(), "save the environment file")
}

// cleanupEnvFile reverts setupEnvFile
func (m *Manager) cleanupEnvFile(rootfs string) error {
	p := filepath.Join(rootfs, envFilePath)
	if _, err := os.Stat(p); os.IsNotExist(err) {
		return nil
	}
	f, err := envfile.Open(p)
	if err != nil {
		return errors.Wrapf(err, "open %s", p)
	}

	env, err := m.hostEnv.Collect()
	if err != nil {
		return errors.Wrap(err, "collect the WSL environment")
	}
	for k := range env {
		f.Remove(k)
	}

	binDir := m.cfg.Distrod.BinDir
	if path, ok := f.Get("PATH"); ok && pathContains(path, binDir) {
		if path = RemoveBinDirFromPath(binDir, path); path == "" {
			f.Remove("PATH")
		} else if err := f.Put("PATH", path); err != nil {
			return errors.Wrap(err, "remove the bin dir from PATH")
		}
	}
	return errors.Wrap(f.Save(), "save the environment file")
}
