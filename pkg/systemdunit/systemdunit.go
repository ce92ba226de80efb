// Package systemdunit disables and masks systemd units of an offline rootfs,
// the same way systemctl does for a root directory.
package systemdunit

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/coreos/go-systemd/v22/unit"
	"github.com/pkg/errors"
)

const (
	configDir = "etc/systemd/system"
	devNull   = "/dev/null"
)

// unit search path relative to the rootfs, in priority order
var searchPath = []string{
	"etc/systemd/system",
	"run/systemd/system",
	"usr/local/lib/systemd/system",
	"usr/lib/systemd/system",
	"lib/systemd/system",
}

// Disabler disables or masks one unit of a rootfs
type Disabler struct {
	Rootfs string
	Name   string
}

// NewDisabler returns a Disabler of unit name in rootfs
func NewDisabler(rootfs, name string) *Disabler {
	return &Disabler{Rootfs: rootfs, Name: name}
}

// Disable removes the symlinks created by enabling the unit
func (d *Disabler) Disable() error {
	links, err := d.installedLinks()
	if err != nil {
		return err
	}
	for _, l := range links {
		if err := os.Remove(l); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "disable %s", d.Name)
		}
	}
	return nil
}

// Mask links the unit to /dev/null so that it can not be started
func (d *Disabler) Mask() error {
	dir := filepath.Join(d.Rootfs, configDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "mask %s", d.Name)
	}
	p := filepath.Join(dir, d.Name)
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "mask %s", d.Name)
	}
	return errors.Wrapf(os.Symlink(devNull, p), "mask %s", d.Name)
}

// installedLinks returns the paths of the links under etc/systemd/system
// that enable the unit
func (d *Disabler) installedLinks() ([]string, error) {
	root := filepath.Join(d.Rootfs, configDir)
	var links []string
	for _, pattern := range []string{"*.wants", "*.requires"} {
		m, err := filepath.Glob(filepath.Join(root, pattern, d.Name))
		if err != nil {
			return nil, errors.Wrapf(err, "search links of %s", d.Name)
		}
		links = append(links, m...)
	}

	opts, err := d.installOptions()
	if err != nil {
		return nil, err
	}
	for _, o := range opts {
		for _, v := range strings.Fields(o.Value) {
			switch o.Name {
			case "WantedBy":
				links = append(links, filepath.Join(root, v+".wants", d.Name))
			case "RequiredBy":
				links = append(links, filepath.Join(root, v+".requires", d.Name))
			case "Alias":
				links = append(links, filepath.Join(root, v))
			}
		}
	}
	return dedup(links), nil
}

// installOptions reads the [Install] section of the unit file, nil if the
// unit file does not exist
func (d *Disabler) installOptions() ([]*unit.UnitOption, error) {
	p, err := d.unitFile()
	if err != nil || p == "" {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", p)
	}
	defer f.Close()

	opts, err := unit.DeserializeOptions(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", p)
	}
	var install []*unit.UnitOption
	for _, o := range opts {
		if o.Section == "Install" {
			install = append(install, o)
		}
	}
	return install, nil
}

// unitFile finds the unit file, links are resolved inside the rootfs
func (d *Disabler) unitFile() (string, error) {
	for _, dir := range searchPath {
		p := filepath.Join(d.Rootfs, dir, d.Name)
		fi, err := os.Lstat(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return "", errors.Wrapf(err, "stat %s", p)
		}
		if fi.Mode()&os.ModeSymlink == 0 {
			return p, nil
		}
		target, err := os.Readlink(p)
		if err != nil {
			return "", errors.Wrapf(err, "readlink %s", p)
		}
		if target == devNull {
			// masked
			return "", nil
		}
		if filepath.IsAbs(target) {
			target = filepath.Join(d.Rootfs, target)
		} else {
			target = filepath.Join(filepath.Dir(p), target)
		}
		if _, err := os.Stat(target); err == nil {
			return target, nil
		}
	}
	return "", nil
}

func dedup(s []string) []string {
	seen := make(map[string]bool, len(s))
	ret := s[:0]
	for _, v := range s {
		if !seen[v] {
			seen[v] = true
			ret = append(ret, v)
		}
	}
	return ret
}
