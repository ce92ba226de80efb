// Package config loads the distrod configuration file
package config

import (
	"os"
	"path"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath of the configuration file
	DefaultPath = "/etc/distrod/config.yaml"

	// PathEnv overrides DefaultPath
	PathEnv = "DISTROD_CONFIG"

	// sigrtmin as seen by C programs, the first two are reserved by glibc
	sigrtmin = 34
)

// Config is the top-level configuration
type Config struct {
	Distrod   Distrod   `yaml:"distrod"`
	Container Container `yaml:"container"`
	Seccomp   Seccomp   `yaml:"seccomp"`
	WSL       WSL       `yaml:"wsl"`
}

// Distrod holds the paths shared by every invocation
type Distrod struct {
	DefaultDistroImage string `yaml:"default_distro_image"`
	BinDir             string `yaml:"bin_dir"`
	RunInfoPath        string `yaml:"run_info_path"`
	OldRootPath        string `yaml:"old_root_path"`
}

// Container configures the init process
type Container struct {
	Init       []string `yaml:"init,omitempty"`
	StopSignal string   `yaml:"stop_signal,omitempty"`
	Stderr     bool     `yaml:"stderr,omitempty"`
	Mounts     []Mount  `yaml:"mounts,omitempty"`
}

// Mount types
const (
	MountBind  = "bind"
	MountRBind = "rbind"
	MountTmpfs = "tmpfs"
)

// Mount is performed in the container after the distro mounts. Target is
// the path inside the container, Source the path on the host. Bind mounts
// of a missing source are skipped.
type Mount struct {
	Type     string `yaml:"type"`
	Source   string `yaml:"source,omitempty"`
	Target   string `yaml:"target"`
	ReadOnly bool   `yaml:"readonly,omitempty"`
	Data     string `yaml:"data,omitempty"`
}

// Seccomp holds the syscall deny list
type Seccomp struct {
	Deny   []string `yaml:"deny,omitempty"`
	Action string   `yaml:"action,omitempty"`
}

// WSL configures the host environment collection
type WSL struct {
	EnvKeys []string `yaml:"env_keys,omitempty"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Distrod: Distrod{
			DefaultDistroImage: "/var/lib/distrod/distro",
			BinDir:             "/opt/distrod/bin",
			RunInfoPath:        "/var/run/distrod.json",
			OldRootPath:        "/mnt/distrod_root",
		},
		Container: Container{
			Init:       []string{"/sbin/init"},
			StopSignal: "SIGRTMIN+4",
		},
	}
}

// Path returns the configuration path, DISTROD_CONFIG if set
func Path() string {
	if p := os.Getenv(PathEnv); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrapf(err, "parse config file %s", path)
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config file %s", path)
	}
	return c, nil
}

// Validate checks the values which are parsed lazily
func (c *Config) Validate() error {
	if c.Distrod.BinDir == "" {
		return errors.New("distrod.bin_dir is empty")
	}
	if strings.Contains(c.Distrod.BinDir, ":") {
		return errors.Errorf("distrod.bin_dir %q contains ':'", c.Distrod.BinDir)
	}
	if c.Distrod.RunInfoPath == "" {
		return errors.New("distrod.run_info_path is empty")
	}
	if !strings.HasPrefix(c.Distrod.OldRootPath, "/") {
		return errors.Errorf("distrod.old_root_path %q is not absolute", c.Distrod.OldRootPath)
	}
	if _, err := c.StopSignal(); err != nil {
		return err
	}
	for i, m := range c.Container.Mounts {
		if err := m.validate(); err != nil {
			return errors.Wrapf(err, "container.mounts[%d]", i)
		}
	}
	return nil
}

func (m Mount) validate() error {
	if !path.IsAbs(m.Target) || path.Clean(m.Target) != m.Target || m.Target == "/" {
		return errors.Errorf("target %q is not a clean absolute path", m.Target)
	}
	switch m.Type {
	case MountBind, MountRBind:
		if !path.IsAbs(m.Source) {
			return errors.Errorf("source %q is not absolute", m.Source)
		}
		if m.ReadOnly && m.Type == MountRBind {
			return errors.New("rbind can not be readonly")
		}
	case MountTmpfs:
	default:
		return errors.Errorf("unknown type %q", m.Type)
	}
	return nil
}

// StopSignal returns the parsed container.stop_signal, 0 if unset
func (c *Config) StopSignal() (syscall.Signal, error) {
	if c.Container.StopSignal == "" {
		return 0, nil
	}
	return ParseSignal(c.Container.StopSignal)
}

// ParseSignal parses "SIGTERM", "TERM", "SIGRTMIN+4" or a number
func ParseSignal(s string) (syscall.Signal, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 || n > 64 {
			return 0, errors.Errorf("signal %d out of range", n)
		}
		return syscall.Signal(n), nil
	}
	name := strings.ToUpper(s)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	if rt, ok := strings.CutPrefix(name, "SIGRTMIN"); ok {
		off := 0
		if rt != "" {
			var err error
			if off, err = strconv.Atoi(strings.TrimPrefix(rt, "+")); err != nil || off < 0 {
				return 0, errors.Errorf("invalid signal %q", s)
			}
		}
		if sigrtmin+off > 64 {
			return 0, errors.Errorf("signal %q out of range", s)
		}
		return syscall.Signal(sigrtmin + off), nil
	}
	if sig := unix.SignalNum(name); sig != 0 {
		return sig, nil
	}
	return 0, errors.Errorf("unknown signal %q", s)
}
