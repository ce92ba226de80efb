package distro

import (
	"strings"

	"github.com/distrod-go/distrod/config"
	"github.com/distrod-go/distrod/container"
	"github.com/distrod-go/distrod/pkg/mount"
	"github.com/distrod-go/distrod/pkg/seccomp"
	"github.com/pkg/errors"
)

// Mounts returns the distro mounts followed by the extra mounts of the
// container section. Targets are made relative to the new root.
func Mounts(cfg *config.Config) (*mount.Builder, error) {
	b := mount.NewDistroBuilder()
	for i, m := range cfg.Container.Mounts {
		target := strings.TrimPrefix(m.Target, "/")
		switch m.Type {
		case config.MountBind:
			b.WithBind(m.Source, target, m.ReadOnly)
		case config.MountRBind:
			b.WithRecursiveBind(m.Source, target)
		case config.MountTmpfs:
			b.WithTmpfs(target, m.Data)
		default:
			return nil, errors.Errorf("container.mounts[%d]: unknown type %q", i, m.Type)
		}
	}
	return b, nil
}

// ContainerOptions converts the container and seccomp sections of cfg
func ContainerOptions(cfg *config.Config) (container.Options, error) {
	sig, err := cfg.StopSignal()
	if err != nil {
		return container.Options{}, errors.Wrap(err, "container.stop_signal")
	}
	opts := container.Options{
		Init:       cfg.Container.Init,
		StopSignal: sig,
		Stderr:     cfg.Container.Stderr,
	}
	if len(cfg.Container.Mounts) > 0 {
		if opts.Mounts, err = Mounts(cfg); err != nil {
			return container.Options{}, err
		}
	}
	if len(cfg.Seccomp.Deny) > 0 {
		action, err := seccomp.ParseAction(cfg.Seccomp.Action)
		if err != nil {
			return container.Options{}, errors.Wrap(err, "seccomp.action")
		}
		opts.Seccomp = &seccomp.Builder{
			Deny:       cfg.Seccomp.Deny,
			DenyAction: action,
			Default:    seccomp.ActionAllow,
		}
	}
	return opts, nil
}
