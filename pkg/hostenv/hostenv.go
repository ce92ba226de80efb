// Package hostenv collects the environment variables injected by the outer
// virtualization layer (WSL) so that they can be made visible inside the
// container.
package hostenv

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// WSLInterop is the variable pointing to the WSL interop socket
const WSLInterop = "WSL_INTEROP"

// DefaultKeys are the variables WSL injects into the processes it starts
var DefaultKeys = []string{
	WSLInterop,
	"WSL_DISTRO_NAME",
	"WSLENV",
	"DISPLAY",
	"WAYLAND_DISPLAY",
	"PULSE_SERVER",
}

// DefaultInteropGlob matches the interop sockets created by WSL
const DefaultInteropGlob = "/run/WSL/*_interop"

// Collector produces the host injected variables
type Collector interface {
	Collect() (map[string]string, error)
}

// Static is a fixed set of variables
type Static map[string]string

// Collect returns a copy of s
func (s Static) Collect() (map[string]string, error) {
	ret := make(map[string]string, len(s))
	for k, v := range s {
		ret[k] = v
	}
	return ret, nil
}

// WSL collects Keys from the process environment
type WSL struct {
	Keys []string

	// InteropGlob locates the interop socket when WSL_INTEROP is not set
	InteropGlob string

	// LookupEnv defaults to os.LookupEnv
	LookupEnv func(string) (string, bool)
}

// NewWSL returns a WSL collector of keys, DefaultKeys if empty
func NewWSL(keys []string) *WSL {
	if len(keys) == 0 {
		keys = DefaultKeys
	}
	return &WSL{
		Keys:        keys,
		InteropGlob: DefaultInteropGlob,
		LookupEnv:   os.LookupEnv,
	}
}

// Collect returns the variables that are set
func (w *WSL) Collect() (map[string]string, error) {
	lookup := w.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	ret := make(map[string]string)
	for _, k := range w.Keys {
		if v, ok := lookup(k); ok {
			ret[k] = v
			continue
		}
		if k == WSLInterop && w.InteropGlob != "" {
			s, err := findInteropSocket(w.InteropGlob)
			if err != nil {
				return nil, err
			}
			if s != "" {
				ret[k] = s
			}
		}
	}
	return ret, nil
}

// findInteropSocket returns the most recently created interop socket
func findInteropSocket(pattern string) (string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", errors.Wrapf(err, "search interop socket %s", pattern)
	}
	type socket struct {
		path string
		mod  int64
	}
	var sockets []socket
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil || fi.Mode()&os.ModeSocket == 0 {
			continue
		}
		sockets = append(sockets, socket{m, fi.ModTime().UnixNano()})
	}
	if len(sockets) == 0 {
		return "", nil
	}
	sort.Slice(sockets, func(i, j int) bool { return sockets[i].mod > sockets[j].mod })
	return sockets[0].path, nil
}
