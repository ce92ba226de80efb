// Package mountinfo lists the mount points of the current process
package mountinfo

import (
	"strings"

	"github.com/moby/sys/mountinfo"
	"github.com/pkg/errors"
)

// Entry is a mount point of the current mount namespace
type Entry struct {
	Path    string
	Source  string
	FsType  string
	Options string
}

// Lister produces the mount table
type Lister interface {
	Entries() ([]Entry, error)
}

// ListerFunc adapts a function to Lister
type ListerFunc func() ([]Entry, error)

// Entries calls f
func (f ListerFunc) Entries() ([]Entry, error) {
	return f()
}

// Self reads /proc/self/mountinfo
var Self Lister = ListerFunc(GetMountEntries)

// GetMountEntries returns every mount point of the current process
func GetMountEntries() ([]Entry, error) {
	mounts, err := mountinfo.GetMounts(nil)
	if err != nil {
		return nil, errors.Wrap(err, "read mountinfo")
	}
	entries := make([]Entry, 0, len(mounts))
	for _, m := range mounts {
		entries = append(entries, Entry{
			Path:    m.Mountpoint,
			Source:  m.Source,
			FsType:  m.FSType,
			Options: m.Options,
		})
	}
	return entries, nil
}

// HasPrefix reports whether any mount point lies under prefix
func HasPrefix(entries []Entry, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	for _, e := range entries {
		if e.Path == prefix || strings.HasPrefix(e.Path, prefix+"/") {
			return true
		}
	}
	return false
}
