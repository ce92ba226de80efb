package distro

import (
	"bytes"
	"encoding/json"
	"os"
	"sync"
	"syscall"

	"github.com/moby/sys/atomicwriter"
	"github.com/pkg/errors"
)

// ErrUnsafeRunInfo is returned when the run info file is not owned by the
// expected user and group. The file is never trusted in that case.
var ErrUnsafeRunInfo = errors.New("distro: run info file is owned by an unexpected user or group")

// RunInfo records the running container
type RunInfo struct {
	Rootfs  string `json:"rootfs"`
	InitPid uint32 `json:"init_pid"`
}

// RunInfoStore persists the RunInfo of the running container
type RunInfoStore interface {
	// Load returns nil without error if there is no record
	Load() (*RunInfo, error)
	// Store replaces the record
	Store(*RunInfo) error
	// Delete removes the record, no error if there is no record
	Delete() error
}

// FileStore keeps RunInfo as JSON in a file owned by UID:GID (root:root)
type FileStore struct {
	Path string
	UID  int
	GID  int
}

// NewFileStore returns a FileStore for a root owned file at path
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the record
func (s *FileStore) Load() (*RunInfo, error) {
	f, err := os.Open(s.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open run info file")
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat run info file")
	}
	if err := s.checkOwner(fi); err != nil {
		return nil, err
	}
	info := new(RunInfo)
	if err := json.NewDecoder(f).Decode(info); err != nil {
		return nil, errors.Wrapf(err, "decode %s", s.Path)
	}
	return info, nil
}

// Store removes the existing record and writes the new one atomically
func (s *FileStore) Store(info *RunInfo) error {
	fi, err := os.Lstat(s.Path)
	switch {
	case err == nil:
		if err := s.checkOwner(fi); err != nil {
			return err
		}
		if err := os.Remove(s.Path); err != nil {
			return errors.Wrap(err, "remove the existing run info file")
		}
	case !os.IsNotExist(err):
		return errors.Wrap(err, "stat run info file")
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(info); err != nil {
		return errors.Wrap(err, "encode run info")
	}
	return errors.Wrap(atomicwriter.WriteFile(s.Path, buf.Bytes(), 0644), "write run info file")
}

// Delete removes the record
func (s *FileStore) Delete() error {
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove run info file")
	}
	return nil
}

func (s *FileStore) checkOwner(fi os.FileInfo) error {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return ErrUnsafeRunInfo
	}
	if int(st.Uid) != s.UID || int(st.Gid) != s.GID {
		return errors.Wrapf(ErrUnsafeRunInfo, "%s owned by %d:%d", s.Path, st.Uid, st.Gid)
	}
	return nil
}

// MemoryStore keeps RunInfo in memory
type MemoryStore struct {
	mu   sync.Mutex
	info *RunInfo
}

// Load returns a copy of the record
func (s *MemoryStore) Load() (*RunInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info == nil {
		return nil, nil
	}
	info := *s.info
	return &info, nil
}

// Store replaces the record
func (s *MemoryStore) Store(info *RunInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *info
	s.info = &c
	return nil
}

// Delete removes the record
func (s *MemoryStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = nil
	return nil
}
