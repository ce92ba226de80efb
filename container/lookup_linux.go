package container

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	errNotFound = errors.New("executable file not found in $PATH")
	errNoPath   = errors.New("no PATH environment variable provided for look up")
)

// findExecutable checks file under root. Absolute links are resolved
// against the host root by the kernel, so they are accepted as is and
// left to execve inside the container.
func findExecutable(root, file string) error {
	p := filepath.Join(root, file)
	d, err := os.Stat(p)
	if err != nil {
		if l, lerr := os.Lstat(p); lerr == nil && l.Mode()&fs.ModeSymlink != 0 {
			return nil
		}
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0111 != 0 {
		return nil
	}
	return fs.ErrPermission
}

// lookPath searches name in the PATH of env with every directory resolved
// under root. The returned path is relative to root.
func lookPath(root, name string, env []string) (string, error) {
	// don't look if a path is provided
	if strings.Contains(name, "/") {
		return name, nil
	}

	path, err := findPath(env)
	if err != nil {
		return "", err
	}
	for _, dir := range path {
		if dir == "" {
			dir = "."
		}
		p := filepath.Join(dir, name)
		if err := findExecutable(root, p); err == nil {
			return p, nil
		}
	}
	return "", errNotFound
}

func findPath(env []string) ([]string, error) {
	// find PATH=
	const pathPrefix = "PATH="
	for i := len(env) - 1; i >= 0; i-- {
		s := env[i]
		if strings.HasPrefix(s, pathPrefix) {
			return filepath.SplitList(s[len(pathPrefix):]), nil
		}
	}
	return nil, errNoPath
}
