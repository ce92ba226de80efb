package distro

import "strings"

// AddBinDirToPath prefixes binDir to the colon separated path. It is a no-op
// if binDir is already an element of path.
func AddBinDirToPath(binDir, path string) string {
	if path == "" {
		return binDir
	}
	if pathContains(path, binDir) {
		return path
	}
	return binDir + ":" + path
}

// RemoveBinDirFromPath drops every binDir element of path, the inverse of
// AddBinDirToPath
func RemoveBinDirFromPath(binDir, path string) string {
	if path == binDir {
		return ""
	}
	elems := strings.Split(path, ":")
	kept := elems[:0]
	for _, e := range elems {
		if e != binDir {
			kept = append(kept, e)
		}
	}
	return strings.Join(kept, ":")
}

func pathContains(path, dir string) bool {
	for _, e := range strings.Split(path, ":") {
		if e == dir {
			return true
		}
	}
	return false
}
