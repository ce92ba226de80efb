// Package passwd resolves a user name or id against the passwd and group
// databases of a rootfs.
package passwd

import (
	"path/filepath"

	mobyuser "github.com/moby/sys/user"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/pkg/errors"
)

// Credential is the resolved identity of a user inside the rootfs
type Credential struct {
	specs.User
	Home string
}

// Lookup resolves user ("name", "uid", "name:group", "uid:gid") with the
// databases under rootfs. The root user is assumed when user is empty.
func Lookup(rootfs, user string) (*Credential, error) {
	defaults := &mobyuser.ExecUser{Home: "/"}
	passwdPath := filepath.Join(rootfs, "etc/passwd")
	groupPath := filepath.Join(rootfs, "etc/group")

	u, err := mobyuser.GetExecUserPath(user, defaults, passwdPath, groupPath)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve user %q in %s", user, rootfs)
	}
	cred := &Credential{
		User: specs.User{
			UID: uint32(u.Uid),
			GID: uint32(u.Gid),
		},
		Home: u.Home,
	}
	for _, g := range u.Sgids {
		cred.AdditionalGids = append(cred.AdditionalGids, uint32(g))
	}
	return cred, nil
}
