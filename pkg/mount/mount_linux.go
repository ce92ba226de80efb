package mount

import (
	"fmt"
	"syscall"
)

func (m Mount) String() string {
	switch {
	case m.IsBindMount():
		flag := "rw"
		if m.IsReadOnly() {
			flag = "ro"
		}
		if m.Flags&syscall.MS_REC == syscall.MS_REC {
			return fmt.Sprintf("rbind[%s:%s:%s]", m.Source, m.Target, flag)
		}
		return fmt.Sprintf("bind[%s:%s:%s]", m.Source, m.Target, flag)

	case m.FsType == "tmpfs":
		return fmt.Sprintf("tmpfs[%s]", m.Target)

	case m.FsType == "proc", m.FsType == "sysfs":
		return fmt.Sprintf("%s[%s]", m.FsType, m.Target)

	default:
		return fmt.Sprintf("mount[%s,%s:%s:%x,%s]", m.FsType, m.Source, m.Target, m.Flags, m.Data)
	}
}
