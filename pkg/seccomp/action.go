package seccomp

import (
	"fmt"

	libseccomp "github.com/elastic/go-seccomp-bpf"
)

// Action is seccomp trap action
type Action uint32

// Action defines seccomp action to the syscall
// default value 0 is invalid
const (
	ActionAllow Action = iota + 1
	ActionErrno
	ActionKill
	ActionLog
)

// ParseAction converts a configuration string into Action
func ParseAction(s string) (Action, error) {
	switch s {
	case "allow":
		return ActionAllow, nil
	case "", "errno":
		return ActionErrno, nil
	case "kill":
		return ActionKill, nil
	case "log":
		return ActionLog, nil
	}
	return 0, fmt.Errorf("seccomp: unknown action %q", s)
}

func (a Action) toLibseccomp() libseccomp.Action {
	switch a {
	case ActionAllow:
		return libseccomp.ActionAllow
	case ActionErrno:
		return libseccomp.ActionErrno
	case ActionLog:
		return libseccomp.ActionLog
	default:
		return libseccomp.ActionKillProcess
	}
}
