package seccomp

import (
	"fmt"
	"syscall"

	libseccomp "github.com/elastic/go-seccomp-bpf"
	"golang.org/x/net/bpf"
)

// Builder is used to build a deny list filter, everything not listed
// in Deny is handled by Default
type Builder struct {
	Deny       []string
	DenyAction Action
	Default    Action
}

// Build builds the filter, nil filter means no filter is needed
func (b *Builder) Build() (Filter, error) {
	if len(b.Deny) == 0 {
		return nil, nil
	}
	denyAction, defaultAction := b.DenyAction, b.Default
	if denyAction == 0 {
		denyAction = ActionErrno
	}
	if defaultAction == 0 {
		defaultAction = ActionAllow
	}
	policy := libseccomp.Policy{
		DefaultAction: defaultAction.toLibseccomp(),
		Syscalls: []libseccomp.SyscallGroup{
			{
				Names:  b.Deny,
				Action: denyAction.toLibseccomp(),
			},
		},
	}
	insts, err := policy.Assemble()
	if err != nil {
		return nil, fmt.Errorf("seccomp: assemble policy %v", err)
	}
	raw, err := bpf.Assemble(insts)
	if err != nil {
		return nil, fmt.Errorf("seccomp: assemble bpf %v", err)
	}
	filter := make(Filter, 0, len(raw))
	for _, r := range raw {
		filter = append(filter, syscall.SockFilter{
			Code: r.Op,
			Jt:   r.Jt,
			Jf:   r.Jf,
			K:    r.K,
		})
	}
	return filter, nil
}
