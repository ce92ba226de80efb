package mount

// NewDistroBuilder creates the builder for a full distro rootfs.
// Targets are relative to the new root.
func NewDistroBuilder() *Builder {
	return NewBuilder().
		WithProc("proc").
		WithSysfs("sys").
		WithRecursiveBind("/dev", "dev")
}
