package types

import "syscall"

// SyscallInterface is the tiny syscall surface the chroot helper needs,
// separated so tests can run without privileges.
type SyscallInterface interface {
	Chroot(path string) error
	Chdir(path string) error
	Sync()
}

type RealSyscall struct{}

func (r *RealSyscall) Chroot(path string) error {
	return syscall.Chroot(path)
}

func (r *RealSyscall) Chdir(path string) error {
	return syscall.Chdir(path)
}

func (r *RealSyscall) Sync() {
	syscall.Sync()
}
