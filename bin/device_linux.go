//go:build linux

package main

import (
	"os"

	errors "github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Block devices report a zero size from stat, ask the kernel.
func deviceSize(fd *os.File) (int64, error) {
	st, err := fd.Stat()
	if err != nil {
		return 0, err
	}

	if st.Mode()&os.ModeDevice == 0 {
		return st.Size(), nil
	}

	size, err := unix.IoctlGetInt(int(fd.Fd()), unix.BLKGETSIZE64)
	if err != nil {
		return 0, errors.Wrapf(err, "BLKGETSIZE64 on %v", fd.Name())
	}
	return int64(size), nil
}
