//go:build !linux

package main

import "os"

func deviceSize(fd *os.File) (int64, error) {
	st, err := fd.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}
