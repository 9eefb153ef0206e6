//go:build linux

package fileintegrity

import (
	"os"
	"syscall"
	"time"
)

// creationTime returns the inode change time, the closest thing Linux offers
// to a creation timestamp without statx plumbing.  Falls back to the
// modification time when the raw stat is unavailable.
func creationTime(info os.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
	}
	return info.ModTime()
}
