//go:build !linux

package fileintegrity

import (
	"os"
	"time"
)

// creationTime approximates the creation timestamp with the modification
// time on platforms where the raw stat layout differs.
func creationTime(info os.FileInfo) time.Time {
	return info.ModTime()
}
