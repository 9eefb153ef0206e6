// Package fileintegrity captures filesystem metadata plus a SHA-256 content
// digest per source file, and can re-verify a file against a previously
// recorded digest.  A verification mismatch means the input set changed under
// the tool, which callers treat as fatal for the whole run.
package fileintegrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"
)

// Snapshot is the atomic metadata record taken once per source before
// processing starts.
type Snapshot struct {
	CreationTime     time.Time
	ModificationTime time.Time
	Size             int64
	SHA256           string
}

// Take reads the file's metadata and streams its contents through SHA-256.
// Filesystem errors fail soft: callers get the zero Snapshot and log the
// error rather than aborting the run.
func Take(path string) (Snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("stat %s: %w", path, err)
	}
	sum, err := hashFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		CreationTime:     creationTime(info),
		ModificationTime: info.ModTime(),
		Size:             info.Size(),
		SHA256:           sum,
	}, nil
}

// Verify recomputes the file's digest and compares it with the expected
// value.  A false result indicates the file changed between metadata capture
// and use; the caller must abort before writing any output.
func Verify(path, expected string) (bool, error) {
	sum, err := hashFile(path)
	if err != nil {
		return false, err
	}
	return sum == expected, nil
}

// hashFile streams the whole file through the digest in fixed-size chunks so
// arbitrarily large inputs never land in memory at once.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, 4096)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
