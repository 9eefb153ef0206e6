// Package logger implements a per-source in-memory log buffer.
//
// Detailed lines accumulate in a buffer while a source file is being
// processed.  If the file fails, the buffer is replayed so the operator sees
// the full decision trail; if the file succeeds, the buffer is dropped and a
// single short line is printed.
//
// Thread safety comes from a dedicated logger goroutine fed by a command
// channel; there are no mutexes.
package logger

import (
	"bytes"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

type action int

const (
	actBegin action = iota
	actAppend
	actSuccess
	actFlushErr
)

type cmd struct {
	act     action
	source  string
	message string    // for Append
	summary string    // for Success
	err     error     // for FlushErr
	when    time.Time // event timestamp, kept for ordering diagnostics
}

var ch = make(chan cmd, 128) // headroom for bursts while a file streams

// Begin starts buffering for a source file.
func Begin(source string) { ch <- cmd{act: actBegin, source: source, when: time.Now()} }

// Append adds one detailed line to the source's buffer.  Lines arriving for
// an unknown source are printed immediately.
func Append(source, msg string) {
	ch <- cmd{act: actAppend, source: source, message: msg, when: time.Now()}
}

// Success discards the buffer and prints a short completion line.
func Success(source, summary string) {
	ch <- cmd{act: actSuccess, source: source, summary: summary, when: time.Now()}
}

// FlushError replays the buffered lines followed by the final error.
func FlushError(source string, err error) {
	ch <- cmd{act: actFlushErr, source: source, err: err, when: time.Now()}
}

// Tee mirrors all log output into the given file in addition to stderr, so
// runs leave a reviewable trail next to the merged artifacts.
func Tee(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

func init() { go runloop() }

func runloop() {
	buffers := make(map[string]*bytes.Buffer)

	for c := range ch {
		switch c.act {
		case actBegin:
			buffers[c.source] = &bytes.Buffer{}

		case actAppend:
			if b := buffers[c.source]; b != nil {
				_, _ = b.WriteString(c.message + "\n")
			} else {
				log.Print(c.message)
			}

		case actSuccess:
			log.Printf("[%s] ✔ %s", c.source, c.summary)
			delete(buffers, c.source)

		case actFlushErr:
			if b := buffers[c.source]; b != nil {
				if b.Len() > 0 {
					for _, ln := range strings.Split(strings.TrimRight(b.String(), "\n"), "\n") {
						log.Print(ln)
					}
				}
				delete(buffers, c.source)
			}
			log.Printf("[%s][ERROR] %v", c.source, c.err)
		}
	}
}
