package datasets

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// session owns at most one open output handle for the duration of an
// export. Every exit path closes it, including row-processing errors.
type session struct {
	states *StateRegistry

	path string
	file *os.File
	gz   *gzip.Writer
	bw   *bufio.Writer
}

func newSession(states *StateRegistry) *session {
	return &session{states: states}
}

// open makes path the current output file, closing any previous one. A
// file whose tracked status is NOT_EXISTS is truncated and gets the header
// line; a tracked file is appended to.
func (s *session) open(path, header string) error {
	if s.path == path && s.file != nil {
		return nil
	}
	if err := s.Close(); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %v", ErrOutputIO, err)
		}
	}

	state := s.states.Get(path)
	flags := os.O_CREATE | os.O_WRONLY
	fresh := state.Status == StatusNotExists
	if fresh {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("%w: failed to open %s: %v", ErrOutputIO, path, err)
	}

	s.path = path
	s.file = f
	if isCompressed(path) {
		s.gz = gzip.NewWriter(f)
		s.bw = bufio.NewWriter(s.gz)
	} else {
		s.gz = nil
		s.bw = bufio.NewWriter(f)
	}

	// Header once, only for a new file.
	if fresh && header != "" {
		if _, err := s.bw.WriteString(header + "\n"); err != nil {
			return fmt.Errorf("%w: failed to write header to %s: %v", ErrOutputIO, path, err)
		}
	}
	state.Status = StatusExists

	return nil
}

func (s *session) writeLine(line string) error {
	if _, err := s.bw.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("%w: failed to write to %s: %v", ErrOutputIO, s.path, err)
	}
	return nil
}

// Close flushes and releases the current handle. Safe to call twice.
func (s *session) Close() error {
	if s.file == nil {
		return nil
	}
	var firstErr error
	if err := s.bw.Flush(); err != nil {
		firstErr = err
	}
	if s.gz != nil {
		if err := s.gz.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.file = nil
	s.gz = nil
	s.bw = nil
	s.path = ""
	if firstErr != nil {
		return fmt.Errorf("%w: %v", ErrOutputIO, firstErr)
	}
	return nil
}

// isCompressed recognizes destinations that are transparently piped
// through a compressing writer.
func isCompressed(path string) bool {
	return strings.HasSuffix(path, ".gz")
}
