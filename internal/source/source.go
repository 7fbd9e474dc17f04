// Package source supplies crawl items as newline-delimited lines.
package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/JakeFAU/addrcrawl/internal/crawler"
)

// MaxLineBytes bounds a single input line.
const MaxLineBytes = 1 << 20

// OversizedLine replaces a line longer than MaxLineBytes. It never parses as
// a URL, so the item ends as malformed and reading continues with the next
// line.
const OversizedLine = "\x00oversized line"

const readBufferSize = 64 * 1024

// Lines reads an input one line at a time. Every line, blank ones included,
// is one item. Line endings (\n or \r\n) are stripped.
type Lines struct {
	r         *bufio.Reader
	text      string
	err       error
	done      bool
	oversized int
	closer    io.Closer
}

// Open opens path for line-by-line reading. A missing or unreadable file
// wraps crawler.ErrInputUnavailable.
func Open(path string) (*Lines, error) {
	f, err := os.Open(path) // #nosec G304 -- the input path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrInputUnavailable, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: stat %s: %w", crawler.ErrInputUnavailable, path, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", crawler.ErrInputUnavailable, path)
	}
	lines := FromReader(f)
	lines.closer = f
	return lines, nil
}

// FromReader wraps r without taking ownership of it.
func FromReader(r io.Reader) *Lines {
	return &Lines{r: bufio.NewReaderSize(r, readBufferSize)}
}

// Scan advances to the next line. It returns false at end of input or after
// a read error, which Err then reports.
func (l *Lines) Scan() bool {
	if l.done {
		return false
	}
	var (
		buf     []byte
		started bool
		tooLong bool
	)
	for {
		chunk, more, err := l.r.ReadLine()
		if err != nil {
			l.done = true
			if !errors.Is(err, io.EOF) {
				l.err = fmt.Errorf("read input: %w", err)
			}
			if !started {
				return false
			}
			break
		}
		started = true
		if !tooLong {
			if len(buf)+len(chunk) > MaxLineBytes {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !more {
			break
		}
	}
	if tooLong {
		l.oversized++
		l.text = OversizedLine
		return true
	}
	l.text = string(buf)
	return true
}

// Text returns the line read by the last successful Scan.
func (l *Lines) Text() string {
	return l.text
}

// Err returns the first read error, or nil at a clean end of input.
func (l *Lines) Err() error {
	return l.err
}

// Oversized reports how many lines were replaced by OversizedLine.
func (l *Lines) Oversized() int {
	return l.oversized
}

// Close releases the underlying file, if any.
func (l *Lines) Close() error {
	if l.closer == nil {
		return nil
	}
	if err := l.closer.Close(); err != nil {
		return fmt.Errorf("close input: %w", err)
	}
	return nil
}
