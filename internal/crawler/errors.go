package crawler

import "errors"

var (
	// ErrMalformedURL marks an input line that is not an absolute URL.
	ErrMalformedURL = errors.New("malformed url")
	// ErrHostUnresolved marks a host the resolver reported as not found.
	ErrHostUnresolved = errors.New("host not found")
	// ErrInputUnavailable is the only run-aborting condition: the URL source could not be opened.
	ErrInputUnavailable = errors.New("input unavailable")
	// ErrQueueClosed is returned when enqueueing onto a closed queue.
	ErrQueueClosed = errors.New("queue closed")
	// ErrBodyTooLarge is returned when a downloaded body exceeds the byte ceiling.
	ErrBodyTooLarge = errors.New("body exceeds byte ceiling")
)
