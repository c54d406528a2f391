// ABOUTME: Incremental newline-delimited JSON decoder for the chat event stream
// ABOUTME: Buffers partial lines across chunks and soft-fails on malformed records

package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
)

const (
	// DefaultMaxLineBytes bounds how much of a single unterminated line is
	// buffered before the stream is abandoned.
	DefaultMaxLineBytes = 4 << 20

	readChunkSize = 32 << 10
)

// ErrLineTooLong is returned when an unterminated line exceeds the configured limit.
var ErrLineTooLong = errors.New("stream line exceeds maximum length")

// Decoder turns byte chunks into events. It is restartable per connection
// only: create a new Decoder for every stream.
type Decoder struct {
	buf     []byte
	logger  *slog.Logger
	dropped int
}

// NewDecoder creates a decoder. Pass nil logger for default.
func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger.With("component", "decoder")}
}

// Feed appends chunk to the buffer and returns every event completed by it,
// in order. The trailing fragment after the last newline is kept for the
// next call. Blank lines are skipped; malformed lines are logged and dropped.
func (d *Decoder) Feed(chunk []byte) []Event {
	d.buf = append(d.buf, chunk...)

	var events []Event
	for {
		nl := bytes.IndexByte(d.buf, '\n')
		if nl < 0 {
			break
		}
		line := d.buf[:nl]
		d.buf = d.buf[nl+1:]

		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		event, err := Parse(line)
		if err != nil {
			d.dropped++
			d.logger.Warn("dropping malformed stream line",
				"error", err,
				"line", string(line))
			continue
		}
		events = append(events, event)
	}

	// Compact so the backing array does not grow without bound across a
	// long-lived connection.
	if len(d.buf) == 0 {
		d.buf = d.buf[:0:0]
	} else if cap(d.buf) > 2*len(d.buf)+readChunkSize {
		d.buf = bytes.Clone(d.buf)
	}
	return events
}

// Buffered returns the number of bytes of the current unterminated line.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Dropped returns how many malformed lines have been discarded.
func (d *Decoder) Dropped() int { return d.dropped }

// Reader lazily decodes events from an io.Reader.
type Reader struct {
	src      io.Reader
	dec      *Decoder
	maxLine  int
	chunk    []byte
	pending  []Event
	err      error
	finished bool
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithLogger sets the logger used for malformed line diagnostics.
func WithLogger(logger *slog.Logger) ReaderOption {
	return func(r *Reader) { r.dec = NewDecoder(logger) }
}

// WithMaxLineBytes overrides DefaultMaxLineBytes. Non-positive values are ignored.
func WithMaxLineBytes(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.maxLine = n
		}
	}
}

// NewReader wraps src, which is typically an HTTP response body.
func NewReader(src io.Reader, opts ...ReaderOption) *Reader {
	r := &Reader{
		src:     src,
		maxLine: DefaultMaxLineBytes,
		chunk:   make([]byte, readChunkSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.dec == nil {
		r.dec = NewDecoder(nil)
	}
	return r
}

// Next returns the next event. It returns io.EOF once the source is
// exhausted; an unterminated trailing fragment is discarded, never parsed.
func (r *Reader) Next() (Event, error) {
	for len(r.pending) == 0 {
		if r.finished {
			return nil, r.err
		}
		n, err := r.src.Read(r.chunk)
		if n > 0 {
			r.pending = r.dec.Feed(r.chunk[:n])
			if r.dec.Buffered() > r.maxLine {
				r.finish(fmt.Errorf("%w (%d bytes)", ErrLineTooLong, r.dec.Buffered()))
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if r.dec.Buffered() > 0 {
					r.dec.logger.Debug("discarding unterminated trailing fragment",
						"bytes", r.dec.Buffered())
				}
				r.finish(io.EOF)
			} else {
				r.finish(err)
			}
		}
	}

	event := r.pending[0]
	r.pending = r.pending[1:]
	return event, nil
}

func (r *Reader) finish(err error) {
	if r.finished {
		return
	}
	r.finished = true
	r.err = err
}

// All iterates over every event. A terminal error other than io.EOF is
// yielded once with a nil event.
func (r *Reader) All() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			event, err := r.Next()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, err)
				}
				return
			}
			if !yield(event, nil) {
				return
			}
		}
	}
}

// Dropped returns how many malformed lines have been discarded so far.
func (r *Reader) Dropped() int { return r.dec.Dropped() }
