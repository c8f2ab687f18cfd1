package transfer

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// ErrStreamClosed is returned by Read after the stream was closed or
// canceled.
var ErrStreamClosed = errors.New("download stream closed")

// Stream is a proxied download. It owns the adapter that produced the bytes
// and releases it exactly once, on whichever of these comes first: Close, a
// read error, EOF, or cancellation of the request context.
type Stream struct {
	rc      io.ReadCloser
	release func()
	stop    func() bool

	once sync.Once
	mu   sync.Mutex
	term error

	read      atomic.Int64
	onCleanup func(read int64)
}

// NewStream wraps rc. release runs after rc is closed; onCleanup, when
// non-nil, receives the number of bytes read.
func NewStream(ctx context.Context, rc io.ReadCloser, release func(), onCleanup func(read int64)) *Stream {
	s := &Stream{rc: rc, release: release, onCleanup: onCleanup}
	s.stop = context.AfterFunc(ctx, func() { s.cleanup(ctx.Err()) })
	return s
}

func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	term := s.term
	s.mu.Unlock()
	if term != nil {
		return 0, term
	}

	n, err := s.rc.Read(p)
	s.read.Add(int64(n))
	if err != nil {
		s.cleanup(err)
	}
	return n, err
}

// Close releases the stream. It is safe to call more than once.
func (s *Stream) Close() error {
	s.cleanup(ErrStreamClosed)
	return nil
}

// BytesRead returns how many bytes were read so far.
func (s *Stream) BytesRead() int64 {
	return s.read.Load()
}

func (s *Stream) cleanup(cause error) {
	s.once.Do(func() {
		s.mu.Lock()
		if errors.Is(cause, io.EOF) {
			s.term = io.EOF
		} else {
			s.term = ErrStreamClosed
		}
		s.mu.Unlock()

		s.stop()
		_ = s.rc.Close()
		if s.release != nil {
			s.release()
		}
		if s.onCleanup != nil {
			s.onCleanup(s.read.Load())
		}
	})
}
