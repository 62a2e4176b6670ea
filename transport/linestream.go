package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/syarbeats/mcp-playground/internal/jsonrpc"
)

// ErrFrameTooLarge is returned when a peer sends a frame longer than
// jsonrpc.MaxFrameSize. The oversized frame is consumed; the stream stays
// usable and the next ReadFrame returns the following frame.
var ErrFrameTooLarge = errors.New("transport: frame exceeds maximum size")

type lineStream struct {
	r *bufio.Reader

	wmu sync.Mutex
	w   io.Writer

	closeOnce sync.Once
	closer    io.Closer
	closeErr  error
}

// NewLineStream frames messages one per line over a byte stream. Blank lines
// are skipped. A partial line left when r reaches EOF is discarded. closer may
// be nil.
func NewLineStream(r io.Reader, w io.Writer, closer io.Closer) Stream {
	return &lineStream{r: bufio.NewReaderSize(r, 64*1024), w: w, closer: closer}
}

func (s *lineStream) ReadFrame() ([]byte, error) {
	for {
		line, err := s.readLine()
		if err != nil {
			return nil, err
		}
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		return line, nil
	}
}

// readLine returns the next newline-terminated line without its newline. A
// line over the size limit is read through its newline and dropped.
func (s *lineStream) readLine() ([]byte, error) {
	var (
		buf      []byte
		tooLarge bool
	)
	for {
		chunk, err := s.r.ReadSlice('\n')
		if !tooLarge {
			if len(buf)+len(chunk) > jsonrpc.MaxFrameSize+1 {
				tooLarge, buf = true, nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		switch {
		case err == nil:
			if tooLarge {
				return nil, ErrFrameTooLarge
			}
			return buf[:len(buf)-1], nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			// Unterminated trailing data is never a complete frame.
			return nil, io.EOF
		default:
			return nil, err
		}
	}
}

func (s *lineStream) WriteFrame(frame []byte) error {
	if bytes.IndexByte(frame, '\n') >= 0 {
		return fmt.Errorf("transport: frame contains a newline")
	}
	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, '\n')

	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, err := s.w.Write(buf)
	return err
}

func (s *lineStream) Close() error {
	s.closeOnce.Do(func() {
		if s.closer != nil {
			s.closeErr = s.closer.Close()
		}
	})
	return s.closeErr
}

// Pipe returns two in-memory streams connected to each other. Closing either
// end delivers EOF to the other.
func Pipe() (Stream, Stream) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	a := NewLineStream(ar, aw, closers{aw, ar})
	b := NewLineStream(br, bw, closers{bw, br})
	return a, b
}

type closers []io.Closer

func (cs closers) Close() error {
	var errs []error
	for _, c := range cs {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
