package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
)

// Option configures a StreamChannel.
type Option func(*StreamChannel)

// WithLogger sets the logger used for stream lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(c *StreamChannel) {
		if l != nil {
			c.log = l
		}
	}
}

// StreamChannel implements Channel on top of a Dialer.
type StreamChannel struct {
	dial Dialer
	log  *slog.Logger

	mu     sync.Mutex
	stream Stream
	closed bool
}

var _ Channel = (*StreamChannel)(nil)

// NewChannel returns a closed-until-opened channel that dials with d.
func NewChannel(d Dialer, opts ...Option) *StreamChannel {
	c := &StreamChannel{dial: d, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open dials a new stream. A previous stream, if any, is closed first.
func (c *StreamChannel) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	prev := c.stream
	c.stream = nil
	c.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}

	s, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("transport: open: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = s.Close()
		return ErrChannelClosed
	}
	c.stream = s
	c.log.Debug("transport.open")
	return nil
}

func (c *StreamChannel) current() Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}

// lost drops s if it is still the current stream.
func (c *StreamChannel) lost(s Stream, cause error) {
	c.mu.Lock()
	if c.stream != s {
		c.mu.Unlock()
		return
	}
	c.stream = nil
	c.mu.Unlock()

	c.log.Debug("transport.lost", slog.Any("err", cause))
	_ = s.Close()
}

// Send writes frame on the current stream. A write failure marks the stream
// lost and is reported as ErrChannelClosed.
func (c *StreamChannel) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := c.current()
	if s == nil {
		return ErrChannelClosed
	}
	if err := s.WriteFrame(frame); err != nil {
		c.lost(s, err)
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	return nil
}

// Frames yields frames from the stream that is current when iteration
// starts. Oversized frames are dropped and reading continues. Reaching EOF
// ends the sequence quietly; any other read error is yielded once before the
// sequence ends.
func (c *StreamChannel) Frames() iter.Seq2[[]byte, error] {
	s := c.current()
	return func(yield func([]byte, error) bool) {
		if s == nil {
			yield(nil, ErrChannelClosed)
			return
		}
		for {
			frame, err := s.ReadFrame()
			if errors.Is(err, ErrFrameTooLarge) {
				c.log.Warn("transport.frame.too_large")
				continue
			}
			if err != nil {
				c.lost(s, err)
				if errors.Is(err, io.EOF) {
					return
				}
				yield(nil, err)
				return
			}
			if !yield(frame, nil) {
				return
			}
		}
	}
}

// Close releases the current stream and prevents further use.
func (c *StreamChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	s := c.stream
	c.stream = nil
	c.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.Close()
}
