package transport

import (
	"context"
	"errors"
	"iter"
)

// ErrChannelClosed is returned by Send and yielded by Frames once the channel
// has been closed or its peer is gone.
var ErrChannelClosed = errors.New("transport: channel closed")

// Stream is one established connection to a peer. ReadFrame is called from a
// single goroutine; WriteFrame may be called concurrently. ReadFrame returns
// io.EOF once the peer has finished sending.
type Stream interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	Close() error
}

// Dialer establishes a new Stream. The context bounds establishment only; the
// returned stream outlives it.
type Dialer func(ctx context.Context) (Stream, error)

// Channel is the session-facing transport contract.
type Channel interface {
	// Open establishes the stream, replacing any previous one.
	Open(ctx context.Context) error
	// Send writes one frame.
	Send(ctx context.Context, frame []byte) error
	// Frames yields inbound frames of the current stream. The sequence ends
	// when the peer exits or the stream fails, and is not restartable
	// without a new Open.
	Frames() iter.Seq2[[]byte, error]
	// Close releases the stream. The channel cannot be reopened afterwards.
	Close() error
}
