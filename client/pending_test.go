package client

import (
	"errors"
	"testing"

	"github.com/syarbeats/mcp-playground/internal/jsonrpc"
)

func TestPendingDeliversAtMostOnce(t *testing.T) {
	p := newPendingCalls()
	id := jsonrpc.NewRequestID(7)
	pc := p.add(id.String(), 1)

	resp := &jsonrpc.Response{JSONRPCVersion: jsonrpc.ProtocolVersion, ID: id, Result: []byte(`{}`)}
	if !p.deliver(resp) {
		t.Fatal("first delivery should match")
	}
	if p.deliver(resp) {
		t.Fatal("second delivery must not match")
	}
	if got := <-pc.respCh; got != resp {
		t.Fatal("waiter received the wrong response")
	}
	if n := p.fail(0, ErrConnectionLost); n != 0 {
		t.Fatalf("fail after delivery removed %d entries", n)
	}
}

func TestPendingFailIsScopedToGeneration(t *testing.T) {
	p := newPendingCalls()
	old := p.add("1", 1)
	cur := p.add("2", 2)

	if n := p.fail(1, ErrConnectionLost); n != 1 {
		t.Fatalf("failed %d entries, want 1", n)
	}
	if err := <-old.errCh; !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("old waiter got %v", err)
	}
	select {
	case err := <-cur.errCh:
		t.Fatalf("current-generation waiter was failed: %v", err)
	default:
	}
	if p.len() != 1 {
		t.Fatalf("len = %d, want 1", p.len())
	}

	if n := p.fail(0, ErrClosed); n != 1 {
		t.Fatalf("fail(0) removed %d entries", n)
	}
	if err := <-cur.errCh; !errors.Is(err, ErrClosed) {
		t.Fatalf("current waiter got %v", err)
	}
}

func TestUnmatchedResponsesIgnored(t *testing.T) {
	p := newPendingCalls()
	if p.deliver(nil) {
		t.Fatal("nil response matched")
	}
	if p.deliver(&jsonrpc.Response{ID: jsonrpc.NewRequestID(99)}) {
		t.Fatal("unknown id matched")
	}
}
