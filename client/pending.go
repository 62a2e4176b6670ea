package client

import (
	"sync"

	"github.com/syarbeats/mcp-playground/internal/jsonrpc"
)

type pendingCall struct {
	gen    uint64
	respCh chan *jsonrpc.Response
	errCh  chan error
}

// pendingCalls correlates outstanding requests with their responses. Every
// entry is removed exactly once: by deliver, fail, or remove.
type pendingCalls struct {
	mu    sync.Mutex
	calls map[string]*pendingCall
}

func newPendingCalls() *pendingCalls {
	return &pendingCalls{calls: make(map[string]*pendingCall)}
}

// add registers a waiter for key on connection generation gen.
func (p *pendingCalls) add(key string, gen uint64) *pendingCall {
	pc := &pendingCall{gen: gen, respCh: make(chan *jsonrpc.Response, 1), errCh: make(chan error, 1)}
	p.mu.Lock()
	p.calls[key] = pc
	p.mu.Unlock()
	return pc
}

// remove drops key without notifying its waiter.
func (p *pendingCalls) remove(key string) {
	p.mu.Lock()
	delete(p.calls, key)
	p.mu.Unlock()
}

// deliver hands resp to its waiter. Unmatched responses are reported false.
func (p *pendingCalls) deliver(resp *jsonrpc.Response) bool {
	if resp == nil || resp.ID.IsNil() {
		return false
	}
	key := resp.ID.String()
	p.mu.Lock()
	pc, ok := p.calls[key]
	if ok {
		delete(p.calls, key)
	}
	p.mu.Unlock()
	if ok {
		pc.respCh <- resp
	}
	return ok
}

// fail removes every waiter of generation gen, or of all generations when
// gen is zero, delivering err to each.
func (p *pendingCalls) fail(gen uint64, err error) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for key, pc := range p.calls {
		if gen != 0 && pc.gen != gen {
			continue
		}
		delete(p.calls, key)
		pc.errCh <- err
		n++
	}
	return n
}

func (p *pendingCalls) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
