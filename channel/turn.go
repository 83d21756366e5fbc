package channel

import "sync"

// requestTurn enforces send, receive, send, ... on a requester.
type requestTurn struct {
	mu          sync.Mutex
	outstanding bool
}

func (t *requestTurn) checkSend() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.outstanding {
		return &ProtocolViolationError{Role: "requester", Op: "send", Reason: "reply still outstanding"}
	}
	return nil
}

func (t *requestTurn) checkReceive() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.outstanding {
		return &ProtocolViolationError{Role: "requester", Op: "receive", Reason: "no request outstanding"}
	}
	return nil
}

func (t *requestTurn) set(outstanding bool) {
	t.mu.Lock()
	t.outstanding = outstanding
	t.mu.Unlock()
}

// replyTurn enforces receive, send, receive, ... on a responder and
// remembers where the owed reply goes.
type replyTurn[R any] struct {
	mu    sync.Mutex
	owed  bool
	route R
}

func (t *replyTurn[R]) checkReceive() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.owed {
		return &ProtocolViolationError{Role: "responder", Op: "receive", Reason: "reply owed to previous request"}
	}
	return nil
}

func (t *replyTurn[R]) received(route R) {
	t.mu.Lock()
	t.owed, t.route = true, route
	t.mu.Unlock()
}

func (t *replyTurn[R]) checkSend() (R, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.owed {
		var zero R
		return zero, &ProtocolViolationError{Role: "responder", Op: "send", Reason: "no request pending"}
	}
	return t.route, nil
}

func (t *replyTurn[R]) sent() {
	t.mu.Lock()
	var zero R
	t.owed, t.route = false, zero
	t.mu.Unlock()
}
