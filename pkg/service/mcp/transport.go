package mcp

import (
	"context"
	"io"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const outboxSize = 64

var (
	ErrTransportClosed = goerr.New("transport closed")
)

// sseTransport carries JSON-RPC messages between one MCP server session and
// whichever SSE stream is currently attached to its unit. Inbound messages
// come from message posts, outbound frames wait in the outbox until a
// stream drains them.
type sseTransport struct {
	sessionID string
	endpoint  string

	inbox  chan jsonrpc.Message
	outbox chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

var (
	_ mcp.Transport  = (*sseTransport)(nil)
	_ mcp.Connection = (*sseTransport)(nil)
)

func newSSETransport(sessionID, endpoint string) *sseTransport {
	return &sseTransport{
		sessionID: sessionID,
		endpoint:  endpoint,
		inbox:     make(chan jsonrpc.Message),
		outbox:    make(chan []byte, outboxSize),
		done:      make(chan struct{}),
	}
}

// Connect returns the transport itself; a unit connects exactly once
func (t *sseTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	return t, nil
}

func (t *sseTransport) SessionID() string {
	return t.sessionID
}

func (t *sseTransport) Read(ctx context.Context) (jsonrpc.Message, error) {
	select {
	case msg := <-t.inbox:
		return msg, nil
	case <-t.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write queues msg for the attached stream. It blocks while the outbox is
// full, which is the case when no stream has been attached for a while.
func (t *sseTransport) Write(ctx context.Context, msg jsonrpc.Message) error {
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return goerr.Wrap(err, "failed to encode message")
	}

	select {
	case t.outbox <- data:
		return nil
	case <-t.done:
		return goerr.Wrap(ErrTransportClosed, "cannot write", goerr.V("session_id", t.sessionID))
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *sseTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
	})
	return nil
}

// deliver hands one posted message to the server session
func (t *sseTransport) deliver(ctx context.Context, msg jsonrpc.Message) error {
	select {
	case t.inbox <- msg:
		return nil
	case <-t.done:
		return goerr.Wrap(ErrTransportClosed, "cannot deliver", goerr.V("session_id", t.sessionID))
	case <-ctx.Done():
		return ctx.Err()
	}
}
