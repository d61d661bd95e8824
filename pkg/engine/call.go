package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
	"github.com/ajitpratap0/mcp-engine/pkg/logging"
	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
)

const cancelNotifyTimeout = 2 * time.Second

// PendingCall is an outbound request awaiting its response.
type PendingCall struct {
	ID     protocol.ID
	Method string

	conn *Conn
	resp chan *protocol.Response
}

// Go sends a request and returns without waiting for the response.
func (c *Conn) Go(ctx context.Context, method string, params interface{}) (*PendingCall, error) {
	if c.closed() {
		return nil, mcperrors.TransportClosed("engine")
	}

	id := c.session.NextID()
	req, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return nil, mcperrors.InvalidParams(err.Error())
	}

	pc := &PendingCall{ID: id, Method: method, conn: c, resp: make(chan *protocol.Response, 1)}
	c.pendingMu.Lock()
	c.pending[id] = pc.resp
	c.pendingMu.Unlock()

	if err := c.send(ctx, req); err != nil {
		c.forget(id)
		return nil, err
	}
	return pc, nil
}

// Wait blocks for the response and decodes its result into result, which may
// be nil. When ctx ends first, the peer is sent a cancellation and ctx's
// error is returned; a response arriving later is discarded.
func (pc *PendingCall) Wait(ctx context.Context, result interface{}) error {
	select {
	case resp := <-pc.resp:
		return decodeResponse(resp, result)
	case <-ctx.Done():
		pc.conn.forget(pc.ID)
		pc.notifyCancel(ctx.Err().Error())
		return ctx.Err()
	case <-pc.conn.done:
		select {
		case resp := <-pc.resp:
			return decodeResponse(resp, result)
		default:
		}
		return mcperrors.TransportClosed("engine")
	}
}

// Cancel asks the peer to stop the request. The call stays pending: a late
// response is still delivered to Wait.
func (pc *PendingCall) Cancel(reason string) {
	pc.notifyCancel(reason)
}

func (pc *PendingCall) notifyCancel(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), cancelNotifyTimeout)
	defer cancel()
	err := pc.conn.Notify(ctx, protocol.MethodCancelled, protocol.CancelledParams{RequestID: pc.ID, Reason: reason})
	if err != nil {
		pc.conn.logger.WithError(err).Debug("failed to send cancellation", logging.RequestID(pc.ID.String()))
	}
}

// Call sends a request and waits for its response.
func (c *Conn) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	pc, err := c.Go(ctx, method, params)
	if err != nil {
		return err
	}
	return pc.Wait(ctx, result)
}

// Notify sends a notification. Notifications from one goroutine reach the
// peer in the order they were sent.
func (c *Conn) Notify(ctx context.Context, method string, params interface{}) error {
	if c.closed() {
		return mcperrors.TransportClosed("engine")
	}
	n, err := protocol.NewNotification(method, params)
	if err != nil {
		return mcperrors.InvalidParams(err.Error())
	}
	return c.send(ctx, n)
}

// Pending returns the number of outbound calls awaiting a response.
func (c *Conn) Pending() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}

func (c *Conn) forget(id protocol.ID) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func decodeResponse(resp *protocol.Response, result interface{}) error {
	if resp.Error != nil {
		return mcperrors.FromJSONRPCError(resp.Error)
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("decode %T result: %w", result, err)
	}
	return nil
}
