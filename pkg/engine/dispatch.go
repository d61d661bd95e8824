package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
	"github.com/ajitpratap0/mcp-engine/pkg/inflight"
	"github.com/ajitpratap0/mcp-engine/pkg/logging"
	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
	"github.com/ajitpratap0/mcp-engine/pkg/session"
)

// route is the target of one method. category is empty for lifecycle
// methods, which are served whatever was negotiated.
type route struct {
	category protocol.CapabilityType
	handle   func(ctx context.Context, params json.RawMessage) (interface{}, error)
}

// Handle processes one decoded message and returns the message to send back,
// if any. Requests are handled synchronously; Serve uses the same steps but
// runs handlers on their own goroutines.
func (c *Conn) Handle(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	switch m := msg.(type) {
	case *protocol.Request:
		resp, run := c.admit(ctx, m)
		if run != nil {
			resp = run()
		}
		if resp == nil {
			return nil, nil
		}
		return resp, nil
	case *protocol.Response:
		c.handleResponse(m)
		return nil, nil
	case *protocol.Notification:
		c.handleNotification(ctx, m)
		return nil, nil
	case nil:
		return nil, errors.New("engine: nil message")
	}
	return nil, fmt.Errorf("engine: unsupported message type %T", msg)
}

// admit runs on the read loop so the session gate and the in-flight entry
// observe messages in arrival order. It returns either an immediate response
// or a function that runs the handler and builds the response.
func (c *Conn) admit(ctx context.Context, req *protocol.Request) (*protocol.Response, func() *protocol.Response) {
	logger := c.logger.WithFields(logging.Method(req.Method), logging.RequestID(req.ID.String()))

	if c.opts.Role == RoleServer && session.IsFunctional(req.Method) && !c.session.Ready() {
		logger.Warn("request before initialization", logging.String("state", c.session.State().String()))
		return mcperrors.ToJSONRPCResponse(mcperrors.NotInitialized(req.Method), req.ID), nil
	}

	rt, ok := c.routes[req.Method]
	if !ok || (rt.category != "" && !c.session.LocalCapabilities().Has(rt.category)) {
		logger.Debug("method not found")
		return mcperrors.ToJSONRPCResponse(mcperrors.MethodNotFound(req.Method), req.ID), nil
	}

	r, rctx, err := c.inflight.Begin(ctx, req.ID, req.Method)
	switch {
	case errors.Is(err, inflight.ErrDuplicateID):
		logger.Warn("duplicate request id")
		return mcperrors.ToJSONRPCResponse(mcperrors.InvalidRequest("duplicate request id"), req.ID), nil
	case err != nil:
		logger.Debug("request dropped", logging.ErrorField(err))
		return nil, nil
	}

	rctx = context.WithValue(rctx, connKey{}, c)
	rctx = logging.ContextWithRequestID(rctx, req.ID.String())
	run := func() *protocol.Response {
		return c.execute(rctx, r, req, logger)
	}

	// The handshake changes the session state, so it completes before the
	// next message is read.
	if req.Method == protocol.MethodInitialize {
		return run(), nil
	}
	return nil, run
}

// execute invokes the handler chain, records the terminal status and builds
// the response. It returns nil when the response must not be sent.
func (c *Conn) execute(ctx context.Context, r *inflight.Request, req *protocol.Request, logger logging.Logger) *protocol.Response {
	start := time.Now()
	result, err := c.invoke(ctx, req, logger)

	status := inflight.Completed
	if err != nil && r.CancellationRequested() && mcperrors.IsCode(err, mcperrors.CodeRequestCancelled) {
		status = inflight.Cancelled
	}
	if ferr := c.inflight.Finish(req.ID, status); ferr != nil {
		if r.Status() == inflight.Abandoned {
			logger.Debug("dropping response of abandoned request")
		} else {
			logger.Warn("dropping second completion", logging.String("status", r.Status().String()))
		}
		return nil
	}

	if err != nil {
		logger.WithError(err).Debug("request failed", logging.Duration("duration", time.Since(start)))
		return mcperrors.ToJSONRPCResponse(err, req.ID)
	}

	resp, err := protocol.NewResponse(req.ID, result)
	if err != nil {
		logger.WithError(err).Error("failed to encode result")
		return mcperrors.ToJSONRPCResponse(mcperrors.InternalError(), req.ID)
	}
	logger.Debug("request completed",
		logging.Duration("duration", time.Since(start)),
		logging.String("status", status.String()))
	return resp
}

// invoke runs the middleware chain and converts a panic into InternalError.
func (c *Conn) invoke(ctx context.Context, req *protocol.Request, logger logging.Logger) (result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("handler panic",
				logging.Any("panic", p),
				logging.String("stack", string(debug.Stack())))
			result, err = nil, mcperrors.InternalError()
		}
	}()

	result, err = c.handler(ctx, req)
	if err != nil && isContextError(err) && ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = mcperrors.RequestTimeout(req.Method, c.opts.RequestTimeout)
		} else {
			err = mcperrors.RequestCancelled(req.Method)
		}
	}
	return result, err
}

// dispatch is the innermost handler: method lookup and params handling.
func (c *Conn) dispatch(ctx context.Context, req *protocol.Request) (interface{}, error) {
	rt, ok := c.routes[req.Method]
	if !ok {
		return nil, mcperrors.MethodNotFound(req.Method)
	}
	return rt.handle(ctx, req.Params)
}

func (c *Conn) handleResponse(resp *protocol.Response) {
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Warn("discarding unmatched response", logging.RequestID(resp.ID.String()))
		return
	}
	ch <- resp
}

func (c *Conn) handleNotification(ctx context.Context, n *protocol.Notification) {
	logger := c.logger.WithFields(logging.Method(n.Method))

	switch {
	case protocol.IsCancelMethod(n.Method):
		params, err := protocol.ParseCancelParams(n.Method, n.Params)
		if err != nil {
			logger.WithError(err).Warn("malformed cancellation")
			return
		}
		if c.inflight.RequestCancel(params.RequestID) {
			logger.Info("cancellation requested",
				logging.RequestID(params.RequestID.String()),
				logging.String("reason", params.Reason))
		} else {
			logger.Debug("cancellation for unknown request", logging.RequestID(params.RequestID.String()))
		}

	case protocol.IsInitializedMethod(n.Method) && c.opts.Role == RoleServer:
		if err := c.session.HandleInitialized(); err != nil {
			logger.WithError(err).Warn("unexpected initialized notification")
			return
		}
		logger.Info("session ready", logging.String("version", c.session.NegotiatedVersion()))
		c.markReady()

	case c.opts.Role == RoleClient && c.opts.OnListChanged != nil && listChangedCategory(n.Method) != "":
		c.opts.OnListChanged(listChangedCategory(n.Method))

	default:
		logger.Debug("ignoring notification")
	}
}

func (c *Conn) markReady() {
	c.readyOne.Do(func() { close(c.ready) })
}

func listChangedCategory(method string) protocol.CapabilityType {
	for _, cat := range []protocol.CapabilityType{protocol.CapabilityResources, protocol.CapabilityTools, protocol.CapabilityPrompts} {
		if cat.ListChangedMethod() == method {
			return cat
		}
	}
	return ""
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
