package middleware

import (
	"context"
	"fmt"

	"github.com/hyphasys/mcp-go/protocol"
)

// PanicHandler turns a recovered panic into a response.
type PanicHandler func(ctx context.Context, req *protocol.Request, panicVal any) (*protocol.Response, error)

// Recover contains panics from the wrapped handler, answering with a generic
// internal error. The panic value is discarded; use RecoverWithLogger to
// capture it.
func Recover() Middleware {
	return RecoverWithHandler(func(_ context.Context, req *protocol.Request, _ any) (*protocol.Response, error) {
		return panicResponse(req), nil
	})
}

// RecoverWithLogger contains panics and logs the panic value before answering
// with a generic internal error. Clients never see the detail.
func RecoverWithLogger(logger Logger) Middleware {
	return RecoverWithHandler(func(_ context.Context, req *protocol.Request, panicVal any) (*protocol.Response, error) {
		logger.Error("handler panic",
			F("method", req.Method),
			F("panic", fmt.Sprintf("%v", panicVal)))
		return panicResponse(req), nil
	})
}

// RecoverWithHandler contains panics and delegates the answer to handler.
func RecoverWithHandler(handler PanicHandler) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (resp *protocol.Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp, err = handler(ctx, req, r)
				}
			}()
			return next(ctx, req)
		}
	}
}

// panicResponse answers a request with a generic internal error. Notifications
// get no response even when their handling panicked.
func panicResponse(req *protocol.Request) *protocol.Response {
	if req.IsNotification() {
		return nil
	}
	return protocol.NewErrorResponse(req.ID, protocol.NewInternalError("internal error"))
}
