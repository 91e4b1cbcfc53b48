// Package middleware composes cross-cutting behavior around MCP request
// dispatch. Each middleware wraps the next handler in the chain and may act
// before or after it, short-circuit it, or decorate its context.
//
// # Composition
//
//	handler := middleware.Chain(
//	    middleware.RecoverWithLogger(logger),
//	    middleware.RequestID(),
//	    middleware.Logging(logger),
//	)(dispatch)
//
// Servers normally attach middleware through server.Use, which chains them in
// registration order around the dispatcher.
//
// # Built-in middleware
//
//   - RecoverWithLogger: contains panics, answering with a generic internal
//     error while the panic detail goes to the logger
//   - RequestID: tags each request context with a unique id
//   - Logging: logs method, duration, and outcome per request
//   - RateLimit: token-bucket request limiting, globally or per key
//   - OTel: OpenTelemetry spans and metrics per request
//
// DefaultStack bundles recovery, request ids, and logging in the order they
// are meant to run.
package middleware
