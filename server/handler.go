package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/hyphasys/mcp-go/middleware"
	"github.com/hyphasys/mcp-go/protocol"
	"github.com/hyphasys/mcp-go/transport"
)

// dispatch routes one decoded frame. Requests always produce exactly one
// response with the caller's id echoed back; notifications never produce
// one, whatever happens while handling them.
func (s *Server) dispatch(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	sess := s.sessionFor(ctx)
	if sess != nil {
		ctx = ContextWithSession(ctx, sess)
	}

	if req.IsNotification() {
		s.dispatchNotification(ctx, sess, req)
		return nil, nil
	}
	return s.dispatchRequest(ctx, sess, req), nil
}

// sessionFor resolves the session of the connection the frame arrived on.
func (s *Server) sessionFor(ctx context.Context) *Session {
	conn := transport.ConnFromContext(ctx)
	if conn == nil {
		return nil
	}
	return s.session(conn.ID())
}

func (s *Server) dispatchRequest(ctx context.Context, sess *Session, req *protocol.Request) *protocol.Response {
	if err := protocol.ValidateRequest(req); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidRequest(err.Error()))
	}

	if sess == nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidRequest("request outside a connection"))
	}

	state := sess.State()
	switch {
	case state == StateClosed:
		// The connection is gone; nothing can carry a response.
		return nil
	case req.Method == protocol.MethodPing:
		return protocol.NewResponse(req.ID, protocol.EmptyResult{})
	case req.Method == protocol.MethodInitialize:
		return s.handleInitialize(ctx, sess, req)
	case state != StateReady:
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidRequest(
			fmt.Sprintf("method %q requires an initialized connection (state %s)", req.Method, state)))
	}

	switch req.Method {
	case protocol.MethodToolsList:
		return s.handleListTools(req)
	case protocol.MethodToolsCall:
		return s.handleCallTool(ctx, sess, req)
	case protocol.MethodResourcesList:
		return s.handleListResources(req)
	case protocol.MethodResourcesRead:
		return s.handleReadResource(ctx, sess, req)
	case protocol.MethodResourcesSubscribe:
		return s.handleSubscribe(ctx, sess, req)
	case protocol.MethodResourcesUnsubscribe:
		return s.handleUnsubscribe(ctx, sess, req)
	case protocol.MethodPromptsList:
		return s.handleListPrompts(req)
	case protocol.MethodPromptsGet:
		return s.handleGetPrompt(ctx, sess, req)
	case protocol.MethodSamplingCreateMessage:
		return s.handleCreateMessage(ctx, sess, req)
	case protocol.MethodLoggingSetLevel:
		return s.handleSetLevel(sess, req)
	default:
		return protocol.NewErrorResponse(req.ID, protocol.NewMethodNotFound(
			fmt.Sprintf("method %q is not supported", req.Method)))
	}
}

// dispatchNotification handles inbound notifications. Anything arriving
// before the connection is ready, and any unknown method, is dropped.
func (s *Server) dispatchNotification(ctx context.Context, sess *Session, req *protocol.Request) {
	if sess == nil || sess.State() != StateReady {
		return
	}

	switch req.Method {
	case protocol.MethodProgress:
		if s.progress == nil {
			return
		}
		var params protocol.ProgressParams
		if err := decodeParams(req.Params, &params); err != nil {
			return
		}
		if err := protocol.ValidateProgressParams(&params); err != nil {
			return
		}
		s.observeProgress(ctx, sess, &params)
	}
}

// observeProgress shields the dispatcher from a panicking observer.
func (s *Server) observeProgress(ctx context.Context, sess *Session, params *protocol.ProgressParams) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("progress handler panicked", middleware.F("panic", fmt.Sprint(r)))
		}
	}()
	s.progress.OnProgress(ctx, sess, params)
}

func (s *Server) handleInitialize(ctx context.Context, sess *Session, req *protocol.Request) *protocol.Response {
	if sess.State() != StateUninitialized {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidRequest("initialize already received"))
	}

	var params protocol.InitializeParams
	if err := decodeParams(req.Params, &params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}
	if err := protocol.ValidateInitializeParams(&params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}
	if err := s.versionPolicy(params.ProtocolVersion); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}

	if err := sess.life.beginInitialize(); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidRequest(err.Error()))
	}
	sess.setClient(params.ClientInfo, params.Capabilities)

	result := protocol.InitializeResult{
		ProtocolVersion: protocol.MCPVersion,
		Capabilities:    s.capabilities(),
		ServerInfo: protocol.ServerInfo{
			Name:    s.info.Name,
			Version: s.info.Version,
		},
	}

	if err := sess.life.completeInitialize(); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInternalError("internal error"))
	}

	s.logger.Info("connection initialized",
		middleware.F("connection", sess.ID()),
		middleware.F("client", params.ClientInfo.Name))

	return protocol.NewResponse(req.ID, result)
}

func (s *Server) handleListTools(req *protocol.Request) *protocol.Response {
	var params protocol.ListToolsParams
	if err := decodeParams(req.Params, &params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}

	tools, next, err := s.tools.page(params.Cursor, s.pageSize)
	if err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}

	infos := make([]protocol.ToolInfo, 0, len(tools))
	for _, t := range tools {
		infos = append(infos, t.info())
	}
	return protocol.NewResponse(req.ID, protocol.ListToolsResult{Tools: infos, NextCursor: next})
}

func (s *Server) handleCallTool(ctx context.Context, sess *Session, req *protocol.Request) *protocol.Response {
	var params protocol.CallToolParams
	if err := decodeParams(req.Params, &params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}
	if err := protocol.ValidateCallToolParams(&params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}

	tool, ok := s.tools.get(params.Name)
	if !ok {
		return protocol.NewErrorResponse(req.ID, protocol.NewToolNotFound(
			fmt.Sprintf("tool %q is not registered", params.Name)))
	}

	if tool.InputSchema != nil && len(params.Arguments) > 0 {
		if err := tool.InputSchema.Validate(params.Arguments); err != nil {
			return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(
				fmt.Sprintf("arguments do not match schema: %v", err)))
		}
	}

	ctx = s.withProgress(ctx, sess, req.Params)

	sess.trackRequest()
	defer sess.completeRequest()

	result, err := s.invokeTool(ctx, tool, params.Arguments)
	if err != nil {
		return s.defectResponse(req.ID, "tool call failed", middleware.F("tool", params.Name), err)
	}
	return protocol.NewResponse(req.ID, result)
}

// invokeTool shields the dispatcher from a panicking handler.
func (s *Server) invokeTool(ctx context.Context, tool Tool, args json.RawMessage) (result *protocol.CallToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool handler panicked: %v", r)
		}
	}()
	return tool.Handler.Call(ctx, args)
}

func (s *Server) handleListResources(req *protocol.Request) *protocol.Response {
	var params protocol.ListResourcesParams
	if err := decodeParams(req.Params, &params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}

	resources, next, err := s.resources.page(params.Cursor, s.pageSize)
	if err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}

	infos := make([]protocol.ResourceInfo, 0, len(resources))
	for _, r := range resources {
		infos = append(infos, r.info())
	}
	return protocol.NewResponse(req.ID, protocol.ListResourcesResult{Resources: infos, NextCursor: next})
}

func (s *Server) handleReadResource(ctx context.Context, sess *Session, req *protocol.Request) *protocol.Response {
	var params protocol.ReadResourceParams
	if err := decodeParams(req.Params, &params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}
	if err := protocol.ValidateReadResourceParams(&params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}

	res, ok := s.resolveResource(params.URI)
	if !ok {
		return protocol.NewErrorResponse(req.ID, protocol.NewResourceNotFound(
			fmt.Sprintf("no resource registered for %q", params.URI)))
	}

	ctx = s.withProgress(ctx, sess, req.Params)

	sess.trackRequest()
	defer sess.completeRequest()

	contents, err := s.invokeRead(ctx, res, params.URI)
	if err != nil {
		return s.defectResponse(req.ID, "resource read failed", middleware.F("uri", params.URI), err)
	}
	return protocol.NewResponse(req.ID, protocol.ReadResourceResult{Contents: contents})
}

// invokeRead shields the dispatcher from a panicking handler.
func (s *Server) invokeRead(ctx context.Context, res Resource, uri string) (contents []protocol.ResourceContent, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("resource handler panicked: %v", r)
		}
	}()
	return res.Handler.Read(ctx, uri, queryParams(uri))
}

func (s *Server) handleSubscribe(ctx context.Context, sess *Session, req *protocol.Request) *protocol.Response {
	var params protocol.SubscribeResourceParams
	if err := decodeParams(req.Params, &params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}
	if err := protocol.ValidateURI(params.URI); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}

	res, ok := s.resolveResource(params.URI)
	if !ok {
		return protocol.NewErrorResponse(req.ID, protocol.NewResourceNotFound(
			fmt.Sprintf("no resource registered for %q", params.URI)))
	}

	// Repeat subscriptions are an idempotent success; the handler hears
	// about each membership once.
	if !s.subs.isSubscribed(sess.ID(), params.URI) {
		if err := res.Handler.Subscribe(ctx, params.URI); err != nil {
			return s.defectResponse(req.ID, "subscribe failed", middleware.F("uri", params.URI), err)
		}
		s.subs.subscribe(sess.ID(), params.URI)
	}
	return protocol.NewResponse(req.ID, protocol.EmptyResult{})
}

func (s *Server) handleUnsubscribe(ctx context.Context, sess *Session, req *protocol.Request) *protocol.Response {
	var params protocol.UnsubscribeResourceParams
	if err := decodeParams(req.Params, &params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}
	if err := protocol.ValidateURI(params.URI); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}

	if s.subs.unsubscribe(sess.ID(), params.URI) {
		if res, ok := s.resolveResource(params.URI); ok {
			if err := res.Handler.Unsubscribe(ctx, params.URI); err != nil {
				s.logger.Warn("unsubscribe", middleware.F("uri", params.URI), middleware.F("error", err.Error()))
			}
		}
	}
	// Unknown subscriptions unsubscribe successfully.
	return protocol.NewResponse(req.ID, protocol.EmptyResult{})
}

func (s *Server) handleListPrompts(req *protocol.Request) *protocol.Response {
	var params protocol.ListPromptsParams
	if err := decodeParams(req.Params, &params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}

	prompts, next, err := s.prompts.page(params.Cursor, s.pageSize)
	if err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}

	infos := make([]protocol.PromptInfo, 0, len(prompts))
	for _, p := range prompts {
		infos = append(infos, p.info())
	}
	return protocol.NewResponse(req.ID, protocol.ListPromptsResult{Prompts: infos, NextCursor: next})
}

func (s *Server) handleGetPrompt(ctx context.Context, sess *Session, req *protocol.Request) *protocol.Response {
	var params protocol.GetPromptParams
	if err := decodeParams(req.Params, &params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}
	if err := protocol.ValidateGetPromptParams(&params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}

	prompt, ok := s.prompts.get(params.Name)
	if !ok {
		return protocol.NewErrorResponse(req.ID, protocol.NewPromptNotFound(
			fmt.Sprintf("prompt %q is not registered", params.Name)))
	}

	args := stringifyArgs(params.Arguments)
	if err := prompt.checkArgs(args); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}

	sess.trackRequest()
	defer sess.completeRequest()

	result, err := s.invokePrompt(ctx, prompt, args)
	if err != nil {
		return s.defectResponse(req.ID, "prompt render failed", middleware.F("prompt", params.Name), err)
	}
	return protocol.NewResponse(req.ID, result)
}

// invokePrompt shields the dispatcher from a panicking handler.
func (s *Server) invokePrompt(ctx context.Context, prompt Prompt, args map[string]string) (result *protocol.GetPromptResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("prompt handler panicked: %v", r)
		}
	}()
	return prompt.Handler.Get(ctx, args)
}

func (s *Server) handleCreateMessage(ctx context.Context, sess *Session, req *protocol.Request) *protocol.Response {
	if s.sampling == nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewMethodNotFound(
			"sampling/createMessage is not supported by this server"))
	}

	var params protocol.CreateMessageParams
	if err := decodeParams(req.Params, &params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}
	if err := protocol.ValidateCreateMessageParams(&params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}

	sess.trackRequest()
	defer sess.completeRequest()

	result, err := s.invokeSampling(ctx, &params)
	if err != nil {
		return s.defectResponse(req.ID, "sampling failed", middleware.F("connection", sess.ID()), err)
	}
	return protocol.NewResponse(req.ID, result)
}

// invokeSampling shields the dispatcher from a panicking handler.
func (s *Server) invokeSampling(ctx context.Context, params *protocol.CreateMessageParams) (result *protocol.CreateMessageResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sampling handler panicked: %v", r)
		}
	}()
	return s.sampling.CreateMessage(ctx, params)
}

func (s *Server) handleSetLevel(sess *Session, req *protocol.Request) *protocol.Response {
	var params protocol.SetLevelParams
	if err := decodeParams(req.Params, &params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}
	if err := protocol.ValidateSetLevelParams(&params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}

	sess.SetLogLevel(params.Level)
	return protocol.NewResponse(req.ID, protocol.EmptyResult{})
}

// defectResponse maps a handler failure to a response. Well-formed protocol
// errors pass through; anything else is logged and surfaced as a generic
// internal error so callers never see handler internals.
func (s *Server) defectResponse(id json.RawMessage, msg string, field middleware.Field, err error) *protocol.Response {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return protocol.NewErrorResponse(id, perr)
	}
	s.logger.Error(msg, field, middleware.F("error", err.Error()))
	return protocol.NewErrorResponse(id, protocol.NewInternalError("internal error"))
}

// resolveResource looks up uri by exact match, then retries without its
// query string, then falls back to the longest registered prefix.
func (s *Server) resolveResource(uri string) (Resource, bool) {
	if r, ok := s.resources.get(uri); ok {
		return r, true
	}

	stripped := uri
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		stripped = uri[:i]
	}
	if stripped != uri {
		if r, ok := s.resources.get(stripped); ok {
			return r, true
		}
	}

	var best Resource
	bestLen := -1
	for _, e := range s.resources.snapshot() {
		if strings.HasPrefix(stripped, e.key) && len(e.key) > bestLen {
			best = e.value
			bestLen = len(e.key)
		}
	}
	if bestLen < 0 {
		return Resource{}, false
	}
	return best, true
}

// queryParams extracts the query string of uri as a flat map, keeping the
// first value of repeated keys.
func queryParams(uri string) map[string]string {
	u, err := url.Parse(uri)
	if err != nil || len(u.RawQuery) == 0 {
		return nil
	}

	q := u.Query()
	params := make(map[string]string, len(q))
	for k, vs := range q {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	return params
}

// stringifyArgs flattens decoded prompt arguments to strings.
func stringifyArgs(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}

// decodeParams unmarshals a params payload. Absent params decode to the
// zero value.
func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
