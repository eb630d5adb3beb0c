// File: internal/mcp/server.go
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// ToolHandler executes one tool call. A returned error is reported to the
// caller in-band as an error result; it never fails the session.
type ToolHandler func(ctx context.Context, args map[string]any) (*CallToolResult, error)

type registeredTool struct {
	tool    Tool
	schema  *gojsonschema.Schema
	handler ToolHandler
}

// Server is a stdio MCP server exposing a fixed set of tools.
type Server struct {
	info        Implementation
	log         *zap.Logger
	callTimeout time.Duration

	tools []*registeredTool
	index map[string]*registeredTool

	writeMu sync.Mutex
}

// NewServer creates a server that identifies itself with name and version.
func NewServer(name, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		info:        Implementation{Name: name, Version: version},
		log:         logger.Named("mcp_server"),
		callTimeout: 60 * time.Second,
		index:       make(map[string]*registeredTool),
	}
}

// SetCallTimeout bounds every handler invocation.
func (s *Server) SetCallTimeout(d time.Duration) {
	if d > 0 {
		s.callTimeout = d
	}
}

// AddTool registers a tool. Its input schema, if any, is compiled up front
// and used to validate every call.
func (s *Server) AddTool(tool Tool, handler ToolHandler) error {
	if tool.Name == "" {
		return errors.New("tool name is required")
	}
	if handler == nil {
		return fmt.Errorf("tool %s: handler is required", tool.Name)
	}
	if _, exists := s.index[tool.Name]; exists {
		return fmt.Errorf("tool %s: already registered", tool.Name)
	}

	rt := &registeredTool{tool: tool, handler: handler}
	if len(tool.InputSchema) > 0 {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(tool.InputSchema))
		if err != nil {
			return fmt.Errorf("tool %s: invalid input schema: %w", tool.Name, err)
		}
		rt.schema = schema
	}

	s.tools = append(s.tools, rt)
	s.index[tool.Name] = rt
	return nil
}

// Tools lists the registered tools in registration order.
func (s *Server) Tools() []Tool {
	out := make([]Tool, len(s.tools))
	for i, rt := range s.tools {
		out[i] = rt.tool
	}
	return out
}

// Serve reads newline-delimited JSON-RPC messages from in and writes
// responses to out until in reaches EOF. ctx is handed to tool handlers;
// once it is done, Serve stops after the current message.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	rd := bufio.NewReader(in)
	s.log.Info("Serving MCP over stdio", zap.Int("tools", len(s.tools)))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := rd.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			if werr := s.handleLine(ctx, trimmed, out); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				s.log.Debug("Client closed the connection")
				return nil
			}
			return fmt.Errorf("failed to read request: %w", err)
		}
	}
}

// handleLine processes one message. Only write failures are returned.
func (s *Server) handleLine(ctx context.Context, line []byte, out io.Writer) error {
	var req message
	if err := json.Unmarshal(line, &req); err != nil {
		s.log.Warn("Malformed request", zap.Error(err))
		return s.writeError(out, nil, CodeParseError, "parse error")
	}
	if req.Method == "" {
		// Responses to requests we never send.
		return nil
	}

	isNotification := len(req.ID) == 0
	if isNotification {
		if !strings.HasPrefix(req.Method, notificationsPrefix) {
			s.log.Debug("Ignoring request without id", zap.String("method", req.Method))
		}
		return nil
	}

	switch req.Method {
	case MethodInitialize:
		var params InitializeParams
		if len(req.Params) > 0 {
			_ = json.Unmarshal(req.Params, &params)
		}
		s.log.Info("Client connected",
			zap.String("client", params.ClientInfo.Name),
			zap.String("protocol", params.ProtocolVersion),
		)
		res := InitializeResult{ProtocolVersion: ProtocolVersion, ServerInfo: s.info}
		res.Capabilities.Tools = &struct {
			ListChanged bool `json:"listChanged"`
		}{}
		return s.writeResult(out, req.ID, res)

	case MethodPing:
		return s.writeResult(out, req.ID, map[string]any{})

	case MethodToolsList:
		return s.writeResult(out, req.ID, ListToolsResult{Tools: s.Tools()})

	case MethodToolsCall:
		var params CallToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return s.writeError(out, req.ID, CodeInvalidParams, "invalid tools/call params: "+err.Error())
		}
		return s.writeResult(out, req.ID, s.callTool(ctx, params))

	default:
		return s.writeError(out, req.ID, CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) callTool(ctx context.Context, params CallToolParams) (res *CallToolResult) {
	logger := s.log.With(zap.String("tool", params.Name))

	rt, ok := s.index[params.Name]
	if !ok {
		logger.Warn("Call to unknown tool")
		return ErrorResult("Unknown tool: %s", params.Name)
	}

	args := params.Arguments
	if args == nil {
		args = map[string]any{}
	}

	if rt.schema != nil {
		result, err := rt.schema.Validate(gojsonschema.NewGoLoader(args))
		if err != nil {
			return ErrorResult("could not validate arguments: %v", err)
		}
		if !result.Valid() {
			var problems []string
			for _, desc := range result.Errors() {
				problems = append(problems, desc.String())
			}
			logger.Info("Rejected arguments", zap.Strings("problems", problems))
			return ErrorResult("invalid arguments: %s", strings.Join(problems, "; "))
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Tool handler panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			res = ErrorResult("%v", r)
		}
	}()

	start := time.Now()
	out, err := rt.handler(callCtx, args)
	if err != nil {
		logger.Info("Tool failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return ErrorResult("%v", err)
	}
	if out == nil {
		out = TextResult("")
	}
	logger.Debug("Tool succeeded", zap.Duration("duration", time.Since(start)))
	return out
}

func (s *Server) writeResult(out io.Writer, id jsoniter.RawMessage, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return s.writeError(out, id, CodeInternalError, "failed to encode result")
	}
	return s.write(out, &message{JSONRPC: jsonRPCVersion, ID: id, Result: raw})
}

func (s *Server) writeError(out io.Writer, id jsoniter.RawMessage, code int, msg string) error {
	if len(id) == 0 {
		id = jsoniter.RawMessage("null")
	}
	return s.write(out, &message{JSONRPC: jsonRPCVersion, ID: id, Error: &RPCError{Code: code, Message: msg}})
}

func (s *Server) write(out io.Writer, msg *message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := out.Write(data); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
