// File: internal/mcp/client.go
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ClientName identifies this client in the initialize handshake.
const ClientName = "easel"

// Client is an MCP session over a single duplex connection. Calls are made
// one at a time; the client never has more than one request outstanding.
type Client struct {
	log  *zap.Logger
	conn io.ReadWriteCloser

	writeMu sync.Mutex
	nextID  atomic.Int64

	incoming chan *message
	closing  chan struct{}
	done     chan struct{}
	readErr  error // written by the read loop before done is closed

	initialized atomic.Bool
	serverInfo  Implementation

	closeOnce sync.Once
	closeErr  error
}

// NewClient wraps conn and starts reading from it. The caller must call
// Initialize before listing or calling tools, and Close when done.
func NewClient(conn io.ReadWriteCloser, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		log:      logger.Named("mcp_client"),
		conn:     conn,
		incoming: make(chan *message, 16),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Dial creates a client over conn and performs the initialize handshake.
// On failure the connection is closed.
func Dial(ctx context.Context, conn io.ReadWriteCloser, logger *zap.Logger) (*Client, error) {
	c := NewClient(conn, logger)
	if _, err := c.Initialize(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Initialize performs the MCP handshake and announces readiness.
func (c *Client) Initialize(ctx context.Context) (*InitializeResult, error) {
	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      Implementation{Name: ClientName, Version: "1.0"},
	}
	var res InitializeResult
	if err := c.call(ctx, MethodInitialize, params, &res); err != nil {
		return nil, fmt.Errorf("initialize failed: %w", err)
	}
	if err := c.notify(MethodInitialized, nil); err != nil {
		return nil, fmt.Errorf("initialized notification failed: %w", err)
	}

	c.serverInfo = res.ServerInfo
	c.initialized.Store(true)
	c.log.Info("MCP session initialized",
		zap.String("server", res.ServerInfo.Name),
		zap.String("server_version", res.ServerInfo.Version),
		zap.String("protocol", res.ProtocolVersion),
	)
	return &res, nil
}

// ServerInfo reports the peer's identity from the handshake.
func (c *Client) ServerInfo() Implementation { return c.serverInfo }

// ListTools asks the server for its tool set.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	if !c.initialized.Load() {
		return nil, ErrNotInitialized
	}
	var res ListToolsResult
	if err := c.call(ctx, MethodToolsList, map[string]any{}, &res); err != nil {
		return nil, fmt.Errorf("tools/list failed: %w", err)
	}
	return res.Tools, nil
}

// CallToolResult invokes a tool and returns the full result.
func (c *Client) CallToolResult(ctx context.Context, name string, args map[string]any) (*CallToolResult, error) {
	if !c.initialized.Load() {
		return nil, ErrNotInitialized
	}
	if args == nil {
		args = map[string]any{}
	}
	var res CallToolResult
	if err := c.call(ctx, MethodToolsCall, CallToolParams{Name: name, Arguments: args}, &res); err != nil {
		return nil, fmt.Errorf("tools/call %s failed: %w", name, err)
	}
	return &res, nil
}

// CallTool invokes a tool and returns its observation text. Failures the
// tool itself reports come back as text, not as an error.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	res, err := c.CallToolResult(ctx, name, args)
	if err != nil {
		return "", err
	}
	if res.IsError {
		c.log.Debug("Tool reported an error", zap.String("tool", name), zap.String("text", res.Text()))
	}
	return res.Text(), nil
}

// Close ends the session and releases the connection. Safe to call more
// than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closing)
		c.closeErr = c.conn.Close()
		<-c.done
		c.log.Debug("MCP session closed")
	})
	return c.closeErr
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	id := c.nextID.Add(1)
	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	req := message{
		JSONRPC: jsonRPCVersion,
		ID:      []byte(strconv.FormatInt(id, 10)),
		Method:  method,
		Params:  rawParams,
	}
	if err := c.write(&req); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-c.incoming:
			if !ok {
				if c.readErr != nil {
					return fmt.Errorf("%w: %v", ErrConnectionClosed, c.readErr)
				}
				return ErrConnectionClosed
			}
			if string(msg.ID) != string(req.ID) {
				// A late answer to a call we gave up on.
				c.log.Warn("Discarding response with unexpected id", zap.ByteString("id", msg.ID))
				continue
			}
			if msg.Error != nil {
				return msg.Error
			}
			if out == nil || len(msg.Result) == 0 {
				return nil
			}
			if err := json.Unmarshal(msg.Result, out); err != nil {
				return fmt.Errorf("failed to decode %s result: %w", method, err)
			}
			return nil
		}
	}
}

func (c *Client) notify(method string, params any) error {
	msg := message{JSONRPC: jsonRPCVersion, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return err
		}
		msg.Params = raw
	}
	return c.write(&msg)
}

func (c *Client) write(msg *message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		if errors.Is(err, io.ErrClosedPipe) {
			return ErrConnectionClosed
		}
		return fmt.Errorf("failed to write %s: %w", msg.Method, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.incoming)

	rd := bufio.NewReader(c.conn)
	for {
		line, err := rd.ReadBytes('\n')
		if len(line) > 0 {
			if !c.dispatch(line) {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				c.readErr = err
			}
			return
		}
	}
}

// dispatch routes one inbound line. It returns false once the client is
// closing.
func (c *Client) dispatch(line []byte) bool {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return true
	}
	var msg message
	if err := json.Unmarshal(line, &msg); err != nil {
		c.log.Warn("Ignoring malformed message from server", zap.Error(err))
		return true
	}
	if !msg.isResponse() {
		// Server-initiated requests and notifications are not used by the
		// tool flow.
		c.log.Debug("Ignoring server message", zap.String("method", msg.Method))
		return true
	}
	select {
	case c.incoming <- &msg:
		return true
	case <-c.closing:
		return false
	}
}
