package automator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// rpcConn is a minimal DevTools-protocol connection: JSON-RPC calls matched
// to responses by id, protocol events discarded. Writes are serialized;
// a single read loop dispatches everything.
type rpcConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	nextID  atomic.Int64
	pending map[int64]chan rpcResult
	pendMu  sync.Mutex

	closed  chan struct{}
	closeMu sync.Mutex
	err     error

	logger *slog.Logger
}

type rpcResult struct {
	result gjson.Result
	err    error
}

type rpcRequest struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

var errConnClosed = errors.New("devtools connection closed")

func dialConn(ctx context.Context, wsURL string, logger *slog.Logger) (*rpcConn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial devtools socket: %w", err)
	}
	c := &rpcConn{
		ws:      ws,
		pending: make(map[int64]chan rpcResult),
		closed:  make(chan struct{}),
		logger:  logger,
	}
	go c.readLoop()
	return c, nil
}

// call issues one protocol command and waits for its response.
func (c *rpcConn) call(ctx context.Context, method string, params any) (gjson.Result, error) {
	id := c.nextID.Add(1)
	ch := make(chan rpcResult, 1)

	c.pendMu.Lock()
	c.pending[id] = ch
	c.pendMu.Unlock()
	defer func() {
		c.pendMu.Lock()
		delete(c.pending, id)
		c.pendMu.Unlock()
	}()

	payload, err := json.Marshal(rpcRequest{ID: id, Method: method, Params: params})
	if err != nil {
		return gjson.Result{}, err
	}

	c.writeMu.Lock()
	err = c.ws.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		return gjson.Result{}, fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return gjson.Result{}, ctx.Err()
	case <-c.closed:
		return gjson.Result{}, c.closeErr()
	case res := <-ch:
		return res.result, res.err
	}
}

func (c *rpcConn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}

		msg := gjson.ParseBytes(data)
		idField := msg.Get("id")
		if !idField.Exists() {
			// Protocol event; nothing subscribes to events here.
			c.logger.Debug("devtools event", "method", msg.Get("method").String())
			continue
		}

		var res rpcResult
		if errField := msg.Get("error"); errField.Exists() {
			res.err = fmt.Errorf("devtools: %s", errField.Get("message").String())
		} else {
			res.result = msg.Get("result")
		}

		c.pendMu.Lock()
		ch, ok := c.pending[idField.Int()]
		c.pendMu.Unlock()
		if ok {
			ch <- res
		}
	}
}

// shutdown marks the connection dead and unblocks every pending call.
func (c *rpcConn) shutdown(err error) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	select {
	case <-c.closed:
		return
	default:
	}
	c.err = err
	close(c.closed)
}

func (c *rpcConn) closeErr() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.err != nil {
		return fmt.Errorf("%w: %v", errConnClosed, c.err)
	}
	return errConnClosed
}

func (c *rpcConn) Close() error {
	c.shutdown(nil)
	return c.ws.Close()
}
