package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"

	"github.com/nextlevelbuilder/squabble/pkg/protocol"
)

const readLimit = 4 << 20

var errClosed = errors.New("bridge: connection closed")

// rpcClient is one websocket connection to the sidecar with request/response
// correlation. Events are handed to onEvent from the read loop.
type rpcClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu      sync.Mutex
	pending map[string]chan *protocol.ResponseFrame
	closed  bool
}

func dial(ctx context.Context, url, token string) (*rpcClient, error) {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	h.Set("X-Protocol-Version", strconv.Itoa(protocol.ProtocolVersion))
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: h})
	if err != nil {
		return nil, fmt.Errorf("bridge: ws dial: %w", err)
	}
	conn.SetReadLimit(readLimit)
	return &rpcClient{conn: conn, pending: make(map[string]chan *protocol.ResponseFrame)}, nil
}

// call sends a request and waits for its response payload.
func (c *rpcClient) call(ctx context.Context, method string, params, out interface{}) error {
	id := strconv.FormatUint(c.nextID.Add(1), 10)
	req, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return err
	}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	ch := make(chan *protocol.ResponseFrame, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err = c.conn.Write(ctx, websocket.MessageText, data)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("bridge: write %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res, ok := <-ch:
		if !ok {
			return errClosed
		}
		if !res.OK {
			if res.Error != nil {
				return fmt.Errorf("bridge %s: %w", method, res.Error)
			}
			return fmt.Errorf("bridge %s: request failed", method)
		}
		if out != nil && len(res.Payload) > 0 {
			if err := json.Unmarshal(res.Payload, out); err != nil {
				return fmt.Errorf("bridge %s: decode: %w", method, err)
			}
		}
		return nil
	}
}

// readLoop dispatches frames until the connection fails, then fails all pending calls.
func (c *rpcClient) readLoop(ctx context.Context, onEvent func(*protocol.EventFrame)) error {
	defer c.failPending()
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case protocol.FrameTypeResponse:
			var res protocol.ResponseFrame
			if err := json.Unmarshal(data, &res); err != nil {
				continue
			}
			c.mu.Lock()
			ch := c.pending[res.ID]
			c.mu.Unlock()
			if ch != nil {
				ch <- &res
			}
		case protocol.FrameTypeEvent:
			var ev protocol.EventFrame
			if err := json.Unmarshal(data, &ev); err != nil {
				continue
			}
			onEvent(&ev)
		}
	}
}

func (c *rpcClient) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *rpcClient) close() {
	c.conn.Close(websocket.StatusNormalClosure, "agent stopping")
}

// closeInfo extracts the close code from a websocket error.
func closeInfo(err error) (websocket.StatusCode, string) {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Reason
	}
	return websocket.StatusAbnormalClosure, err.Error()
}
