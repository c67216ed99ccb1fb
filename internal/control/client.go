package control

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Client sends requests over the websocket transport.
type Client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// Dial connects to a control endpoint such as ws://board:8080/ws/control.
// A non-empty token is sent as a bearer token.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (http %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{conn: conn}, nil
}

// Do sends req and waits for its response.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(dl)
		c.conn.SetWriteDeadline(dl)
	}
	frame, _ := req.MarshalBinary()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return Response{}, fmt.Errorf("send %s: %w", req.Type, err)
	}
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return Response{}, fmt.Errorf("receive %s: %w", req.Type, err)
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		var resp Response
		if err := resp.UnmarshalBinary(data); err != nil {
			return Response{}, err
		}
		return resp, nil
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}
