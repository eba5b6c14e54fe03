package comfyui

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mohammednabarawy/video-gen/internal/logging"
	"github.com/mohammednabarawy/video-gen/internal/services"
)

// Connect opens the event stream, blocking for at most the handshake
// timeout. Connecting while already connected is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: connectTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.websocketURL(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return services.Wrap(services.ErrTransient, component, "connect", "open event stream", err)
	}

	c.mu.Lock()
	if c.conn != nil {
		// Lost a race with a concurrent Connect; keep the first stream.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	c.logger.Info("event stream connected", logging.String("client_id", c.clientID))
	return nil
}

// Disconnect closes the event stream. Safe to call repeatedly or while
// disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return
	}
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
	_ = conn.Close()
	c.logger.Debug("event stream disconnected")
}

// Connected reports whether the event stream is live.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// On registers a handler for an event kind. Handlers run synchronously on
// the stream reader goroutine in registration order and must not block.
func (c *Client) On(kind EventKind, handler func(Event)) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[kind] = append(c.handlers[kind], handler)
}

// ClearHandlers drops every registered handler.
func (c *Client) ClearHandlers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = make(map[EventKind][]func(Event))
}

func (c *Client) websocketURL() string {
	wsBase := strings.Replace(c.baseURL, "https://", "wss://", 1)
	wsBase = strings.Replace(wsBase, "http://", "ws://", 1)
	return wsBase + "/ws?clientId=" + url.QueryEscape(c.clientID)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			current := c.conn == conn
			if current {
				c.conn = nil
			}
			c.mu.Unlock()
			if current {
				c.logger.Debug("event stream closed", logging.Error(err))
			}
			return
		}
		switch messageType {
		case websocket.TextMessage:
			c.dispatchText(conn, data)
		case websocket.BinaryMessage:
			c.dispatchBinary(conn, data)
		}
	}
}

func (c *Client) dispatchText(conn *websocket.Conn, raw []byte) {
	var frame struct {
		Type EventKind       `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.logger.Warn("undecodable event frame", logging.Error(err))
		return
	}
	// Queue bookkeeping the client never consumes.
	if frame.Type == "status" {
		return
	}
	c.dispatch(conn, Event{Kind: frame.Type, Data: frame.Data})
}

func (c *Client) dispatchBinary(conn *websocket.Conn, frame []byte) {
	_, preview, ok := decodeBinaryFrame(frame)
	if !ok {
		c.logger.Debug("binary frame too short", logging.Int("bytes", len(frame)))
		return
	}
	c.dispatch(conn, Event{Kind: EventPreview, Preview: &preview})
}

func (c *Client) dispatch(conn *websocket.Conn, event Event) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	handlers := append(([]func(Event))(nil), c.handlers[event.Kind]...)
	c.mu.Unlock()
	for _, handler := range handlers {
		handler(event)
	}
}
