// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package remote

import (
	"airnode/internal/node"
	"airnode/pkg/logger"
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ValueFrame is sent for every pushed value.
type ValueFrame struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// ReportFrame is sent on flush.
type ReportFrame struct {
	Report Report `json:"report"`
}

// WebSocket is a node.Channel over a websocket connection to a remote
// control server. Inbound text frames are command envelopes.
type WebSocket struct {
	url       string
	deviceID  string
	authKey   string
	conn      *websocket.Conn
	mu        sync.Mutex
	connected atomic.Bool
	out       *outbox
	pending   pending
	retryWait time.Duration
	writeWait time.Duration

	hmu     sync.RWMutex
	handler func(node.Command)

	log *logger.Logger
}

var _ node.Channel = (*WebSocket)(nil)

func NewWebSocket(url, deviceID, authKey string) *WebSocket {
	log := logger.New("WebSocket")
	return &WebSocket{
		url:       url,
		deviceID:  deviceID,
		authKey:   authKey,
		retryWait: 5 * time.Second,
		writeWait: 2 * time.Second,
		out:       newOutbox(log),
		log:       log,
	}
}

func (c *WebSocket) OnCommand(handler func(node.Command)) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.handler = handler
}

func (c *WebSocket) PushValue(name string, value any) error {
	c.pending.put(name, value)
	return c.send(ValueFrame{Name: name, Value: value})
}

func (c *WebSocket) Flush() error {
	return c.send(ReportFrame{Report: c.pending.take(c.deviceID)})
}

// send queues msg for the writer goroutine and returns at once.
func (c *WebSocket) send(msg any) error {
	if !c.connected.Load() {
		return fmt.Errorf("websocket: %w", errNotConnected)
	}
	if err := c.out.put(frame{msg: msg}); err != nil {
		return fmt.Errorf("websocket: %w", err)
	}
	return nil
}

// write runs on the writer goroutine. A failed write drops the connection
// so the reader dials again.
func (c *WebSocket) write(f frame) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return errNotConnected
	}
	conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	err := conn.WriteJSON(f.msg)
	c.mu.Unlock()
	if err != nil {
		c.Close()
	}
	return err
}

// Connect dials the server once, without holding the write lock.
func (c *WebSocket) Connect(ctx context.Context) error {
	c.mu.Lock()
	connected := c.conn != nil
	c.mu.Unlock()
	if connected {
		return nil
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.authKey)
	header.Set("X-Device-Id", c.deviceID)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		conn.Close()
		return nil
	}
	c.conn = conn
	c.connected.Store(true)
	c.log.Info("Connected to %s", c.url)
	return nil
}

// Close drops the current connection; Run will dial again.
func (c *WebSocket) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		tmpConn := c.conn
		c.conn = nil
		c.connected.Store(false)
		tmpConn.Close()
		c.log.Info("Closed")
	}
}

// Run keeps a connection open and feeds inbound commands to the handler
// until ctx is done.
func (c *WebSocket) Run(ctx context.Context) {
	// When the context is cancelled, close the websocket to unblock reads
	go func() {
		<-ctx.Done()
		c.Close()
	}()
	go c.out.run(ctx, c.write)

	for ctx.Err() == nil {
		if err := c.Connect(ctx); err != nil {
			c.log.Error("connect failed: %v (%v), retrying in %s", err, c.url, c.retryWait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryWait):
			}
			continue
		}

		for {
			if err := c.listenNext(); err != nil {
				c.Close()
				break
			}
		}
	}
}

func (c *WebSocket) listenNext() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("closed")
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		c.log.Error("ReadMessage: %v", err)
		return err
	}

	cmd := Decode(data)
	c.log.Debug("received %s", cmd)

	c.hmu.RLock()
	handler := c.handler
	c.hmu.RUnlock()
	if handler != nil {
		handler(cmd)
	}
	return nil
}
