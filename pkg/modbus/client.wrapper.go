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

package modbus

import (
	"airnode/pkg/logger"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	wrapper "github.com/grid-x/modbus"
)

// registerReader is the subset of the grid-x client used for reads.
type registerReader interface {
	ReadHoldingRegisters(ctx context.Context, address, quantity uint16) ([]byte, error)
	ReadInputRegisters(ctx context.Context, address, quantity uint16) ([]byte, error)
}

type Client struct {
	mu      sync.Mutex
	handler *wrapper.TCPClientHandler
	client  registerReader
	config  *Config
	log     *logger.Logger
	ctx     context.Context
	dial    func() (registerReader, error)
}

// NewClient connects a Modbus TCP client. Unlike a control loop, a sensor
// read may not block for long, so connecting is attempted once here and
// again at most once per failed read.
func NewClient(ctx context.Context, config *Config) (*Client, error) {
	c := &Client{
		config: config,
		log:    logger.New("ModbusConn"),
		ctx:    ctx,
	}
	c.dial = c.dialTCP
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) dialTCP() (registerReader, error) {
	if c.handler != nil {
		_ = c.handler.Close()
		c.handler = nil
	}

	url := fmt.Sprintf("%s:%d", c.config.Modbus.Host, c.config.Modbus.Port)
	handler := wrapper.NewTCPClientHandler(url)
	handler.SlaveID = c.config.Modbus.SlaveID
	handler.Timeout = time.Second * time.Duration(c.config.Modbus.Timeout)
	handler.ProtocolRecoveryTimeout = 250 * time.Millisecond
	handler.LinkRecoveryTimeout = 2 * time.Second

	c.log.Info("Connecting to %s...", url)
	if err := handler.Connect(c.ctx); err != nil {
		return nil, fmt.Errorf("modbus connect failed: %w", err)
	}
	c.handler = handler
	c.log.Info("Connected to %s", url)
	return wrapper.NewClient(handler), nil
}

// connect (re)connects the client once.
func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := c.dial()
	if err != nil {
		return err
	}
	c.client = client
	return nil
}

// retry runs op, and on a connection error reconnects once and runs it
// one more time.
func (c *Client) retry(op func() error) error {
	err := op()
	if err == nil || !isConnError(err) {
		return err
	}

	c.log.Error("connection error: %v, reconnecting", err)
	if cerr := c.connect(); cerr != nil {
		return fmt.Errorf("%w (reconnect: %v)", err, cerr)
	}
	return op()
}

// ReadRegisters reads quantity registers of the given kind.
func (c *Client) ReadRegisters(ctx context.Context, kind string, addr, quantity uint16) ([]byte, error) {
	var data []byte
	err := c.retry(func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.client == nil {
			return net.ErrClosed
		}
		var rerr error
		if kind == "input" {
			data, rerr = c.client.ReadInputRegisters(ctx, addr, quantity)
		} else {
			data, rerr = c.client.ReadHoldingRegisters(ctx, addr, quantity)
		}
		return rerr
	})
	return data, err
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler != nil {
		_ = c.handler.Close()
		c.handler = nil
	}
	c.client = nil
}

// --- helpers ---

func isConnError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "closed by the remote host") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "connection refused")
}
