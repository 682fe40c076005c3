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
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type MQTTOptions struct {
	Broker      string
	Port        int
	TopicPrefix string
	DeviceID    string
	AuthKey     string
}

// MQTT is a node.Channel over an MQTT broker.
//
//	<prefix>/<device>/state/<name>   every pushed value, QoS 0
//	<prefix>/<device>/report         one JSON Report per flush
//	<prefix>/<device>/cmd            inbound command envelopes
//
// Publishing never waits on the broker.
type MQTT struct {
	opts    MQTTOptions
	client  mqtt.Client
	out     *outbox
	pending pending

	mu      sync.RWMutex
	handler func(node.Command)

	log *logger.Logger
}

var _ node.Channel = (*MQTT)(nil)

func NewMQTT(opts MQTTOptions) *MQTT {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "airnode"
	}
	if opts.Port == 0 {
		opts.Port = 1883
	}
	log := logger.New("MQTT")
	c := &MQTT{
		opts: opts,
		out:  newOutbox(log),
		log:  log,
	}
	mqtt.ERROR = logger.New("Paho").Std(slog.LevelError)
	mqtt.CRITICAL = mqtt.ERROR

	o := mqtt.NewClientOptions()
	o.AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Broker, opts.Port))
	o.SetClientID(opts.DeviceID)
	o.SetUsername(opts.DeviceID)
	o.SetPassword(opts.AuthKey)
	o.SetCleanSession(true)
	o.SetAutoReconnect(true)
	o.SetConnectRetry(true)
	o.SetConnectRetryInterval(5 * time.Second)
	o.SetMaxReconnectInterval(60 * time.Second)
	o.SetKeepAlive(30 * time.Second)
	o.SetPingTimeout(10 * time.Second)
	o.SetWriteTimeout(5 * time.Second)
	o.SetOnConnectHandler(c.onConnect)
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.log.Warn("connection lost: %v", err)
	})

	c.client = mqtt.NewClient(o)
	return c
}

func (c *MQTT) topic(leaf string) string {
	return fmt.Sprintf("%s/%s/%s", c.opts.TopicPrefix, c.opts.DeviceID, leaf)
}

// subscriptions are lost with a clean session, so they are renewed on
// every (re)connect.
func (c *MQTT) onConnect(client mqtt.Client) {
	c.log.Info("connected to %s:%d", c.opts.Broker, c.opts.Port)
	token := client.Subscribe(c.topic("cmd"), 1, c.onMessage)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			c.log.Error("subscribe %s: %v", c.topic("cmd"), err)
		}
	}()
}

func (c *MQTT) onMessage(_ mqtt.Client, msg mqtt.Message) {
	cmd := Decode(msg.Payload())
	c.log.Debug("received %s from %s", cmd, msg.Topic())

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()
	if handler != nil {
		handler(cmd)
	}
}

func (c *MQTT) OnCommand(handler func(node.Command)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *MQTT) PushValue(name string, value any) error {
	c.pending.put(name, value)
	return c.publish(c.topic("state/"+name), value)
}

func (c *MQTT) Flush() error {
	return c.publish(c.topic("report"), c.pending.take(c.opts.DeviceID))
}

func (c *MQTT) publish(topic string, v any) error {
	if !c.client.IsConnectionOpen() {
		return fmt.Errorf("mqtt: %w", errNotConnected)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	if err := c.out.put(frame{topic: topic, msg: data}); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	return nil
}

// write runs on the writer goroutine. Paho may hold Publish for up to
// the write timeout while its outbound queue is busy.
func (c *MQTT) write(f frame) error {
	token := c.client.Publish(f.topic, 0, false, f.msg)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("publish %s: timed out", f.topic)
	}
	return token.Error()
}

// Run connects and keeps the client alive until ctx is done. Paho retries
// the initial connection on its own.
func (c *MQTT) Run(ctx context.Context) {
	go c.out.run(ctx, c.write)

	token := c.client.Connect()
	select {
	case <-ctx.Done():
	case <-token.Done():
		if err := token.Error(); err != nil {
			c.log.Error("connect: %v", err)
		}
		<-ctx.Done()
	}
	c.client.Disconnect(250)
	c.log.Info("disconnected")
}
