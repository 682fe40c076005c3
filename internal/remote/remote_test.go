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
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		payload string
		want    node.Command
	}{
		{`{"type":"query","query":"humidity"}`, node.Command{Kind: node.QueryHumidity}},
		{`{"type":"query","query":"temp"}`, node.Command{Kind: node.QueryTemperature}},
		{`{"type":"query","query":"co2"}`, node.Command{Kind: node.QueryCO2}},
		{`{"type":"query","query":"all"}`, node.Command{Kind: node.QueryAll}},
		{`{"type":"query","query":"pm25"}`, node.Command{Kind: node.QueryAll}},
		{`{"type":"button","key":"btn-ota","state":"on"}`, node.Command{Kind: node.ToggleUpdateGate, Enable: true}},
		{`{"type":"button","key":"btn-ota","state":"off"}`, node.Command{Kind: node.ToggleUpdateGate}},
		{`{"type":"data","data":"ping"}`, node.Command{Kind: node.GenericEcho, Payload: "ping"}},
		{`{"type":"heartbeat"}`, node.Command{Kind: node.Heartbeat}},
		{`{"type":"reboot"}`, node.Command{Kind: node.QueryAll}},
		{`{"type":"button","key":"btn-led","state":"on"}`, node.Command{Kind: node.QueryAll}},
		{`not json`, node.Command{Kind: node.QueryAll}},
		{``, node.Command{Kind: node.QueryAll}},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode([]byte(tt.payload)))
		})
	}
}

func TestDecodeStrict(t *testing.T) {
	_, err := DecodeStrict([]byte(`{"type":"reboot"}`))
	assert.ErrorIs(t, err, node.ErrMalformedCommand)

	_, err = DecodeStrict([]byte(`{`))
	assert.ErrorIs(t, err, node.ErrMalformedCommand)
}

func TestPendingKeepsLatest(t *testing.T) {
	var p pending
	p.put("temp", 20.0)
	p.put("temp", 21.0)
	p.put("humi", 40.0)

	r := p.take("dev")
	assert.Equal(t, "dev", r.DeviceID)
	assert.Equal(t, map[string]any{"temp": 21.0, "humi": 40.0}, r.Values)
	assert.Empty(t, p.take("dev").Values)
}

func TestPendingOnlyCollectsReportMetrics(t *testing.T) {
	var p pending
	p.put(node.ValueVibrate, true)
	p.put(node.ValueMillis, int64(1200))
	p.put(node.ValueEchoNumber, 45.0)
	p.put(node.ValueOTAButton, node.Button{Text: "OTA enabled", State: "on"})
	p.put(node.ValueTemperature, 21.0)
	p.put(node.ValueHumidity, 40.0)
	p.put(node.ValueCO2, uint16(410))

	r := p.take("dev")
	assert.Equal(t, map[string]any{"temp": 21.0, "humi": 40.0, "co2": uint16(410)}, r.Values)
}

func TestOutboxDropsWhenFull(t *testing.T) {
	o := newOutbox(logger.New("Test"))
	for i := 0; i < outboxSize; i++ {
		require.NoError(t, o.put(frame{msg: ValueFrame{Name: "temp", Value: i}}))
	}
	err := o.put(frame{msg: ValueFrame{Name: "temp", Value: -1}})
	assert.ErrorIs(t, err, errOutboxFull)
	assert.EqualValues(t, 1, o.dropped.Load())

	var written []any
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.run(ctx, func(f frame) error {
			written = append(written, f.msg.(ValueFrame).Value)
			if len(written) == outboxSize {
				cancel()
			}
			return nil
		})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("outbox not drained")
	}
	require.Len(t, written, outboxSize)
	assert.Equal(t, 0, written[0])
	assert.Equal(t, outboxSize-1, written[outboxSize-1])
}

// --- mqtt ---

type doneToken struct{ err error }

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic   string
	payload string
}

type fakeMQTT struct {
	mqtt.Client // unused methods panic

	mu         sync.Mutex
	open       bool
	block      chan struct{}
	published  []published
	subscribed []string
}

func (f *fakeMQTT) sent() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}

func (f *fakeMQTT) IsConnectionOpen() bool { return f.open }

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{topic, string(payload.([]byte))})
	return doneToken{}
}

func (f *fakeMQTT) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	f.subscribed = append(f.subscribed, topic)
	return doneToken{}
}

type fakeMessage struct {
	mqtt.Message
	payload []byte
}

func (m fakeMessage) Payload() []byte { return m.payload }
func (m fakeMessage) Topic() string   { return "airnode/dev1/cmd" }

func newTestMQTT() (*MQTT, *fakeMQTT) {
	c := NewMQTT(MQTTOptions{Broker: "localhost", DeviceID: "dev1", AuthKey: "secret"})
	fake := &fakeMQTT{open: true}
	c.client = fake
	return c, fake
}

func TestMQTTPushAndFlush(t *testing.T) {
	c, fake := newTestMQTT()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.out.run(ctx, c.write)

	require.NoError(t, c.PushValue(node.ValueTemperature, 21.5))
	require.NoError(t, c.PushValue(node.ValueCO2, uint16(420)))
	require.NoError(t, c.Flush())

	require.Eventually(t, func() bool { return len(fake.sent()) == 3 }, 2*time.Second, 10*time.Millisecond)
	got := fake.sent()
	assert.Equal(t, published{"airnode/dev1/state/temp", "21.5"}, got[0])
	assert.Equal(t, published{"airnode/dev1/state/co2", "420"}, got[1])

	assert.Equal(t, "airnode/dev1/report", got[2].topic)
	var r Report
	require.NoError(t, json.Unmarshal([]byte(got[2].payload), &r))
	assert.Equal(t, "dev1", r.DeviceID)
	assert.Equal(t, map[string]any{"temp": 21.5, "co2": 420.0}, r.Values)
}

func TestMQTTNotConnected(t *testing.T) {
	c, fake := newTestMQTT()
	fake.open = false

	assert.ErrorIs(t, c.PushValue(node.ValueHumidity, 50.0), errNotConnected)
	assert.Empty(t, c.out.ch)
	assert.Empty(t, fake.sent())
}

func TestMQTTStalledBrokerDoesNotBlockPush(t *testing.T) {
	c, fake := newTestMQTT()
	fake.block = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.out.run(ctx, c.write)

	returned := make(chan error, 1)
	go func() {
		var err error
		for i := 0; i < outboxSize+2; i++ {
			err = c.PushValue(node.ValueTemperature, float64(i))
		}
		returned <- err
	}()

	select {
	case err := <-returned:
		assert.ErrorIs(t, err, errOutboxFull)
	case <-time.After(2 * time.Second):
		t.Fatal("PushValue blocked on a stalled broker")
	}
	assert.NotZero(t, c.out.dropped.Load())

	close(fake.block)
	assert.Eventually(t, func() bool { return len(fake.sent()) > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestMQTTCommands(t *testing.T) {
	c, fake := newTestMQTT()

	var got []node.Command
	c.OnCommand(func(cmd node.Command) { got = append(got, cmd) })

	c.onConnect(fake)
	assert.Equal(t, []string{"airnode/dev1/cmd"}, fake.subscribed)

	c.onMessage(fake, fakeMessage{payload: []byte(`{"type":"query","query":"co2"}`)})
	c.onMessage(fake, fakeMessage{payload: []byte(`garbage`)})
	assert.Equal(t, []node.Command{{Kind: node.QueryCO2}, {Kind: node.QueryAll}}, got)
}

// --- websocket ---

func TestWebSocketChannel(t *testing.T) {
	frames := make(chan string, 10)
	authHeader := make(chan string, 1)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"button","key":"btn-ota","state":"on"}`))
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- string(data)
		}
	}))
	defer srv.Close()

	c := NewWebSocket("ws"+strings.TrimPrefix(srv.URL, "http"), "dev1", "secret")
	commands := make(chan node.Command, 1)
	c.OnCommand(func(cmd node.Command) { commands <- cmd })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	select {
	case cmd := <-commands:
		assert.Equal(t, node.Command{Kind: node.ToggleUpdateGate, Enable: true}, cmd)
	case <-time.After(2 * time.Second):
		t.Fatal("no command received")
	}
	assert.Equal(t, "Bearer secret", <-authHeader)

	require.NoError(t, c.PushValue(node.ValueHumidity, 44.0))
	require.NoError(t, c.Flush())

	select {
	case f := <-frames:
		assert.JSONEq(t, `{"name":"humi","value":44}`, f)
	case <-time.After(2 * time.Second):
		t.Fatal("no value frame")
	}
	select {
	case f := <-frames:
		var rf ReportFrame
		require.NoError(t, json.Unmarshal([]byte(f), &rf))
		assert.Equal(t, map[string]any{"humi": 44.0}, rf.Report.Values)
	case <-time.After(2 * time.Second):
		t.Fatal("no report frame")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.ErrorIs(t, c.PushValue(node.ValueHumidity, 1.0), errNotConnected)
}

func TestWebSocketPushDoesNotWaitForWriter(t *testing.T) {
	c := NewWebSocket("ws://127.0.0.1:1", "dev1", "secret")
	c.connected.Store(true)

	for i := 0; i < outboxSize; i++ {
		require.NoError(t, c.PushValue(node.ValueVibrate, true))
	}
	assert.ErrorIs(t, c.PushValue(node.ValueVibrate, true), errOutboxFull)
	assert.ErrorIs(t, c.Flush(), errOutboxFull)
	assert.EqualValues(t, 2, c.out.dropped.Load())
}
