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
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
modbus:
  host: 192.168.1.50
  slave_id: 3
registers:
  temperature:
    address: 100
    type: input
    data_type: int16
    scale: 0.1
    description: air temperature
  humidity:
    address: 102
    data_type: float32
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(testConfig))
	require.NoError(t, err)

	assert.Equal(t, 502, cfg.Modbus.Port)
	assert.Equal(t, 1, cfg.Modbus.Timeout)
	assert.Equal(t, byte(3), cfg.Modbus.SlaveID)
	assert.Equal(t, "input", cfg.Registers["temperature"].Type)
	assert.Equal(t, "holding", cfg.Registers["humidity"].Type)
}

func TestParseConfigRejectsUnknownTypes(t *testing.T) {
	_, err := ParseConfig([]byte("registers:\n  x:\n    data_type: uint32\n"))
	assert.Error(t, err)

	_, err = ParseConfig([]byte("registers:\n  x:\n    data_type: uint16\n    type: coil\n"))
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		def  RegisterDef
		raw  []byte
		want float64
	}{
		{"uint16", RegisterDef{DataType: "uint16"}, []byte{0x01, 0x02}, 258},
		{"negative int16 scaled", RegisterDef{DataType: "int16", Scale: 0.1}, []byte{0xff, 0x9c}, -10},
		{"int16 offset", RegisterDef{DataType: "int16", Scale: 1, Offset: -40}, []byte{0x00, 0x41}, 25},
		{"float32", RegisterDef{DataType: "float32"}, []byte{0x41, 0xc8, 0x00, 0x00}, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decode(tt.def, tt.raw)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}

	_, err := decode(RegisterDef{DataType: "float32"}, []byte{0x00, 0x01})
	assert.Error(t, err)
}

type fakeReader struct {
	holding, input []byte
	err            error
	calls          int
}

func (f *fakeReader) ReadHoldingRegisters(context.Context, uint16, uint16) ([]byte, error) {
	f.calls++
	return f.holding, f.err
}

func (f *fakeReader) ReadInputRegisters(context.Context, uint16, uint16) ([]byte, error) {
	f.calls++
	return f.input, f.err
}

func newTestClient(t *testing.T, readers ...*fakeReader) (*Client, *int) {
	t.Helper()
	cfg, err := ParseConfig([]byte(testConfig))
	require.NoError(t, err)

	dials := 0
	c := &Client{config: cfg, ctx: context.Background(), log: logger.New("ModbusTest")}
	c.dial = func() (registerReader, error) {
		if dials >= len(readers) {
			return nil, errors.New("connection refused")
		}
		r := readers[dials]
		dials++
		return r, nil
	}
	require.NoError(t, c.connect())
	return c, &dials
}

func TestReadFloat(t *testing.T) {
	r := &fakeReader{input: []byte{0x00, 0xe1}, holding: []byte{0x42, 0x48, 0x00, 0x00}}
	c, _ := newTestClient(t, r)

	temp, err := c.ReadFloat("temperature")
	require.NoError(t, err)
	assert.InDelta(t, 22.5, temp, 1e-6)

	humi, err := c.ReadFloat("humidity")
	require.NoError(t, err)
	assert.InDelta(t, 50, humi, 1e-6)

	_, err = c.ReadFloat("pressure")
	assert.Error(t, err)
}

func TestReadReconnectsOnce(t *testing.T) {
	broken := &fakeReader{err: &net.OpError{Op: "read", Err: errors.New("connection reset by peer")}}
	good := &fakeReader{input: []byte{0x00, 0x64}}
	c, dials := newTestClient(t, broken, good)

	v, err := c.ReadFloat("temperature")
	require.NoError(t, err)
	assert.InDelta(t, 10, v, 1e-6)
	assert.Equal(t, 2, *dials)
	assert.Equal(t, 1, broken.calls)
}

func TestReadGivesUpAfterOneReconnect(t *testing.T) {
	broken := &fakeReader{err: &net.OpError{Op: "read", Err: errors.New("broken pipe")}}
	c, dials := newTestClient(t, broken)

	_, err := c.ReadFloat("temperature")
	assert.Error(t, err)
	assert.Equal(t, 1, *dials, "no endless reconnect loop")
}
