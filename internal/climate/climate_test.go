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

package climate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

type fakeEnv struct {
	envs   []physic.Env
	senses int
	err    error
	halted bool
}

func (f *fakeEnv) Sense(e *physic.Env) error {
	if f.err != nil {
		return f.err
	}
	*e = f.envs[f.senses%len(f.envs)]
	f.senses++
	return nil
}

func (f *fakeEnv) Halt() error {
	f.halted = true
	return nil
}

func TestBME280SingleMeasurementPerSample(t *testing.T) {
	dev := &fakeEnv{envs: []physic.Env{
		{Temperature: physic.ZeroCelsius + 21500*physic.MilliKelvin, Humidity: 45 * physic.PercentRH},
		{Temperature: physic.ZeroCelsius + 22*physic.Kelvin, Humidity: 47 * physic.PercentRH},
	}}
	b := &BME280{dev: dev}

	h, err := b.ReadHumidityPct()
	require.NoError(t, err)
	tc, err := b.ReadTemperatureC()
	require.NoError(t, err)
	assert.InDelta(t, 45, h, 1e-9)
	assert.InDelta(t, 21.5, tc, 1e-6)
	assert.Equal(t, 1, dev.senses)

	// a temperature read on its own measures again
	_, err = b.ReadTemperatureC()
	require.NoError(t, err)
	assert.Equal(t, 2, dev.senses)

	require.NoError(t, b.Close())
	assert.True(t, dev.halted)
}

func TestBME280Error(t *testing.T) {
	b := &BME280{dev: &fakeEnv{err: errors.New("i2c: nack")}}
	_, err := b.ReadHumidityPct()
	assert.Error(t, err)
	_, err = b.ReadTemperatureC()
	assert.Error(t, err)
}

type fakeRegisters map[string]float64

func (f fakeRegisters) ReadFloat(name string) (float64, error) {
	v, ok := f[name]
	if !ok {
		return 0, errors.New("register not configured")
	}
	return v, nil
}

func TestModbus(t *testing.T) {
	m := NewModbus(fakeRegisters{RegisterTemperature: 19.5, RegisterHumidity: 61})

	tc, err := m.ReadTemperatureC()
	require.NoError(t, err)
	assert.Equal(t, 19.5, tc)

	h, err := m.ReadHumidityPct()
	require.NoError(t, err)
	assert.Equal(t, 61.0, h)

	_, err = NewModbus(fakeRegisters{}).ReadHumidityPct()
	assert.ErrorContains(t, err, "modbus humidity")
}
