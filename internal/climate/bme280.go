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

// Package climate provides the temperature and humidity sources the node
// can sample: a BME280 on the local I²C bus or a Modbus TCP sensor.
package climate

import (
	"airnode/internal/node"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
)

const DefaultBME280Address uint16 = 0x76

// sensor is the part of *bmxx80.Dev that is used here.
type sensor interface {
	Sense(e *physic.Env) error
	Halt() error
}

// BME280 implements node.ClimateSensor. The device measures temperature
// and humidity together, so a humidity read takes a fresh measurement and
// the temperature read that follows returns the same one.
type BME280 struct {
	mu     sync.Mutex
	dev    sensor
	env    physic.Env
	cached bool
}

var _ node.ClimateSensor = (*BME280)(nil)

func NewBME280(bus i2c.Bus, addr uint16) (*BME280, error) {
	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("bmxx80.NewI2C: %w", err)
	}
	return &BME280{dev: dev}, nil
}

func (b *BME280) ReadHumidityPct() (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.dev.Sense(&b.env); err != nil {
		b.cached = false
		return 0, err
	}
	b.cached = true
	return float64(b.env.Humidity) / float64(physic.PercentRH), nil
}

func (b *BME280) ReadTemperatureC() (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.cached {
		if err := b.dev.Sense(&b.env); err != nil {
			return 0, err
		}
	}
	b.cached = false
	return b.env.Temperature.Celsius(), nil
}

func (b *BME280) Close() error {
	return b.dev.Halt()
}
