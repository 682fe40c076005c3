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
	"airnode/internal/node"
	"fmt"
)

// Register names the Modbus map must define.
const (
	RegisterTemperature = "temperature"
	RegisterHumidity    = "humidity"
)

type floatReader interface {
	ReadFloat(name string) (float64, error)
}

// Modbus reads climate values from a Modbus TCP sensor through the
// register map. It implements node.ClimateSensor.
type Modbus struct {
	client floatReader
}

var _ node.ClimateSensor = (*Modbus)(nil)

// NewModbus takes a *modbus.Client.
func NewModbus(client floatReader) *Modbus {
	return &Modbus{client: client}
}

func (m *Modbus) ReadTemperatureC() (float64, error) {
	v, err := m.client.ReadFloat(RegisterTemperature)
	if err != nil {
		return 0, fmt.Errorf("modbus temperature: %w", err)
	}
	return v, nil
}

func (m *Modbus) ReadHumidityPct() (float64, error) {
	v, err := m.client.ReadFloat(RegisterHumidity)
	if err != nil {
		return 0, fmt.Errorf("modbus humidity: %w", err)
	}
	return v, nil
}
