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

package node

import (
	"airnode/pkg/logger"
	"fmt"
	"time"
)

// ClimateSampler reads the climate sensor and republishes the result as the
// shared compensation input.
type ClimateSampler struct {
	sensor  ClimateSensor
	reading *ClimateReading
	last    lastGood
	faults  uint64
	now     func() time.Time
	log     *logger.Logger
}

func NewClimateSampler(sensor ClimateSensor, reading *ClimateReading) *ClimateSampler {
	return &ClimateSampler{
		sensor:  sensor,
		reading: reading,
		now:     time.Now,
		log:     logger.New("Climate"),
	}
}

// Sample reads the sensor once. On any fault the previous reading is
// returned unchanged; a bad read is never fatal.
func (c *ClimateSampler) Sample() ClimateReading {
	r, err := c.read()
	if err != nil {
		c.faults++
		c.log.Error("keeping previous reading: %v", err)
		return *c.reading
	}

	*c.reading = r
	c.last = lastGood{reading: r, at: c.now(), ok: true}
	c.log.Debug("humidity: %4.1f%%\ttemperature: %4.1f°C", r.HumidityPct, r.TemperatureC)
	return r
}

// Faults counts rejected samples since start.
func (c *ClimateSampler) Faults() uint64 {
	return c.faults
}

func (c *ClimateSampler) read() (ClimateReading, error) {
	h, err := c.sensor.ReadHumidityPct()
	if err != nil {
		return ClimateReading{}, fmt.Errorf("%w: humidity: %v", ErrSensorFault, err)
	}
	t, err := c.sensor.ReadTemperatureC()
	if err != nil {
		return ClimateReading{}, fmt.Errorf("%w: temperature: %v", ErrSensorFault, err)
	}

	r := ClimateReading{TemperatureC: t, HumidityPct: h}
	if err := invalidReadingDetection(r, c.last, c.now()); err != nil {
		return ClimateReading{}, fmt.Errorf("%w: %v", ErrSensorFault, err)
	}
	return r, nil
}
