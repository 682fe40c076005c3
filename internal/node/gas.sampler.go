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
)

// GasSampler feeds the gas sensor its humidity compensation and takes one
// TVOC/eCO2 measurement per call.
type GasSampler struct {
	sensor       GasSensor
	reading      *GasReading
	compensation *uint32
	failures     uint64
	log          *logger.Logger
}

func NewGasSampler(sensor GasSensor, reading *GasReading, compensation *uint32) *GasSampler {
	return &GasSampler{
		sensor:       sensor,
		reading:      reading,
		compensation: compensation,
		log:          logger.New("Gas"),
	}
}

// Sample derives the compensation from latest, writes it to the sensor and
// then measures. The compensation is written every cycle even when latest
// has not changed. A rejected compensation write is logged and the
// measurement still goes ahead. On a failed measurement the last good
// reading is left untouched and no retry is made; the next tick retries.
func (g *GasSampler) Sample(latest ClimateReading) (GasReading, error) {
	ah := AbsoluteHumidity(latest.TemperatureC, latest.HumidityPct)
	*g.compensation = ah

	if err := g.sensor.SetCompensation(ah); err != nil {
		g.log.Warn("set compensation %d mg/m³: %v", ah, err)
	}

	r, err := g.sensor.Measure()
	if err != nil {
		g.failures++
		g.log.Error("measurement failed: %v", err)
		return *g.reading, fmt.Errorf("%w: measure: %v", ErrSensorFault, err)
	}

	*g.reading = r
	g.log.Debug("TVOC %d ppb\teCO2 %d ppm\t(AH %d mg/m³)", r.TVOCppb, r.ECO2ppm, ah)
	return r, nil
}

// Failures counts failed measurement cycles since start.
func (g *GasSampler) Failures() uint64 {
	return g.failures
}
