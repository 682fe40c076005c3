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
	"errors"
	"time"
)

var (
	// ErrSensorFault is a single failed read or measure call. The previous
	// value is kept and the next tick retries.
	ErrSensorFault = errors.New("transient sensor fault")

	// ErrBaselineUnavailable means the gas sensor could not report its
	// calibration baseline when asked.
	ErrBaselineUnavailable = errors.New("baseline unavailable")

	// ErrMalformedCommand is returned by strict decoders; the dispatcher
	// treats such input as QueryAll.
	ErrMalformedCommand = errors.New("malformed command")
)

// ClimateReading is overwritten on every good climate tick.
type ClimateReading struct {
	TemperatureC float64 `json:"temperature_c"`
	HumidityPct  float64 `json:"humidity_pct"`
}

// GasReading is overwritten on every successful gas measurement.
type GasReading struct {
	TVOCppb uint16 `json:"tvoc_ppb"`
	ECO2ppm uint16 `json:"eco2_ppm"`
}

// Baseline is the drift-compensation pair reported by the gas sensor.
type Baseline struct {
	ECO2 uint16 `json:"eco2"`
	TVOC uint16 `json:"tvoc"`
}

type BaselineState struct {
	Baseline
	Counter uint8 `json:"counter"`
}

type UpdateGate struct {
	Enabled bool `json:"enabled"`
}

// State is every piece of mutable node state. It is owned by the Scheduler
// and only touched from its loop; each component borrows the fields it is
// allowed to write.
type State struct {
	Climate      ClimateReading
	Gas          GasReading
	Baseline     BaselineState
	Gate         UpdateGate
	Compensation uint32
}

// IntervalID names one of the periodic tick sources.
type IntervalID string

const (
	IntervalClimate IntervalID = "climate"
	IntervalGas     IntervalID = "gas"
)

// Clock registers periodic callbacks. Callbacks may run on any goroutine.
type Clock interface {
	OnIntervalElapsed(id IntervalID, every time.Duration, fn func()) (stop func())
}

// ClimateSensor reads temperature and relative humidity.
type ClimateSensor interface {
	ReadTemperatureC() (float64, error)
	ReadHumidityPct() (float64, error)
}

// GasSensor is a humidity-compensated TVOC/eCO2 sensor.
type GasSensor interface {
	SetCompensation(mgPerM3 uint32) error
	Measure() (GasReading, error)
	Baseline() (Baseline, error)
}

// Channel is the bidirectional remote control/telemetry link.
type Channel interface {
	PushValue(name string, value any) error
	// Flush sends everything pushed since the last flush as one report.
	Flush() error
	OnCommand(handler func(Command))
}

// Updater services firmware updates. Handle must return promptly.
type Updater interface {
	Handle()
}

// UpdateIdler is an Updater that holds resources while the gate is open.
// Idle is called once each time the gate closes.
type UpdateIdler interface {
	Updater
	Idle()
}
