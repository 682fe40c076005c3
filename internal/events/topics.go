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

package events

import (
	"airnode/pkg/eventbus"
	"time"
)

var (
	TopicSnapshot eventbus.Topic = "node.snapshot"
	TopicBaseline eventbus.Topic = "node.baseline"
)

// NodeSnapshot is a copy of the scheduler state, published after every loop
// iteration that changed something.
type NodeSnapshot struct {
	DeviceID        string    `json:"device_id"`
	Time            time.Time `json:"time"`
	TemperatureC    float64   `json:"temperature_c"`
	HumidityPct     float64   `json:"humidity_pct"`
	TVOCppb         uint16    `json:"tvoc_ppb"`
	ECO2ppm         uint16    `json:"eco2_ppm"`
	Compensation    uint32    `json:"compensation_mg_m3"`
	BaselineECO2    uint16    `json:"baseline_eco2"`
	BaselineTVOC    uint16    `json:"baseline_tvoc"`
	BaselineCounter uint8     `json:"baseline_counter"`
	UpdateGate      bool      `json:"update_gate"`
	ClimateFaults   uint64    `json:"climate_faults"`
	GasFailures     uint64    `json:"gas_failures"`
}

type BaselineCaptured struct {
	DeviceID string    `json:"device_id"`
	Time     time.Time `json:"time"`
	ECO2     uint16    `json:"eco2"`
	TVOC     uint16    `json:"tvoc"`
}
