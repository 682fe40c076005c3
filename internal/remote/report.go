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
	"sync"
	"time"
)

// Report is everything pushed since the previous flush, sent as one
// message.
type Report struct {
	DeviceID string         `json:"device_id"`
	Time     time.Time      `json:"time"`
	Values   map[string]any `json:"values"`
}

// reportMetrics are the values a flushing query pushes. Other pushes
// (vibrate, millis, echo numbers, button state) go out as single values only.
var reportMetrics = map[string]bool{
	node.ValueTemperature: true,
	node.ValueHumidity:    true,
	node.ValueCO2:         true,
}

// pending collects pushed report metrics until the next flush. A value
// pushed twice keeps the latest.
type pending struct {
	mu     sync.Mutex
	values map[string]any
}

func (p *pending) put(name string, value any) {
	if !reportMetrics[name] {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.values == nil {
		p.values = make(map[string]any)
	}
	p.values[name] = value
}

func (p *pending) take(deviceID string) Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := Report{DeviceID: deviceID, Time: time.Now(), Values: p.values}
	if r.Values == nil {
		r.Values = map[string]any{}
	}
	p.values = nil
	return r
}
