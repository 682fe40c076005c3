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
)

// BaselineEvery is how many successful measurements are counted before a
// new baseline is captured. The capture happens on the measurement after
// the counter passes this value.
const BaselineEvery = 30

// BaselineTracker is the only writer of BaselineState.
type BaselineTracker struct {
	sensor GasSensor
	state  *BaselineState
	log    *logger.Logger
}

func NewBaselineTracker(sensor GasSensor, state *BaselineState) *BaselineTracker {
	return &BaselineTracker{
		sensor: sensor,
		state:  state,
		log:    logger.New("Baseline"),
	}
}

// RecordSuccess is called once per successful gas measurement. It returns
// the freshly captured baseline and true on every (BaselineEvery+1)-th call.
// The counter reset sticks even if the sensor then fails to report.
func (b *BaselineTracker) RecordSuccess() (Baseline, bool) {
	b.state.Counter++
	if b.state.Counter <= BaselineEvery {
		return Baseline{}, false
	}
	b.state.Counter = 0

	base, err := b.sensor.Baseline()
	if err != nil {
		b.log.Error("%v: %v", ErrBaselineUnavailable, err)
		return Baseline{}, false
	}
	b.state.Baseline = base
	b.log.Info("baseline values: eCO2: %#X & TVOC: %#X", base.ECO2, base.TVOC)
	return base, true
}

// Reset zeroes the counter without touching the stored baseline.
func (b *BaselineTracker) Reset() {
	b.state.Counter = 0
}
