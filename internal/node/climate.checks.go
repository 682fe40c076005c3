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
	"fmt"
	"math"
	"time"
)

// lastGood is the most recent reading that passed every check.
type lastGood struct {
	reading ClimateReading
	at      time.Time
	ok      bool
}

type climateCheck func(r ClimateReading, last lastGood, now time.Time) error

var climateChecks = []climateCheck{
	finite_check,
	temperature_range_check,
	humidity_range_check,
	temperature_rate_check,
}

func invalidReadingDetection(r ClimateReading, last lastGood, now time.Time) error {
	for _, check := range climateChecks {
		if err := check(r, last, now); err != nil {
			return err
		}
	}
	return nil
}

func finite_check(r ClimateReading, _ lastGood, _ time.Time) error {
	if math.IsNaN(r.TemperatureC) || math.IsInf(r.TemperatureC, 0) {
		return fmt.Errorf("temperature is not a number")
	}
	if math.IsNaN(r.HumidityPct) || math.IsInf(r.HumidityPct, 0) {
		return fmt.Errorf("humidity is not a number")
	}
	return nil
}

func temperature_range_check(r ClimateReading, _ lastGood, _ time.Time) error {
	if r.TemperatureC < -40 {
		return fmt.Errorf("temperature too low: %.1f°C", r.TemperatureC)
	}
	if r.TemperatureC > 125 {
		return fmt.Errorf("temperature too high: %.1f°C", r.TemperatureC)
	}
	return nil
}

func humidity_range_check(r ClimateReading, _ lastGood, _ time.Time) error {
	if r.HumidityPct < 0 || r.HumidityPct > 100 {
		return fmt.Errorf("humidity out of range: %.1f%%", r.HumidityPct)
	}
	return nil
}

func temperature_rate_check(r ClimateReading, last lastGood, now time.Time) error {
	if !last.ok {
		return nil // nothing to compare against
	}

	const maxChangeC = 15.0
	const maxInterval = 8 * time.Minute

	delta := math.Abs(r.TemperatureC - last.reading.TemperatureC)
	dt := now.Sub(last.at)
	if dt < maxInterval && delta > maxChangeC {
		return fmt.Errorf("temperature changed too fast: Δ%.1f°C in %v", delta, dt.Truncate(time.Second))
	}
	return nil
}
