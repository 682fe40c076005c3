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
	"math"

	"github.com/chewxy/math32"
)

// AbsoluteHumidity returns absolute humidity in mg/m³ using the Magnus
// approximation from the SGP30 driver integration guide, computed in float32.
func AbsoluteHumidity(temperatureC, humidityPct float64) uint32 {
	t := float32(temperatureC)
	rh := float32(humidityPct)

	ah := 216.7 * ((rh / 100.0) * 6.112 * math32.Exp((17.62*t)/(243.12+t)) / (273.15 + t)) // g/m³
	mg := 1000.0 * ah
	if math32.IsNaN(mg) || mg <= 0 {
		return 0
	}
	if mg >= math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(mg)
}
