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

package modbus

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ReadFloat reads a named register and returns its scaled value.
func (c *Client) ReadFloat(name string) (float64, error) {
	def, ok := c.config.Registers[name]
	if !ok {
		return 0, fmt.Errorf("register %q not configured", name)
	}

	n, err := registerCount(def.DataType)
	if err != nil {
		return 0, err
	}
	raw, err := c.ReadRegisters(c.ctx, def.Type, def.Address, n)
	if err != nil {
		return 0, fmt.Errorf("register read failed for %s: %w", name, err)
	}
	return decode(def, raw)
}

// decode converts raw big-endian register bytes per def.
func decode(def RegisterDef, raw []byte) (float64, error) {
	n, err := registerCount(def.DataType)
	if err != nil {
		return 0, err
	}
	if len(raw) < int(n)*2 {
		return 0, fmt.Errorf("short register data: %d bytes", len(raw))
	}

	var v float64
	switch def.DataType {
	case "float32":
		v = float64(math.Float32frombits(binary.BigEndian.Uint32(raw)))
	case "int16":
		v = float64(int16(binary.BigEndian.Uint16(raw)))
	case "uint16":
		v = float64(binary.BigEndian.Uint16(raw))
	}

	if def.Scale != 0 {
		v = v*def.Scale + def.Offset
	}
	return v, nil
}

func registerCount(dataType string) (uint16, error) {
	switch dataType {
	case "uint16", "int16":
		return 1, nil
	case "float32":
		return 2, nil
	default:
		return 0, fmt.Errorf("unsupported data type %q", dataType)
	}
}
