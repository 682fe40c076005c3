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

import "fmt"

// CommandKind is the closed set of inbound remote requests.
type CommandKind int

const (
	QueryAll CommandKind = iota
	QueryHumidity
	QueryTemperature
	QueryCO2
	ToggleUpdateGate
	GenericEcho
	Heartbeat
)

func (k CommandKind) String() string {
	switch k {
	case QueryAll:
		return "query-all"
	case QueryHumidity:
		return "query-humidity"
	case QueryTemperature:
		return "query-temperature"
	case QueryCO2:
		return "query-co2"
	case ToggleUpdateGate:
		return "toggle-update-gate"
	case GenericEcho:
		return "generic-echo"
	case Heartbeat:
		return "heartbeat"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Command is one decoded remote request. Enable is only meaningful for
// ToggleUpdateGate and Payload only for GenericEcho.
type Command struct {
	Kind    CommandKind
	Enable  bool
	Payload string
}

func (c Command) String() string {
	switch c.Kind {
	case ToggleUpdateGate:
		return fmt.Sprintf("%s(%t)", c.Kind, c.Enable)
	case GenericEcho:
		return fmt.Sprintf("%s(%q)", c.Kind, c.Payload)
	default:
		return c.Kind.String()
	}
}
