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
	"encoding/json"
	"fmt"
	"strings"
)

// Envelope is the JSON form of an inbound command:
//
//	{"type":"query","query":"humidity"}
//	{"type":"button","key":"btn-ota","state":"on"}
//	{"type":"data","data":"hello"}
//	{"type":"heartbeat"}
type Envelope struct {
	Type  string `json:"type"`
	Query string `json:"query,omitempty"`
	Key   string `json:"key,omitempty"`
	State string `json:"state,omitempty"`
	Data  string `json:"data,omitempty"`
}

// Decode never fails: anything it cannot make sense of becomes QueryAll.
func Decode(payload []byte) node.Command {
	cmd, err := DecodeStrict(payload)
	if err != nil {
		return node.Command{Kind: node.QueryAll}
	}
	return cmd
}

// DecodeStrict is Decode without the QueryAll fallback for malformed
// input. Unknown query codes still map to QueryAll.
func DecodeStrict(payload []byte) (node.Command, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return node.Command{}, fmt.Errorf("%w: %v", node.ErrMalformedCommand, err)
	}

	switch strings.ToLower(env.Type) {
	case "query":
		return node.Command{Kind: queryKind(env.Query)}, nil

	case "button":
		if env.Key != node.ValueOTAButton {
			return node.Command{}, fmt.Errorf("%w: unknown button %q", node.ErrMalformedCommand, env.Key)
		}
		return node.Command{Kind: node.ToggleUpdateGate, Enable: env.State == "on"}, nil

	case "data":
		return node.Command{Kind: node.GenericEcho, Payload: env.Data}, nil

	case "heartbeat":
		return node.Command{Kind: node.Heartbeat}, nil

	default:
		return node.Command{}, fmt.Errorf("%w: unknown type %q", node.ErrMalformedCommand, env.Type)
	}
}

func queryKind(q string) node.CommandKind {
	switch strings.ToLower(q) {
	case "humidity", "humi":
		return node.QueryHumidity
	case "temperature", "temp":
		return node.QueryTemperature
	case "co2":
		return node.QueryCO2
	default:
		return node.QueryAll
	}
}
