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
	"time"
)

// Names of the values pushed over the remote channel.
const (
	ValueTemperature = "temp"
	ValueHumidity    = "humi"
	ValueCO2         = "co2"
	ValueOTAButton   = "btn-ota"
	ValueVibrate     = "vibrate"
	ValueMillis      = "millis"
	ValueEchoNumber  = "num-i3n"
)

// Button is the confirmation pushed after the update gate changes.
type Button struct {
	Text  string `json:"text"`
	State string `json:"state"`
}

// Dispatcher answers remote commands from the current node state. It is
// driven from the scheduler loop only.
type Dispatcher struct {
	state   *State
	channel Channel
	start   time.Time
	since   func(time.Time) time.Duration
	log     *logger.Logger
}

func NewDispatcher(state *State, channel Channel) *Dispatcher {
	return &Dispatcher{
		state:   state,
		channel: channel,
		start:   time.Now(),
		since:   time.Since,
		log:     logger.New("Dispatcher"),
	}
}

// Handle applies a single command. Push and flush errors are logged and
// otherwise ignored; the remote side re-queries when it needs to.
func (d *Dispatcher) Handle(cmd Command) {
	d.log.Debug("command: %s", cmd)

	climate := d.state.Climate
	co2 := d.state.Gas.ECO2ppm

	switch cmd.Kind {
	case QueryHumidity:
		d.push(ValueHumidity, climate.HumidityPct)
		d.push(ValueTemperature, climate.TemperatureC)
		d.push(ValueCO2, co2)
		d.flush()

	case QueryTemperature:
		d.push(ValueTemperature, climate.TemperatureC)
		d.push(ValueHumidity, climate.HumidityPct)
		d.push(ValueCO2, co2)
		d.flush()

	case QueryCO2:
		d.push(ValueCO2, co2)

	case ToggleUpdateGate:
		d.state.Gate.Enabled = cmd.Enable
		btn := Button{Text: "OTA disabled", State: "off"}
		if cmd.Enable {
			btn = Button{Text: "OTA enabled", State: "on"}
		}
		d.log.Info("update gate: %s", btn.State)
		d.push(ValueOTAButton, btn)

	case GenericEcho:
		d.push(ValueVibrate, true)
		d.push(ValueMillis, d.since(d.start).Milliseconds())
		d.push(ValueEchoNumber, climate.HumidityPct)

	case Heartbeat:
		d.push(ValueHumidity, climate.HumidityPct)
		d.push(ValueTemperature, climate.TemperatureC)

	default:
		// QueryAll and anything unrecognised
		d.push(ValueTemperature, climate.TemperatureC)
		d.push(ValueHumidity, climate.HumidityPct)
		d.push(ValueCO2, co2)
		d.flush()
	}
}

func (d *Dispatcher) push(name string, value any) {
	if err := d.channel.PushValue(name, value); err != nil {
		d.log.Warn("push %s: %v", name, err)
	}
}

func (d *Dispatcher) flush() {
	if err := d.channel.Flush(); err != nil {
		d.log.Warn("flush: %v", err)
	}
}
