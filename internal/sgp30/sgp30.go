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

// Package sgp30 drives a Sensirion SGP30 gas sensor over I²C.
//
// Every transfer is a 16-bit big-endian command, optionally followed by data
// words; every word on the wire carries a CRC-8 byte.
package sgp30

import (
	"airnode/internal/node"
	"airnode/pkg/logger"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
)

// DefaultAddress is the fixed I²C address of the SGP30.
const DefaultAddress uint16 = 0x58

const (
	cmdGetSerial   uint16 = 0x3682
	cmdInitAirQual uint16 = 0x2003
	cmdMeasureAQ   uint16 = 0x2008
	cmdGetBaseline uint16 = 0x2015
	cmdSetHumidity uint16 = 0x2061
)

// MaxCompensation is the largest absolute humidity the sensor accepts,
// in mg/m³.
const MaxCompensation = 256000

// Dev is an SGP30 on an I²C bus. It implements node.GasSensor.
type Dev struct {
	d      i2c.Dev
	Serial [3]uint16
	sleep  func(time.Duration)
	log    *logger.Logger
}

var _ node.GasSensor = (*Dev)(nil)

// New reads the serial number and starts the on-chip air quality
// algorithm. The first 15 s of measurements after this return fixed
// placeholder values.
func New(bus i2c.Bus, addr uint16) (*Dev, error) {
	dev := &Dev{
		d:     i2c.Dev{Bus: bus, Addr: addr},
		sleep: time.Sleep,
		log:   logger.New("SGP30"),
	}
	if err := dev.init(); err != nil {
		return nil, err
	}
	return dev, nil
}

func (dev *Dev) init() error {
	words, err := dev.command(cmdGetSerial, nil, time.Millisecond, 3)
	if err != nil {
		return errors.Wrap(err, "sgp30: read serial")
	}
	copy(dev.Serial[:], words)
	dev.log.Info("Found SGP30 serial #%s", dev.SerialString())

	if _, err := dev.command(cmdInitAirQual, nil, 10*time.Millisecond, 0); err != nil {
		return errors.Wrap(err, "sgp30: init air quality")
	}
	return nil
}

func (dev *Dev) SerialString() string {
	return fmt.Sprintf("%04X%04X%04X", dev.Serial[0], dev.Serial[1], dev.Serial[2])
}

// SetCompensation sets the absolute humidity used by the on-chip
// compensation. Zero turns compensation off; values above
// MaxCompensation are clamped to it.
func (dev *Dev) SetCompensation(mgPerM3 uint32) error {
	if mgPerM3 > MaxCompensation {
		dev.log.Debug("absolute humidity %d mg/m³ clamped to %d", mgPerM3, MaxCompensation)
		mgPerM3 = MaxCompensation
	}
	_, err := dev.command(cmdSetHumidity, []uint16{humidityFixedPoint(mgPerM3)}, 10*time.Millisecond, 0)
	return errors.Wrap(err, "sgp30: set humidity")
}

// Measure returns one eCO2/TVOC pair. The sensor expects this to be
// called once a second.
func (dev *Dev) Measure() (node.GasReading, error) {
	words, err := dev.command(cmdMeasureAQ, nil, 12*time.Millisecond, 2)
	if err != nil {
		return node.GasReading{}, errors.Wrap(err, "sgp30: measure")
	}
	return node.GasReading{ECO2ppm: words[0], TVOCppb: words[1]}, nil
}

func (dev *Dev) Baseline() (node.Baseline, error) {
	words, err := dev.command(cmdGetBaseline, nil, 10*time.Millisecond, 2)
	if err != nil {
		return node.Baseline{}, errors.Wrap(err, "sgp30: get baseline")
	}
	return node.Baseline{ECO2: words[0], TVOC: words[1]}, nil
}

// humidityFixedPoint converts mg/m³ into the sensor's 8.8 fixed point g/m³.
func humidityFixedPoint(mgPerM3 uint32) uint16 {
	return uint16((uint64(mgPerM3) * 256 * 16777) >> 24)
}

// command writes cmd and args, waits for the sensor to process it and
// reads back n CRC checked words.
func (dev *Dev) command(cmd uint16, args []uint16, wait time.Duration, n int) ([]uint16, error) {
	w := make([]byte, 2, 2+3*len(args))
	binary.BigEndian.PutUint16(w, cmd)
	for _, a := range args {
		w = appendWord(w, a)
	}
	if err := dev.d.Tx(w, nil); err != nil {
		return nil, err
	}
	dev.sleep(wait)
	if n == 0 {
		return nil, nil
	}

	r := make([]byte, 3*n)
	if err := dev.d.Tx(nil, r); err != nil {
		return nil, err
	}
	return decodeWords(r)
}

func appendWord(b []byte, v uint16) []byte {
	b = binary.BigEndian.AppendUint16(b, v)
	return append(b, crc8(b[len(b)-2:]))
}

func decodeWords(r []byte) ([]uint16, error) {
	words := make([]uint16, 0, len(r)/3)
	for i := 0; i+2 < len(r); i += 3 {
		if got, want := r[i+2], crc8(r[i:i+2]); got != want {
			return nil, errors.Errorf("crc mismatch on word %d: got %#02x, want %#02x", i/3, got, want)
		}
		words = append(words, binary.BigEndian.Uint16(r[i:i+2]))
	}
	return words, nil
}

// crc8 is the Sensirion checksum: polynomial 0x31, init 0xFF, no reflection.
func crc8(data []byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
