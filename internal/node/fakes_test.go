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
	"airnode/pkg/eventbus"
	"errors"
	"sync"
	"time"
)

var errBus = errors.New("i2c: nack")

type fakeClimate struct {
	temp, humi float64
	err        error
	reads      int
}

func (f *fakeClimate) ReadTemperatureC() (float64, error) {
	f.reads++
	return f.temp, f.err
}

func (f *fakeClimate) ReadHumidityPct() (float64, error) {
	return f.humi, f.err
}

// fakeGas records every call in order so tests can assert on sequencing.
type fakeGas struct {
	calls       []string
	comps       []uint32
	reading     GasReading
	measureErr  error
	compErr     error
	baseline    Baseline
	baselineErr error
}

func (f *fakeGas) SetCompensation(mg uint32) error {
	f.calls = append(f.calls, "compensate")
	f.comps = append(f.comps, mg)
	return f.compErr
}

func (f *fakeGas) Measure() (GasReading, error) {
	f.calls = append(f.calls, "measure")
	if f.measureErr != nil {
		return GasReading{}, f.measureErr
	}
	return f.reading, nil
}

func (f *fakeGas) Baseline() (Baseline, error) {
	f.calls = append(f.calls, "baseline")
	return f.baseline, f.baselineErr
}

func (f *fakeGas) count(call string) int {
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

type pushed struct {
	Name  string
	Value any
}

type fakeChannel struct {
	pushes  []pushed
	flushes int
	handler func(Command)
}

func (f *fakeChannel) PushValue(name string, value any) error {
	f.pushes = append(f.pushes, pushed{name, value})
	return nil
}

func (f *fakeChannel) Flush() error {
	f.flushes++
	return nil
}

func (f *fakeChannel) OnCommand(handler func(Command)) {
	f.handler = handler
}

func (f *fakeChannel) names() []string {
	out := make([]string, 0, len(f.pushes))
	for _, p := range f.pushes {
		out = append(out, p.Name)
	}
	return out
}

func (f *fakeChannel) reset() {
	f.pushes = nil
	f.flushes = 0
}

type fakeUpdater struct{ handled, idled int }

func (f *fakeUpdater) Handle() { f.handled++ }
func (f *fakeUpdater) Idle()   { f.idled++ }

// manualClock keeps the registered callbacks so tests can fire them.
type manualClock struct {
	mu    sync.Mutex
	fns   map[IntervalID]func()
	every map[IntervalID]time.Duration
}

func newManualClock() *manualClock {
	return &manualClock{
		fns:   map[IntervalID]func(){},
		every: map[IntervalID]time.Duration{},
	}
}

func (c *manualClock) OnIntervalElapsed(id IntervalID, every time.Duration, fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns[id] = fn
	c.every[id] = every
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.fns, id)
	}
}

func (c *manualClock) fire(id IntervalID) {
	c.mu.Lock()
	fn := c.fns[id]
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type recordingBus struct {
	events map[eventbus.Topic][]eventbus.Event
}

func (b *recordingBus) Publish(topic eventbus.Topic, ev eventbus.Event) {
	if b.events == nil {
		b.events = map[eventbus.Topic][]eventbus.Event{}
	}
	b.events[topic] = append(b.events[topic], ev)
}
