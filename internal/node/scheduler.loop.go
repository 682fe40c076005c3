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
	"airnode/internal/events"
	"airnode/pkg/eventbus"
	"airnode/pkg/logger"
	"context"
	"sync/atomic"
	"time"
)

type Options struct {
	DeviceID      string
	ClimateEvery  time.Duration
	GasEvery      time.Duration
	PollEvery     time.Duration
	WarmupSamples int
	InboxSize     int
}

func (o *Options) applyDefaults() {
	if o.ClimateEvery <= 0 {
		o.ClimateEvery = 2 * time.Second
	}
	if o.GasEvery <= 0 {
		o.GasEvery = time.Second
	}
	if o.PollEvery <= 0 {
		o.PollEvery = 100 * time.Millisecond
	}
	if o.InboxSize <= 0 {
		o.InboxSize = 32
	}
}

// Publisher receives state snapshots; *eventbus.Bus satisfies it.
type Publisher interface {
	Publish(topic eventbus.Topic, ev eventbus.Event)
}

// Scheduler owns the node State and runs every sampling, dispatch and
// update step on a single goroutine. Timer callbacks and transport
// goroutines only raise flags or queue commands.
type Scheduler struct {
	opts  Options
	state State

	clock    Clock
	climate  *ClimateSampler
	gas      *GasSampler
	baseline *BaselineTracker
	dispatch *Dispatcher
	updater  Updater
	bus      Publisher
	gateOpen bool

	climateDue atomic.Bool
	gasDue     atomic.Bool
	wake       chan struct{}
	inbox      chan Command
	dropped    atomic.Uint64

	log *logger.Logger
}

// NewScheduler wires the core components together and registers itself as
// the channel's command handler. updater and bus may be nil.
func NewScheduler(
	opts Options,
	clock Clock,
	climateSensor ClimateSensor,
	gasSensor GasSensor,
	channel Channel,
	updater Updater,
	bus Publisher,
) *Scheduler {
	opts.applyDefaults()

	s := &Scheduler{
		opts:    opts,
		clock:   clock,
		updater: updater,
		bus:     bus,
		wake:    make(chan struct{}, 1),
		inbox:   make(chan Command, opts.InboxSize),
		log:     logger.New("Scheduler"),
	}
	s.climate = NewClimateSampler(climateSensor, &s.state.Climate)
	s.gas = NewGasSampler(gasSensor, &s.state.Gas, &s.state.Compensation)
	s.baseline = NewBaselineTracker(gasSensor, &s.state.Baseline)
	s.dispatch = NewDispatcher(&s.state, channel)

	channel.OnCommand(s.Enqueue)
	return s
}

// Enqueue hands a command to the loop. It is safe to call from any
// goroutine and never blocks; when the inbox is full the command is
// dropped.
func (s *Scheduler) Enqueue(cmd Command) {
	select {
	case s.inbox <- cmd:
	default:
		s.dropped.Add(1)
		s.log.Warn("inbox full, dropping %s", cmd)
		return
	}
	s.poke()
}

// Dropped counts commands rejected by a full inbox.
func (s *Scheduler) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start registers the periodic tick sources. The returned func
// unregisters them.
func (s *Scheduler) Start() (stop func()) {
	stopClimate := s.clock.OnIntervalElapsed(IntervalClimate, s.opts.ClimateEvery, func() {
		s.climateDue.Store(true)
		s.poke()
	})
	stopGas := s.clock.OnIntervalElapsed(IntervalGas, s.opts.GasEvery, func() {
		s.gasDue.Store(true)
		s.poke()
	})
	return func() {
		stopClimate()
		stopGas()
	}
}

// Iterate runs one pass of the loop: climate then gas sampling if their
// ticks are due, the update handler while the gate is open, and every
// queued command. Nothing in here returns an error; faults are logged and
// the previous values stay in place.
func (s *Scheduler) Iterate() {
	changed := false

	if s.climateDue.Swap(false) {
		s.climate.Sample()
		changed = true
	}

	if s.gasDue.Swap(false) {
		if _, err := s.gas.Sample(s.state.Climate); err == nil {
			if base, ok := s.baseline.RecordSuccess(); ok {
				s.publishBaseline(base)
			}
		}
		changed = true
	}

	if s.state.Gate.Enabled && s.updater != nil {
		s.updater.Handle()
	}

	for drained := false; !drained; {
		select {
		case cmd := <-s.inbox:
			s.dispatch.Handle(cmd)
			changed = true
		default:
			drained = true
		}
	}

	if s.gateOpen && !s.state.Gate.Enabled {
		if idler, ok := s.updater.(UpdateIdler); ok {
			idler.Idle()
		}
	}
	s.gateOpen = s.state.Gate.Enabled

	if changed {
		s.publishSnapshot()
	}
}

// Run warms the gas sensor up, registers the tick sources and loops until
// ctx is done. The loop also wakes on PollEvery so the update handler gets
// serviced between sampling ticks.
func (s *Scheduler) Run(ctx context.Context) {
	if err := s.Warmup(ctx, s.opts.WarmupSamples); err != nil {
		s.log.Info("stopped during warm-up: %v", err)
		return
	}

	stop := s.Start()
	defer stop()

	poll := time.NewTicker(s.opts.PollEvery)
	defer poll.Stop()

	s.log.Info("running (climate every %s, gas every %s)", s.opts.ClimateEvery, s.opts.GasEvery)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("stopped")
			return
		case <-s.wake:
		case <-poll.C:
		}
		s.Iterate()
	}
}

// Warmup takes n samples spaced by the gas interval before the real loop
// starts, reading the climate sensor on every other one. The first
// readings of a freshly powered gas sensor are fixed placeholder values,
// so the baseline counter is reset once warm-up completes.
func (s *Scheduler) Warmup(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	s.log.Info("warming up (%d samples)", n)

	ticker := time.NewTicker(s.opts.GasEvery)
	defer ticker.Stop()

	for i := 0; i < n; i++ {
		if i%2 == 0 {
			s.climate.Sample()
		}
		s.gas.Sample(s.state.Climate)

		if i == n-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	s.baseline.Reset()
	s.publishSnapshot()
	return nil
}

// State returns a copy of the node state. Only call it from the loop
// goroutine, or when the loop is not running.
func (s *Scheduler) State() State {
	return s.state
}

func (s *Scheduler) Snapshot() events.NodeSnapshot {
	return events.NodeSnapshot{
		DeviceID:        s.opts.DeviceID,
		Time:            time.Now(),
		TemperatureC:    s.state.Climate.TemperatureC,
		HumidityPct:     s.state.Climate.HumidityPct,
		TVOCppb:         s.state.Gas.TVOCppb,
		ECO2ppm:         s.state.Gas.ECO2ppm,
		Compensation:    s.state.Compensation,
		BaselineECO2:    s.state.Baseline.ECO2,
		BaselineTVOC:    s.state.Baseline.TVOC,
		BaselineCounter: s.state.Baseline.Counter,
		UpdateGate:      s.state.Gate.Enabled,
		ClimateFaults:   s.climate.Faults(),
		GasFailures:     s.gas.Failures(),
	}
}

func (s *Scheduler) publishSnapshot() {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.TopicSnapshot, s.Snapshot())
}

func (s *Scheduler) publishBaseline(b Baseline) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.TopicBaseline, events.BaselineCaptured{
		DeviceID: s.opts.DeviceID,
		Time:     time.Now(),
		ECO2:     b.ECO2,
		TVOC:     b.TVOC,
	})
}
