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
	"airnode/pkg/logger"
	"context"
	"errors"
	"sync/atomic"
)

const outboxSize = 64

var (
	errNotConnected = errors.New("not connected")
	errOutboxFull   = errors.New("outbox full")
)

// frame is one message waiting to be written. topic is empty for
// transports without topics.
type frame struct {
	topic string
	msg   any
}

// outbox decouples the scheduler loop from the network. put never blocks;
// a single writer goroutine drains the queue.
type outbox struct {
	ch      chan frame
	dropped atomic.Uint64
	log     *logger.Logger
}

func newOutbox(log *logger.Logger) *outbox {
	return &outbox{
		ch:  make(chan frame, outboxSize),
		log: log,
	}
}

func (o *outbox) put(f frame) error {
	select {
	case o.ch <- f:
		return nil
	default:
		o.dropped.Add(1)
		o.log.Warn("outbox full, dropping %s frame", describe(f))
		return errOutboxFull
	}
}

// run writes queued frames until ctx is done. Write errors are logged
// and the frame is discarded.
func (o *outbox) run(ctx context.Context, write func(frame) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-o.ch:
			if err := write(f); err != nil {
				o.log.Error("write %s: %v", describe(f), err)
			}
		}
	}
}

func describe(f frame) string {
	switch m := f.msg.(type) {
	case ValueFrame:
		return m.Name
	case ReportFrame:
		return "report"
	}
	if f.topic != "" {
		return f.topic
	}
	return "unknown"
}
