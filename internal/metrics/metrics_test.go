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

package metrics

import (
	"airnode/internal/events"
	"airnode/pkg/eventbus"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, s *Service) string {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestObserve(t *testing.T) {
	s := New(eventbus.New())
	s.observe(events.NodeSnapshot{
		DeviceID:      "dev1",
		TemperatureC:  21.5,
		HumidityPct:   40,
		TVOCppb:       12,
		ECO2ppm:       450,
		UpdateGate:    true,
		ClimateFaults: 2,
	}, events.NodeSnapshot{})

	out := scrape(t, s)
	assert.Contains(t, out, `air_temperature{device="dev1"} 21.5`)
	assert.Contains(t, out, `air_co2_level{device="dev1"} 450`)
	assert.Contains(t, out, `air_update_gate{device="dev1"} 1`)
	assert.Contains(t, out, `air_sensor_faults_total{device="dev1",sensor="climate"} 2`)
	assert.NotContains(t, out, `sensor="gas"`)
}

func TestRunFollowsBus(t *testing.T) {
	bus := eventbus.New()
	s := New(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	bus.Publish(events.TopicSnapshot, events.NodeSnapshot{DeviceID: "dev1", HumidityPct: 55})
	assert.Eventually(t, func() bool {
		return strings.Contains(scrape(t, s), `air_humidity{device="dev1"} 55`)
	}, time.Second, 10*time.Millisecond)
}
