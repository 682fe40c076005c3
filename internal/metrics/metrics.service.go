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

// Package metrics exposes the latest node snapshot as Prometheus gauges.
package metrics

import (
	"airnode/internal/events"
	"airnode/pkg/eventbus"
	"airnode/pkg/logger"
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Service struct {
	bus      *eventbus.Bus
	registry *prometheus.Registry
	log      *logger.Logger

	temperature  *prometheus.GaugeVec
	humidity     *prometheus.GaugeVec
	voc          *prometheus.GaugeVec
	co2          *prometheus.GaugeVec
	compensation *prometheus.GaugeVec
	baselineECO2 *prometheus.GaugeVec
	baselineTVOC *prometheus.GaugeVec
	updateGate   *prometheus.GaugeVec
	faults       *prometheus.CounterVec
}

func newGauge(name string, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name,
			Help: help,
		},
		[]string{"device"},
	)
}

func New(bus *eventbus.Bus) *Service {
	s := &Service{
		bus:      bus,
		registry: prometheus.NewRegistry(),
		log:      logger.New("Metrics"),

		temperature:  newGauge("air_temperature", "Air Temperature (units: degrees Celsius)"),
		humidity:     newGauge("air_humidity", "Humidity (units: % of relative Humidity)"),
		voc:          newGauge("air_voc_level", "Air Volatile Organic Compounds level (units: ppb)"),
		co2:          newGauge("air_co2_level", "Air equivalent Carbon Dioxide level (units: ppm)"),
		compensation: newGauge("air_absolute_humidity", "Humidity compensation sent to the gas sensor (units: mg/m3)"),
		baselineECO2: newGauge("air_baseline_eco2", "Gas sensor eCO2 baseline (raw)"),
		baselineTVOC: newGauge("air_baseline_tvoc", "Gas sensor TVOC baseline (raw)"),
		updateGate:   newGauge("air_update_gate", "1 while firmware updates are accepted"),
		faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "air_sensor_faults_total",
				Help: "Failed sensor reads",
			},
			[]string{"device", "sensor"},
		),
	}

	s.registry.MustRegister(
		s.temperature, s.humidity, s.voc, s.co2, s.compensation,
		s.baselineECO2, s.baselineTVOC, s.updateGate, s.faults,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	return s
}

// Handler serves the registry in the Prometheus text or OpenMetrics format.
func (s *Service) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running...")
	snapshots, unsub := s.bus.Subscribe(ctx, events.TopicSnapshot, true)
	defer unsub()

	var last events.NodeSnapshot
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Stopped")
			return
		case ev, ok := <-snapshots:
			if !ok {
				return
			}
			snap, ok := ev.(events.NodeSnapshot)
			if !ok {
				continue
			}
			s.observe(snap, last)
			last = snap
		}
	}
}

func (s *Service) observe(snap, prev events.NodeSnapshot) {
	id := snap.DeviceID
	s.temperature.WithLabelValues(id).Set(snap.TemperatureC)
	s.humidity.WithLabelValues(id).Set(snap.HumidityPct)
	s.voc.WithLabelValues(id).Set(float64(snap.TVOCppb))
	s.co2.WithLabelValues(id).Set(float64(snap.ECO2ppm))
	s.compensation.WithLabelValues(id).Set(float64(snap.Compensation))
	s.baselineECO2.WithLabelValues(id).Set(float64(snap.BaselineECO2))
	s.baselineTVOC.WithLabelValues(id).Set(float64(snap.BaselineTVOC))

	gate := 0.0
	if snap.UpdateGate {
		gate = 1
	}
	s.updateGate.WithLabelValues(id).Set(gate)

	// snapshots carry running totals; only the increase is added
	if snap.ClimateFaults > prev.ClimateFaults {
		s.faults.WithLabelValues(id, "climate").Add(float64(snap.ClimateFaults - prev.ClimateFaults))
	}
	if snap.GasFailures > prev.GasFailures {
		s.faults.WithLabelValues(id, "gas").Add(float64(snap.GasFailures - prev.GasFailures))
	}
}
