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

// Package status serves the node's latest state over HTTP and accepts
// commands the same way the remote channel does.
package status

import (
	"airnode/internal/events"
	"airnode/internal/node"
	"airnode/internal/remote"
	"airnode/pkg/eventbus"
	"airnode/pkg/logger"
	"encoding/json"
	"html/template"
	"io"
	"net/http"
)

type enqueuer interface {
	Enqueue(cmd node.Command)
}

type WebService struct {
	bus    *eventbus.Bus
	target enqueuer
	log    *logger.Logger
	mux    *http.ServeMux
}

func NewWebService(bus *eventbus.Bus, target enqueuer) *WebService {
	s := &WebService{
		bus:    bus,
		target: target,
		log:    logger.New("StatusWeb"),
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	s.mux.HandleFunc("POST /api/command", s.handleCommand)
	s.mux.HandleFunc("GET /{$}", s.handlePage)
	return s
}

func (s *WebService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *WebService) latest() (events.NodeSnapshot, bool) {
	ev, ok := s.bus.GetLast(events.TopicSnapshot)
	if !ok {
		return events.NodeSnapshot{}, false
	}
	snap, ok := ev.(events.NodeSnapshot)
	return snap, ok
}

func (s *WebService) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.latest()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.log.Error("failed to encode snapshot: %v", err)
	}
}

// handleCommand queues a command envelope for the scheduler. The response
// only confirms the command was queued; any pushed values go out over the
// remote channel.
func (s *WebService) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	cmd, err := remote.DecodeStrict(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		s.log.Error("rejected command: %v", err)
		return
	}

	s.target.Enqueue(cmd)
	s.log.Info("queued %s", cmd)
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"queued": cmd.String()})
}

var page = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head>
	<title>Air Node</title>
	<meta http-equiv="refresh" content="5">
	<style>
		body { font-family: sans-serif; margin: 2em; }
		td, th { padding: 0.3em 1em; text-align: left; }
	</style>
</head>
<body>
	<h1>Air Node {{.DeviceID}}</h1>
	<table>
		<tr><th>Temperature</th><td>{{printf "%.1f" .TemperatureC}} °C</td></tr>
		<tr><th>Humidity</th><td>{{printf "%.1f" .HumidityPct}} %</td></tr>
		<tr><th>eCO2</th><td>{{.ECO2ppm}} ppm</td></tr>
		<tr><th>TVOC</th><td>{{.TVOCppb}} ppb</td></tr>
		<tr><th>Absolute humidity</th><td>{{.Compensation}} mg/m³</td></tr>
		<tr><th>Baseline</th><td>eCO2 {{printf "%#04x" .BaselineECO2}} TVOC {{printf "%#04x" .BaselineTVOC}} ({{.BaselineCounter}}/30)</td></tr>
		<tr><th>Update gate</th><td>{{if .UpdateGate}}open{{else}}closed{{end}}</td></tr>
		<tr><th>Faults</th><td>climate {{.ClimateFaults}}, gas {{.GasFailures}}</td></tr>
		<tr><th>Updated</th><td>{{.Time.Format "2006-01-02 15:04:05"}}</td></tr>
	</table>
</body>
</html>
`))

func (s *WebService) handlePage(w http.ResponseWriter, r *http.Request) {
	snap, _ := s.latest()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Execute(w, snap); err != nil {
		s.log.Error("render: %v", err)
	}
}
