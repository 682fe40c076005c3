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

package sysmon

import (
	"encoding/json"
	"html/template"
	"net/http"
	"os"
	"runtime"
	"time"

	"airnode/pkg/logger"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

type DiskStats struct {
	Path  string `json:"path"`
	Total uint64 `json:"total"`
	Used  uint64 `json:"used"`
	Free  uint64 `json:"free"`
}

type Stats struct {
	GoVersion      string        `json:"go_version"`
	Uptime         time.Duration `json:"uptime_ns"`
	SystemCPU      float64       `json:"system_cpu_percent"`
	ProcessCPU     float64       `json:"process_cpu_percent"`
	MemTotal       uint64        `json:"mem_total"`
	MemUsed        uint64        `json:"mem_used"`
	MemAvailable   uint64        `json:"mem_available"`
	ProcessRSS     uint64        `json:"process_rss"`
	Goroutines     int           `json:"goroutines"`
	CPUTemperature float64       `json:"cpu_temperature_c,omitempty"`
	Disk           DiskStats     `json:"disk"`
}

// Service reports host and process health. The disk figures are for the
// filesystem holding the data directory.
type Service struct {
	dir  string
	proc *process.Process
	log  *logger.Logger
}

func New(dataDir string) *Service {
	s := &Service{
		dir: dataDir,
		log: logger.New("System Monitor"),
	}
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		s.log.Error("process stats unavailable: %v", err)
	}
	s.proc = p
	return s
}

// Collect gathers current stats. Anything that cannot be read is left
// zero.
func (s *Service) Collect() Stats {
	st := Stats{
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		st.SystemCPU = pct[0]
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		st.MemTotal = vmem.Total
		st.MemUsed = vmem.Used
		st.MemAvailable = vmem.Available
	}
	if up, err := host.Uptime(); err == nil {
		st.Uptime = time.Duration(up) * time.Second
	}
	if temps, err := host.SensorsTemperatures(); err == nil {
		for _, t := range temps {
			if t.SensorKey == "cpu_thermal" || t.SensorKey == "cpu_thermal_input" {
				st.CPUTemperature = t.Temperature
				break
			}
		}
	}
	if disk, err := DiskUsage(s.dir); err == nil {
		st.Disk = disk
	}

	if s.proc != nil {
		if memInfo, err := s.proc.MemoryInfo(); err == nil {
			st.ProcessRSS = memInfo.RSS
		}
		if pct, err := s.proc.CPUPercent(); err == nil {
			st.ProcessCPU = pct
		}
	}
	return st
}

var page = template.Must(template.New("sysmon").Funcs(template.FuncMap{
	"gb": func(v uint64) string { return formatBytes(v, 1<<30, "GB") },
	"mb": func(v uint64) string { return formatBytes(v, 1<<20, "MB") },
}).Parse(`<!DOCTYPE html>
<html>
<head>
	<title>System Monitor</title>
	<style>
		body { font-family: sans-serif; margin: 2em; background: #f9f9f9; }
		table { border-collapse: collapse; width: 60%; margin-top: 1em; }
		th, td { border: 1px solid #ccc; padding: 0.6em 1em; text-align: left; }
		th { background: #eee; }
	</style>
</head>
<body>
	<h1>System Monitor</h1>
	<p>Go {{.GoVersion}}, {{.Goroutines}} goroutines, up {{.Uptime}}</p>
	<h2>CPU</h2>
	<table>
		<tr><th>System %</th><th>Process %</th><th>Temperature</th></tr>
		<tr><td>{{printf "%.2f" .SystemCPU}}</td><td>{{printf "%.2f" .ProcessCPU}}</td><td>{{printf "%.1f" .CPUTemperature}} °C</td></tr>
	</table>
	<h2>Memory</h2>
	<table>
		<tr><th>Total</th><th>Used</th><th>Available</th><th>Process RSS</th></tr>
		<tr><td>{{gb .MemTotal}}</td><td>{{gb .MemUsed}}</td><td>{{gb .MemAvailable}}</td><td>{{mb .ProcessRSS}}</td></tr>
	</table>
	<h2>Disk ({{.Disk.Path}})</h2>
	<table>
		<tr><th>Total</th><th>Used</th><th>Free</th></tr>
		<tr><td>{{gb .Disk.Total}}</td><td>{{gb .Disk.Used}}</td><td>{{gb .Disk.Free}}</td></tr>
	</table>
</body>
</html>
`))

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st := s.Collect()

	// JSON API
	if r.Header.Get("Accept") == "application/json" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Execute(w, st); err != nil {
		s.log.Error("render: %v", err)
	}
}
