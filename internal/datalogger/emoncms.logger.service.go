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

// Package datalogger posts interval averages of the node readings to an
// emoncms server.
package datalogger

import (
	"airnode/internal/history"
	"airnode/pkg/logger"
	"airnode/pkg/sysmon"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// averager is satisfied by *history.Service.
type averager interface {
	Mean(name string, interval time.Duration) (float64, error)
}

type statsSource interface {
	Collect() sysmon.Stats
}

type Options struct {
	Addr     string
	APIKey   string
	Interval time.Duration
	DeviceID string
}

type Service struct {
	opts    Options
	history averager
	system  statsSource
	client  *http.Client
	log     *logger.Logger
}

// emoncms input keys per history metric
var nodeKeys = map[string]string{
	history.Temperature:  "temp",
	history.Humidity:     "humi",
	history.TVOC:         "tvoc",
	history.ECO2:         "co2",
	history.Compensation: "abs_humi",
}

func New(hist averager, system statsSource, opts Options) *Service {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	return &Service{
		opts:    opts,
		history: hist,
		system:  system,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     logger.New("DataLogger"),
	}
}

func (c *Service) emoncmsInputPost(ctx context.Context, node string, data map[string]float64) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	q := url.Values{}
	q.Set("node", node)
	q.Set("apikey", c.opts.APIKey)
	q.Set("fulljson", string(bytes))
	request := strings.TrimRight(c.opts.Addr, "/") + "/input/post?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, request, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("emoncms: %s", resp.Status)
	}
	return nil
}

func (c *Service) nodeData() map[string]float64 {
	result := make(map[string]float64)
	for metric, key := range nodeKeys {
		v, err := c.history.Mean(metric, c.opts.Interval)
		if err != nil {
			c.log.Debug("skipping %s: %v", key, err)
			continue
		}
		result[key] = v
	}
	return result
}

func (c *Service) systemData() map[string]float64 {
	st := c.system.Collect()
	return map[string]float64{
		"cpu":      st.ProcessCPU,
		"sys_cpu":  st.SystemCPU,
		"rss_mb":   float64(st.ProcessRSS) / (1 << 20),
		"disk_pct": diskPercent(st.Disk),
	}
}

func diskPercent(d sysmon.DiskStats) float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Used) / float64(d.Total) * 100
}

func (c *Service) tick(ctx context.Context) {
	data := map[string]map[string]float64{
		"airnode_" + c.opts.DeviceID: c.nodeData(),
		"airnode_system":             c.systemData(),
	}
	for node, nodeData := range data {
		if len(nodeData) == 0 {
			continue
		}
		if err := c.emoncmsInputPost(ctx, node, nodeData); err != nil {
			c.log.Error("emoncmsInputPost %s: %v", node, err)
		}
	}
}

func (c *Service) Run(ctx context.Context) {
	if c.opts.Addr == "" {
		c.log.Info("no emoncms address configured, disabled")
		return
	}
	c.log.Info("Running...")
	defer c.log.Info("Stopped.")

	tick := time.NewTicker(c.opts.Interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			c.tick(ctx)
		}
	}
}
