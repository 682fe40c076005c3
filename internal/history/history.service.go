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

// Package history keeps a rolling in-memory record of node readings,
// snapshotted to disk so it survives restarts.
package history

import (
	"airnode/internal/events"
	"airnode/pkg/eventbus"
	"airnode/pkg/logger"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const snapshotFilename = "airnode_history.json.gz"

// Metric ids.
const (
	Temperature  = "temperature"
	Humidity     = "humidity"
	TVOC         = "tvoc"
	ECO2         = "eco2"
	Compensation = "compensation"
)

var descriptions = map[string]string{
	Temperature:  "Air temperature (°C)",
	Humidity:     "Relative humidity (%)",
	TVOC:         "Total volatile organic compounds (ppb)",
	ECO2:         "Equivalent CO2 (ppm)",
	Compensation: "Absolute humidity sent to the gas sensor (mg/m³)",
}

type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type Options struct {
	DataDir       string
	SampleEvery   time.Duration
	SnapshotEvery time.Duration
	Retention     time.Duration
}

type Service struct {
	bus          *eventbus.Bus
	history      map[string][]HistoryEntry
	mu           sync.RWMutex
	opts         Options
	lastSample   time.Time
	snapshotFile string
	log          *logger.Logger
	now          func() time.Time

	muxOnce sync.Once
	mux     http.Handler
}

func New(bus *eventbus.Bus, opts Options) *Service {
	if opts.SampleEvery <= 0 {
		opts.SampleEvery = 30 * time.Second
	}
	if opts.SnapshotEvery <= 0 {
		opts.SnapshotEvery = 15 * time.Minute
	}
	if opts.Retention <= 0 {
		opts.Retention = 24 * time.Hour
	}

	s := &Service{
		bus:          bus,
		history:      make(map[string][]HistoryEntry),
		opts:         opts,
		snapshotFile: filepath.Join(opts.DataDir, snapshotFilename),
		log:          logger.New("History"),
		now:          time.Now,
	}
	s.loadFromDisk()
	return s
}

func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running...")
	snapshots, unsub := s.bus.Subscribe(ctx, events.TopicSnapshot, false)
	defer unsub()

	snapshotTicker := time.NewTicker(s.opts.SnapshotEvery)
	defer snapshotTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.saveToDisk()
			s.log.Info("Stopped")
			return
		case <-snapshotTicker.C:
			s.saveToDisk()
		case ev, ok := <-snapshots:
			if !ok {
				snapshots = nil
				continue
			}
			if snap, ok := ev.(events.NodeSnapshot); ok {
				s.record(snap)
			}
		}
	}
}

// record stores one entry per metric, at most once per SampleEvery.
func (s *Service) record(snap events.NodeSnapshot) {
	ts := snap.Time
	if ts.IsZero() {
		ts = s.now()
	}
	if !s.lastSample.IsZero() && ts.Sub(s.lastSample) < s.opts.SampleEvery {
		return
	}
	s.lastSample = ts

	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(Temperature, ts, snap.TemperatureC)
	s.add(Humidity, ts, snap.HumidityPct)
	s.add(TVOC, ts, float64(snap.TVOCppb))
	s.add(ECO2, ts, float64(snap.ECO2ppm))
	s.add(Compensation, ts, float64(snap.Compensation))
}

// add appends and trims entries older than the retention window.
// Caller holds the lock.
func (s *Service) add(name string, ts time.Time, v float64) {
	entries := append(s.history[name], HistoryEntry{Timestamp: ts, Value: v})

	cutoff := s.now().Add(-s.opts.Retention)
	idx := sort.Search(len(entries), func(i int) bool {
		return entries[i].Timestamp.After(cutoff)
	})
	s.history[name] = entries[idx:]
}

func (s *Service) saveToDisk() {
	s.mu.RLock()
	copyMap := make(map[string][]HistoryEntry, len(s.history))
	totalEntries := 0
	for k, v := range s.history {
		copyMap[k] = append([]HistoryEntry(nil), v...)
		totalEntries += len(v)
	}
	s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(s.snapshotFile), 0755); err != nil {
		s.log.Error("failed to create data dir: %v", err)
		return
	}

	tmpPath := s.snapshotFile + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		s.log.Error("failed to create temp snapshot file: %v", err)
		return
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	if err := json.NewEncoder(gz).Encode(copyMap); err != nil {
		s.log.Error("failed to encode snapshot: %v", err)
		gz.Close()
		return
	}
	if err := gz.Close(); err != nil {
		s.log.Error("failed to close gzip: %v", err)
		return
	}
	if err := file.Sync(); err != nil {
		s.log.Error("failed to fsync snapshot: %v", err)
	}
	file.Close()
	if err := os.Rename(tmpPath, s.snapshotFile); err != nil {
		s.log.Error("failed to rename snapshot file: %v", err)
		return
	}
	s.log.Debug("snapshot saved: %d total entries", totalEntries)
}

func (s *Service) loadFromDisk() {
	file, err := os.Open(filepath.Clean(s.snapshotFile))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Error("failed to open history snapshot: %v", err)
		}
		return
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		s.log.Error("failed to open gzip: %v", err)
		return
	}
	defer gz.Close()

	var data map[string][]HistoryEntry
	if err := json.NewDecoder(gz).Decode(&data); err != nil {
		s.log.Error("failed to decode snapshot: %v", err)
		return
	}

	s.mu.Lock()
	s.history = data
	s.mu.Unlock()
	s.log.Info("history restored from snapshot (%d metrics)", len(data))
}

func (s *Service) ListAll(name string) []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]HistoryEntry(nil), s.history[name]...)
}

func (s *Service) LatestAll() map[string]HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := make(map[string]HistoryEntry)
	for name, entries := range s.history {
		if len(entries) > 0 {
			latest[name] = entries[len(entries)-1]
		}
	}
	return latest
}

// window returns the values of name recorded within the last interval.
func (s *Service) window(name string, interval time.Duration) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.history[name]
	if len(entries) == 0 {
		return nil, fmt.Errorf("no history for %q", name)
	}

	cutoff := s.now().Add(-interval)
	var nums []float64
	for _, e := range entries {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		nums = append(nums, e.Value)
	}
	if len(nums) == 0 {
		return nil, fmt.Errorf("no values for %q in the last %s", name, interval)
	}
	return nums, nil
}

func (s *Service) Mean(name string, interval time.Duration) (float64, error) {
	nums, err := s.window(name, interval)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for _, v := range nums {
		sum += v
	}
	return sum / float64(len(nums)), nil
}

func (s *Service) Median(name string, interval time.Duration) (float64, error) {
	nums, err := s.window(name, interval)
	if err != nil {
		return 0, err
	}
	sort.Float64s(nums)
	mid := len(nums) / 2
	if len(nums)%2 == 0 {
		return (nums[mid-1] + nums[mid]) / 2, nil
	}
	return nums[mid], nil
}
