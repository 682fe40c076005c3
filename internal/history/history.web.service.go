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

package history

import (
	"encoding/json"
	"net/http"
)

// Value is the current value of one metric for display.
type Value struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Value       float64 `json:"value"`
	Timestamp   string  `json:"timestamp"`
}

func (s *Service) NewServeMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/values", s.handleAPIValues)
	mux.HandleFunc("/api/history", s.handleAPIHistory)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "api/values", http.StatusTemporaryRedirect)
	})
	return mux
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.muxOnce.Do(func() { s.mux = s.NewServeMux() })
	s.mux.ServeHTTP(w, r)
}

// handleAPIValues returns the latest value of every metric.
func (s *Service) handleAPIValues(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	values := make(map[string]Value)
	for name, entry := range s.LatestAll() {
		values[name] = Value{
			ID:          name,
			Description: descriptions[name],
			Value:       entry.Value,
			Timestamp:   entry.Timestamp.Format("2006-01-02 15:04:05"),
		}
	}
	if err := json.NewEncoder(w).Encode(values); err != nil {
		s.log.Error("failed to encode latest values: %v", err)
	}
}

// handleAPIHistory returns all history entries for one metric.
func (s *Service) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing 'id' parameter", http.StatusBadRequest)
		s.log.Error("handleAPIHistory called without 'id' parameter")
		return
	}
	if _, ok := descriptions[id]; !ok {
		http.Error(w, "unknown metric", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.ListAll(id)); err != nil {
		s.log.Error("failed to encode history for id %s: %v", id, err)
	}
}
