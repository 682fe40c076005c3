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

package logger

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatRecord(t *testing.T) {
	line := []byte(`{"time":"2025-01-02T03:04:05Z","level":"ERROR","msg":"measure failed","component":"Gas","src":"gas.sampler.go:61"}`)
	assert.Equal(t, "2025-01-02T03:04:05Z ERROR [Gas] measure failed (gas.sampler.go:61)", formatRecord(line))

	assert.Equal(t, "plain text", formatRecord([]byte("plain text")))
}

func TestEnableDebug(t *testing.T) {
	defer EnableDebug(IsDebug())

	EnableDebug(true)
	assert.True(t, IsDebug())
	EnableDebug(false)
	assert.False(t, IsDebug())
}

func TestFanoutRespectsLevels(t *testing.T) {
	var infoBuf, errBuf bytes.Buffer
	h := fanout{
		slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&errBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	}
	l := slog.New(h).With("component", "Test")

	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))

	l.Info("hello")
	l.Error("boom")

	assert.Contains(t, infoBuf.String(), "hello")
	assert.Contains(t, infoBuf.String(), "boom")
	assert.Contains(t, infoBuf.String(), "component=Test")
	assert.NotContains(t, errBuf.String(), "hello")
	assert.Contains(t, errBuf.String(), "boom")
}

func TestFatalPanics(t *testing.T) {
	l := New("Test")
	assert.PanicsWithValue(t, "bad config: 3", func() {
		l.Fatal("bad config: %d", 3)
	})
}

func TestWebServiceToggle(t *testing.T) {
	defer EnableDebug(IsDebug())
	EnableDebug(false)

	ws := WebService()
	rec := httptest.NewRecorder()
	ws.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/toggle", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, IsDebug())

	rec = httptest.NewRecorder()
	ws.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), "Toggle Debug")
}
