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

package ota

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func send(t *testing.T, addr net.Addr, header uint64, body []byte) <-chan string {
	t.Helper()
	reply := make(chan string, 1)
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	go func() {
		defer conn.Close()
		binary.Write(conn, binary.BigEndian, header)
		conn.Write(body)
		line, _ := bufio.NewReader(conn).ReadString('\n')
		reply <- line
	}()
	return reply
}

func TestHandleWithoutClientReturns(t *testing.T) {
	s := NewServer("127.0.0.1:0", t.TempDir())
	defer s.Close()

	start := time.Now()
	s.Handle()
	s.Handle()
	assert.Less(t, time.Since(start), time.Second)
	assert.NotNil(t, s.Addr())
}

func TestHandleAfterCloseKeepsPortClosed(t *testing.T) {
	s := NewServer("127.0.0.1:0", t.TempDir())
	s.Handle()
	require.NotNil(t, s.Addr())

	require.NoError(t, s.Close())
	s.Handle()
	assert.Nil(t, s.Addr())
	assert.ErrorIs(t, s.Listen(), net.ErrClosed)
}

func TestIdleReleasesPort(t *testing.T) {
	s := NewServer("127.0.0.1:0", t.TempDir())
	defer s.Close()

	s.Handle()
	addr := s.Addr()
	require.NotNil(t, addr)

	s.Idle()
	assert.Nil(t, s.Addr())
	_, err := net.DialTimeout("tcp", addr.String(), time.Second)
	assert.Error(t, err, "port still accepting after Idle")

	s.Idle()
	s.Handle()
	assert.NotNil(t, s.Addr(), "Handle reopens after Idle")
}

func TestHandleReceivesImage(t *testing.T) {
	dir := t.TempDir()
	s := NewServer("127.0.0.1:0", dir)
	s.acceptWait = time.Second
	require.NoError(t, s.Listen())
	defer s.Close()

	image := bytes.Repeat([]byte{0xe9, 0x01, 0x02, 0x03}, 4096)
	reply := send(t, s.Addr(), uint64(len(image)), image)
	s.Handle()

	assert.Equal(t, "OK\n", <-reply)
	got, err := os.ReadFile(filepath.Join(dir, ImageName))
	require.NoError(t, err)
	assert.Equal(t, image, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file removed")
}

func TestHandleRejectsBadSize(t *testing.T) {
	dir := t.TempDir()
	s := NewServer("127.0.0.1:0", dir)
	s.acceptWait = time.Second
	require.NoError(t, s.Listen())
	defer s.Close()

	reply := send(t, s.Addr(), MaxImageSize+1, nil)
	s.Handle()

	assert.Contains(t, <-reply, "ERR bad image size")
	_, err := os.Stat(filepath.Join(dir, ImageName))
	assert.True(t, os.IsNotExist(err))
}

func TestHandleTruncatedImage(t *testing.T) {
	dir := t.TempDir()
	s := NewServer("127.0.0.1:0", dir)
	s.acceptWait = time.Second
	s.sessionTTL = 200 * time.Millisecond
	require.NoError(t, s.Listen())
	defer s.Close()

	reply := send(t, s.Addr(), 1000, []byte{1, 2, 3})
	s.Handle()

	assert.Contains(t, <-reply, "ERR receive failed")
	_, err := os.Stat(filepath.Join(dir, ImageName))
	assert.True(t, os.IsNotExist(err))
}
