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

// Package ota receives firmware images while the update gate is open.
//
// A session is one TCP connection carrying a big-endian uint64 length
// followed by that many bytes of image. The image is staged to
// <dir>/firmware.bin and the server answers "OK" or "ERR <reason>".
package ota

import (
	"airnode/internal/node"
	"airnode/pkg/logger"
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const ImageName = "firmware.bin"

// MaxImageSize bounds what a session may announce.
const MaxImageSize = 16 << 20

type Server struct {
	addr       string
	dir        string
	mu         sync.Mutex
	ln         *net.TCPListener
	closed     bool
	acceptWait time.Duration
	sessionTTL time.Duration
	log        *logger.Logger
}

var _ node.UpdateIdler = (*Server)(nil)

func NewServer(addr, stagingDir string) *Server {
	return &Server{
		addr:       addr,
		dir:        stagingDir,
		acceptWait: time.Millisecond,
		sessionTTL: 2 * time.Minute,
		log:        logger.New("OTA"),
	}
}

// Listen opens the listening socket. Handle calls it on demand, so the
// port is only open once the gate has been enabled.
func (s *Server) Listen() error {
	_, err := s.listener()
	return err
}

func (s *Server) listener() (*net.TCPListener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("ota listen %s: %w", s.addr, net.ErrClosed)
	}
	if s.ln != nil {
		return s.ln, nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("ota listen %s: %w", s.addr, err)
	}
	s.ln = ln.(*net.TCPListener)
	s.log.Info("listening on %s", s.ln.Addr())
	return s.ln, nil
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Handle polls for one pending update session and, if there is one,
// receives it. Without a waiting client it returns almost immediately.
func (s *Server) Handle() {
	ln, err := s.listener()
	if err != nil {
		s.log.Error("%v", err)
		return
	}

	ln.SetDeadline(time.Now().Add(s.acceptWait))
	conn, err := ln.Accept()
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return
		}
		s.log.Error("accept: %v", err)
		return
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(s.sessionTTL))
	err = s.receive(conn)

	conn.SetWriteDeadline(time.Now().Add(time.Second))
	if err != nil {
		s.log.Error("Error: %v", err)
		fmt.Fprintf(conn, "ERR %v\n", err)
		return
	}
	fmt.Fprintln(conn, "OK")
}

func (s *Server) receive(conn net.Conn) error {
	r := bufio.NewReader(conn)

	var size uint64
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if size == 0 || size > MaxImageSize {
		return fmt.Errorf("bad image size %d", size)
	}
	s.log.Info("Start updating firmware (%d bytes from %s)", size, conn.RemoteAddr())

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ImageName+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	pw := &progressWriter{w: tmp, total: size, log: s.log}
	if _, err := io.CopyN(pw, r, int64(size)); err != nil {
		tmp.Close()
		return fmt.Errorf("receive failed after %d bytes: %w", pw.n, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, ImageName)); err != nil {
		return err
	}
	s.log.Info("End: image staged at %s", filepath.Join(s.dir, ImageName))
	return nil
}

// Idle releases the port while the gate is closed. The next Handle
// opens it again.
func (s *Server) Idle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return
	}
	if err := s.closeListener(); err != nil {
		s.log.Warn("close listener: %v", err)
	}
	s.log.Info("gate closed, stopped listening")
}

// Close shuts the server down for good; Handle and Listen fail afterwards.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.ln == nil {
		return nil
	}
	return s.closeListener()
}

func (s *Server) closeListener() error {
	err := s.ln.Close()
	s.ln = nil
	return err
}

// progressWriter logs every 10% received.
type progressWriter struct {
	w     io.Writer
	total uint64
	n     uint64
	last  uint64
	log   *logger.Logger
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.n += uint64(n)
	if pct := p.n * 100 / p.total; pct/10 > p.last/10 {
		p.last = pct
		p.log.Info("Progress: %d%%", pct)
	}
	return n, err
}
