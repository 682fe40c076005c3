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

// Package netwait blocks bootstrap until the host has a usable network
// address.
package netwait

import (
	"airnode/pkg/logger"
	"context"
	"net"
	"slices"
	"strings"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
)

type lister func(ctx context.Context) (psnet.InterfaceStatList, error)

var interfaces lister = psnet.InterfacesWithContext

// FirstAddress returns the first non-loopback, non-link-local address of
// an interface that is up, and that interface's name.
func FirstAddress(ctx context.Context) (ip, iface string, ok bool) {
	ifs, err := interfaces(ctx)
	if err != nil {
		return "", "", false
	}
	for _, ifi := range ifs {
		if !slices.Contains(ifi.Flags, "up") || slices.Contains(ifi.Flags, "loopback") {
			continue
		}
		for _, a := range ifi.Addrs {
			addr, _, err := net.ParseCIDR(a.Addr)
			if err != nil {
				addr = net.ParseIP(strings.TrimSpace(a.Addr))
			}
			if addr == nil || addr.IsLoopback() || addr.IsLinkLocalUnicast() {
				continue
			}
			return addr.String(), ifi.Name, true
		}
	}
	return "", "", false
}

// Wait polls every interval until an address is available or ctx is done.
// network is only used for logging.
func Wait(ctx context.Context, network string, interval time.Duration) (string, error) {
	log := logger.New("NetWait")
	log.Info("Connecting to %s", network)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if ip, iface, ok := FirstAddress(ctx); ok {
			log.Info("Connected, IP address: %s (%s)", ip, iface)
			return ip, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}
