/*
 * Copyright 2025 FTTH Labs.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/ftthlab/fibermon/pkg/models"
)

var errNoIPv4Address = errors.New("address did not resolve to IPv4")

// ICMPPinger sends ICMP echo requests over an unprivileged datagram
// socket. Requires net.ipv4.ping_group_range to cover the process group.
type ICMPPinger struct {
	count   int
	timeout time.Duration
}

// NewICMPPinger creates a pinger from config.
func NewICMPPinger(cfg *models.ProbeConfig) *ICMPPinger {
	count := cfg.Count
	if count <= 0 {
		count = models.DefaultProbeCount
	}

	timeout := time.Duration(cfg.Timeout)
	if timeout == 0 {
		timeout = models.DefaultProbeTimeout
	}

	return &ICMPPinger{count: count, timeout: timeout}
}

// Ping sends count echo requests and aggregates replies. Lost packets
// count toward loss; only socket and resolution faults return an error.
func (p *ICMPPinger) Ping(ctx context.Context, address string) (*PingResult, error) {
	addr, err := net.ResolveIPAddr("ip4", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", address, err)
	}

	if addr.IP.To4() == nil {
		return nil, fmt.Errorf("%w: %q", errNoIPv4Address, address)
	}

	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		return nil, fmt.Errorf("failed to open ICMP socket: %w", err)
	}
	defer conn.Close()

	dst := &net.UDPAddr{IP: addr.IP}
	id := os.Getpid() & 0xffff

	received := 0

	var totalRTT time.Duration

	for seq := 0; seq < p.count; seq++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rtt, ok, err := p.exchange(conn, dst, id, seq)
		if err != nil {
			return nil, err
		}

		if ok {
			received++
			totalRTT += rtt
		}
	}

	result := &PingResult{PacketLossPercent: 100}

	if received > 0 {
		result.PacketLossPercent = float64(p.count-received) / float64(p.count) * 100
		result.LatencyMs = float64(totalRTT.Microseconds()) / float64(received) / 1000
	}

	return result, nil
}

// exchange sends one echo request and waits for its reply. A timeout is
// a lost packet, not an error.
func (p *ICMPPinger) exchange(conn *icmp.PacketConn, dst net.Addr, id, seq int) (time.Duration, bool, error) {
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{
			ID:   id,
			Seq:  seq,
			Data: []byte("fibermon probe"),
		},
	}

	payload, err := msg.Marshal(nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to marshal echo request: %w", err)
	}

	start := time.Now()

	if _, err := conn.WriteTo(payload, dst); err != nil {
		return 0, false, fmt.Errorf("failed to send echo request: %w", err)
	}

	if err := conn.SetReadDeadline(start.Add(p.timeout)); err != nil {
		return 0, false, err
	}

	reply := make([]byte, 1500)

	for {
		n, _, err := conn.ReadFrom(reply)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return 0, false, nil
			}

			return 0, false, fmt.Errorf("failed to read echo reply: %w", err)
		}

		parsed, err := icmp.ParseMessage(ipv4.ICMPTypeEchoReply.Protocol(), reply[:n])
		if err != nil {
			continue
		}

		echo, ok := parsed.Body.(*icmp.Echo)
		if !ok || parsed.Type != ipv4.ICMPTypeEchoReply || echo.Seq != seq {
			// Reply for another probe on the same socket.
			continue
		}

		return time.Since(start), true, nil
	}
}
