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

// Package probe actively measures device reachability and keeps the
// registry's health fields current. A probe that cannot run (no address,
// broken socket) is not evidence the target is down and never flips a
// device's status.
package probe

import (
	"context"
	"net"
	"sync"

	"github.com/ftthlab/fibermon/pkg/db"
	"github.com/ftthlab/fibermon/pkg/logger"
	"github.com/ftthlab/fibermon/pkg/models"
)

//go:generate mockgen -destination=mock_probe.go -package=probe github.com/ftthlab/fibermon/pkg/probe Pinger

const (
	warningLossPercent = 5.0
	warningLatencyMs   = 100.0
)

// PingResult holds the aggregate of one multi-packet probe.
type PingResult struct {
	LatencyMs         float64
	PacketLossPercent float64
}

// Pinger measures reachability of one address. An error return means the
// measurement itself failed; an unreachable target is reported as a
// result with full packet loss.
type Pinger interface {
	Ping(ctx context.Context, address string) (*PingResult, error)
}

// Outcome reports one device's status before and after a probe cycle,
// so callers can react to transitions.
type Outcome struct {
	DeviceID   string
	DeviceType models.DeviceType
	Name       string
	Previous   models.DeviceStatus
	Current    models.DeviceStatus
}

// WentOffline reports whether this cycle moved the device into offline.
func (o *Outcome) WentOffline() bool {
	return o.Current == models.StatusOffline && o.Previous != models.StatusOffline
}

// Classify maps a probe measurement to a device status. Rules apply in
// order: total loss is offline, noticeable loss or high latency is
// warning, anything else is online.
func Classify(result *PingResult) models.DeviceStatus {
	switch {
	case result.PacketLossPercent >= 100:
		return models.StatusOffline
	case result.PacketLossPercent > warningLossPercent:
		return models.StatusWarning
	case result.LatencyMs > warningLatencyMs:
		return models.StatusWarning
	default:
		return models.StatusOnline
	}
}

// Prober runs probe cycles over the registry.
type Prober struct {
	db          db.Service
	pinger      Pinger
	concurrency int
	logger      logger.Logger
}

// NewProber creates a prober.
func NewProber(database db.Service, pinger Pinger, cfg *models.ProbeConfig, log logger.Logger) *Prober {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = models.DefaultProbeWorkers
	}

	return &Prober{
		db:          database,
		pinger:      pinger,
		concurrency: concurrency,
		logger:      log,
	}
}

// ProbeAll probes every registered device with bounded concurrency and
// returns the per-device outcomes. Individual probe failures are logged
// and do not abort the cycle.
func (p *Prober) ProbeAll(ctx context.Context) ([]*Outcome, error) {
	devices, err := p.db.ListDevices(ctx, nil)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		outcomes []*Outcome
	)

	sem := make(chan struct{}, p.concurrency)

	for _, device := range devices {
		wg.Add(1)
		sem <- struct{}{}

		go func(device *models.Device) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := p.probeDevice(ctx, device)
			if outcome == nil {
				return
			}

			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
		}(device)
	}

	wg.Wait()

	return outcomes, nil
}

// probeDevice measures one device and records the result. It returns nil
// when no status decision was made (no address, or the probe tooling
// failed).
func (p *Prober) probeDevice(ctx context.Context, device *models.Device) *Outcome {
	address := probeAddress(device)
	if address == "" {
		// Unreachable by construction, not evidence of an outage.
		if err := p.db.RecordProbeResult(ctx, device.ID, models.StatusUnknown, nil, nil, false); err != nil {
			p.logger.Warn().Err(err).Str("device_id", device.ID).Msg("Failed to record probe result")
		}

		return nil
	}

	result, err := p.pinger.Ping(ctx, address)
	if err != nil {
		p.logger.Warn().Err(err).
			Str("device_id", device.ID).
			Str("address", address).
			Msg("Probe could not run, keeping previous status")

		if err := p.db.TouchDeviceCheck(ctx, device.ID); err != nil {
			p.logger.Warn().Err(err).Str("device_id", device.ID).Msg("Failed to record probe attempt")
		}

		return nil
	}

	status := Classify(result)
	seen := status == models.StatusOnline && device.Status != models.StatusOnline

	latency := result.LatencyMs
	loss := result.PacketLossPercent

	if err := p.db.RecordProbeResult(ctx, device.ID, status, &latency, &loss, seen); err != nil {
		p.logger.Warn().Err(err).Str("device_id", device.ID).Msg("Failed to record probe result")

		return nil
	}

	return &Outcome{
		DeviceID:   device.ID,
		DeviceType: device.DeviceType,
		Name:       device.Name,
		Previous:   device.Status,
		Current:    status,
	}
}

// probeAddress picks the address to ping: the IP learned from the ACS
// or the static-IP assignment when present, otherwise the device's own
// address field when it holds an IP. Street addresses are not pingable.
func probeAddress(device *models.Device) string {
	if ip, ok := device.Metadata["ip_address"].(string); ok && ip != "" {
		return ip
	}

	if device.Address != nil && net.ParseIP(*device.Address) != nil {
		return *device.Address
	}

	return ""
}
