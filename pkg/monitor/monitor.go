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

// Package monitor runs the engine's recurring cycles: inventory sync,
// ACS sync, health probing and the cascade reaction to fresh outages.
package monitor

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/ftthlab/fibermon/pkg/cascade"
	"github.com/ftthlab/fibermon/pkg/logger"
	"github.com/ftthlab/fibermon/pkg/models"
	"github.com/ftthlab/fibermon/pkg/probe"
	"github.com/ftthlab/fibermon/pkg/sync"
	"github.com/ftthlab/fibermon/pkg/topology"
)

// Engine owns the recurring cycles and their cadences.
type Engine struct {
	syncService *sync.Service
	acs         sync.Synchronizer
	prober      *probe.Prober
	assembler   *topology.Assembler
	notifier    *cascade.Notifier

	syncInterval  time.Duration
	acsInterval   time.Duration
	probeInterval time.Duration

	logger logger.Logger
	cancel context.CancelFunc
	wg     stdsync.WaitGroup
}

// NewEngine assembles the engine from its services and cadences.
func NewEngine(
	syncService *sync.Service,
	acs sync.Synchronizer,
	prober *probe.Prober,
	assembler *topology.Assembler,
	notifier *cascade.Notifier,
	cfg *models.CoreConfig,
	log logger.Logger,
) *Engine {
	return &Engine{
		syncService:   syncService,
		acs:           acs,
		prober:        prober,
		assembler:     assembler,
		notifier:      notifier,
		syncInterval:  time.Duration(cfg.Sync.Interval),
		acsInterval:   time.Duration(cfg.ACS.Interval),
		probeInterval: time.Duration(cfg.Probe.Interval),
		logger:        log,
	}
}

// Start runs each cycle once immediately, then on its own cadence until
// Stop or context cancellation.
func (e *Engine) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)

	e.logger.Info().
		Dur("sync_interval", e.syncInterval).
		Dur("acs_interval", e.acsInterval).
		Dur("probe_interval", e.probeInterval).
		Msg("Starting monitoring engine")

	e.loop(ctx, e.syncInterval, e.runInventorySync)
	e.loop(ctx, e.acsInterval, e.runACSSync)
	e.loop(ctx, e.probeInterval, e.runProbeCycle)

	return nil
}

// Stop halts the cycles and waits for in-flight work to finish.
func (e *Engine) Stop(_ context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}

	e.wg.Wait()

	e.logger.Info().Msg("Monitoring engine stopped")

	return nil
}

func (e *Engine) loop(ctx context.Context, interval time.Duration, run func(context.Context)) {
	e.wg.Add(1)

	go func() {
		defer e.wg.Done()

		run(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run(ctx)
			}
		}
	}()
}

// runInventorySync pulls the provisioning-side sources and tops up the
// containment links for whatever appeared.
func (e *Engine) runInventorySync(ctx context.Context) {
	e.syncService.RunAll(ctx)

	if _, err := e.assembler.AutoCreateLinks(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Failed to assemble topology links")
	}
}

func (e *Engine) runACSSync(ctx context.Context) {
	if _, err := e.acs.Sync(ctx); err != nil {
		e.logger.Error().Err(err).Str("source", e.acs.Name()).Msg("Sync cycle failed")
	}
}

// runProbeCycle probes everything and cascades notifications for
// infrastructure devices that just went offline.
func (e *Engine) runProbeCycle(ctx context.Context) {
	outcomes, err := e.prober.ProbeAll(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("Probe cycle failed")
		return
	}

	for _, outcome := range outcomes {
		if !outcome.WentOffline() || !outcome.DeviceType.IsInfrastructure() {
			continue
		}

		if _, err := e.notifier.OnDeviceDown(ctx, outcome.DeviceID); err != nil {
			e.logger.Error().Err(err).
				Str("device_id", outcome.DeviceID).
				Str("name", outcome.Name).
				Msg("Failed to cascade device outage")
		}
	}
}
