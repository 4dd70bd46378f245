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

// Package topology derives the containment graph from device tier refs
// and serves the assembled device/link view.
package topology

import (
	"context"
	"time"

	"github.com/ftthlab/fibermon/pkg/cache"
	"github.com/ftthlab/fibermon/pkg/db"
	"github.com/ftthlab/fibermon/pkg/logger"
	"github.com/ftthlab/fibermon/pkg/models"
	"github.com/ftthlab/fibermon/pkg/registry"
)

const snapshotCacheKey = "topology:snapshot"

// Assembler derives parent-to-child links from the tier refs carried on
// devices and serves cached topology snapshots.
type Assembler struct {
	db       db.Service
	devices  registry.DeviceManager
	links    registry.LinkManager
	cache    *cache.TTLCache
	cacheTTL time.Duration
	logger   logger.Logger
	now      func() time.Time
}

// NewAssembler creates a topology assembler.
func NewAssembler(
	database db.Service,
	devices registry.DeviceManager,
	links registry.LinkManager,
	c *cache.TTLCache,
	cfg *models.TopologyConfig,
	log logger.Logger,
) *Assembler {
	cacheTTL := time.Duration(cfg.CacheTTL)
	if cacheTTL == 0 {
		cacheTTL = models.DefaultTopologyTTL
	}

	return &Assembler{
		db:       database,
		devices:  devices,
		links:    links,
		cache:    c,
		cacheTTL: cacheTTL,
		logger:   log,
		now:      time.Now,
	}
}

// AutoCreateLinks derives missing containment links in three passes:
// OLT to ODC, ODC to ODP, ODP to subscriber. A child whose parent ref
// points at nothing in the registry is skipped; re-running never
// duplicates an edge. Returns the number of links created.
func (a *Assembler) AutoCreateLinks(ctx context.Context) (int, error) {
	devices, err := a.devices.ListDevices(ctx, nil)
	if err != nil {
		return 0, err
	}

	oltByRef := make(map[int64]string)
	odcByRef := make(map[int64]string)
	odpByRef := make(map[int64]string)

	for _, device := range devices {
		switch device.DeviceType {
		case models.TypeOLT:
			if device.OltRef != nil {
				oltByRef[*device.OltRef] = device.ID
			}
		case models.TypeODC:
			if device.OdcRef != nil {
				odcByRef[*device.OdcRef] = device.ID
			}
		case models.TypeODP:
			if device.OdpRef != nil {
				odpByRef[*device.OdpRef] = device.ID
			}
		}
	}

	created := 0
	orphans := 0

	for _, device := range devices {
		var (
			parentID string
			found    bool
		)

		switch device.DeviceType {
		case models.TypeODC:
			if device.OltRef == nil {
				continue
			}

			parentID, found = oltByRef[*device.OltRef]
		case models.TypeODP:
			if device.OdcRef == nil {
				continue
			}

			parentID, found = odcByRef[*device.OdcRef]
		case models.TypeSubscriber:
			if device.OdpRef == nil {
				continue
			}

			parentID, found = odpByRef[*device.OdpRef]
		default:
			continue
		}

		if !found {
			orphans++
			continue
		}

		_, isNew, err := a.links.UpsertLink(ctx, parentID, device.ID, models.LinkTypeFiber)
		if err != nil {
			return created, err
		}

		if isNew {
			created++
		}
	}

	if created > 0 || orphans > 0 {
		a.logger.Info().
			Int("created", created).
			Int("orphans", orphans).
			Msg("Assembled topology links")
	}

	if created > 0 {
		a.cache.Invalidate(snapshotCacheKey)
	}

	return created, nil
}

// Snapshot returns the full device/link view with health statistics.
// When no links exist yet the assembler runs first, so a fresh
// deployment renders a connected map on the first request.
func (a *Assembler) Snapshot(ctx context.Context) (*models.TopologySnapshot, error) {
	if cached, ok := a.cache.Get(snapshotCacheKey); ok {
		if snapshot, ok := cached.(*models.TopologySnapshot); ok {
			return snapshot, nil
		}
	}

	links, err := a.links.ListLinks(ctx)
	if err != nil {
		return nil, err
	}

	if len(links) == 0 {
		if _, err := a.AutoCreateLinks(ctx); err != nil {
			return nil, err
		}

		links, err = a.links.ListLinks(ctx)
		if err != nil {
			return nil, err
		}
	}

	devices, err := a.devices.ListDevices(ctx, nil)
	if err != nil {
		return nil, err
	}

	stats, err := a.db.DeviceStatusCounts(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := &models.TopologySnapshot{
		Devices:     devices,
		Links:       links,
		Stats:       *stats,
		GeneratedAt: a.now(),
	}

	a.cache.Put(snapshotCacheKey, snapshot, a.cacheTTL)

	return snapshot, nil
}
