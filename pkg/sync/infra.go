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

package sync

import (
	"context"
	"fmt"

	"github.com/ftthlab/fibermon/pkg/db"
	"github.com/ftthlab/fibermon/pkg/logger"
	"github.com/ftthlab/fibermon/pkg/models"
	"github.com/ftthlab/fibermon/pkg/registry"
)

// InfraSynchronizer folds the OLT, ODC and ODP inventories into the
// registry. Infrastructure sources carry no operational state, so
// updates leave device status to the prober.
type InfraSynchronizer struct {
	db          db.Service
	devices     registry.DeviceManager
	concurrency int
	logger      logger.Logger
}

// NewInfraSynchronizer creates the infrastructure source.
func NewInfraSynchronizer(
	database db.Service, devices registry.DeviceManager, concurrency int, log logger.Logger,
) *InfraSynchronizer {
	return &InfraSynchronizer{
		db:          database,
		devices:     devices,
		concurrency: concurrency,
		logger:      log,
	}
}

func (s *InfraSynchronizer) Name() string {
	return "infrastructure"
}

func (s *InfraSynchronizer) Sync(ctx context.Context) (*Result, error) {
	tiers := []struct {
		deviceType models.DeviceType
		list       func(context.Context) ([]*models.InfraRecord, error)
	}{
		{models.TypeOLT, s.db.ListOLTs},
		{models.TypeODC, s.db.ListODCs},
		{models.TypeODP, s.db.ListODPs},
	}

	var updates []*models.DeviceUpdate

	for _, tier := range tiers {
		records, err := tier.list(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w (%s): %w", errFailedToListSource, tier.deviceType, err)
		}

		for _, record := range records {
			updates = append(updates, infraUpdate(tier.deviceType, record))
		}
	}

	result := upsertAll(ctx, s.devices, updates, s.concurrency, s.logger)

	return &result, nil
}

func infraUpdate(deviceType models.DeviceType, record *models.InfraRecord) *models.DeviceUpdate {
	id := record.ID

	update := &models.DeviceUpdate{
		DeviceType: deviceType,
		Name:       record.Name,
		Address:    record.Location,
		Latitude:   record.Latitude,
		Longitude:  record.Longitude,
	}

	switch deviceType {
	case models.TypeOLT:
		update.OltRef = &id
	case models.TypeODC:
		update.OdcRef = &id
		update.OltRef = record.ParentRef
	case models.TypeODP:
		update.OdpRef = &id
		update.OdcRef = record.ParentRef
	}

	return update
}
