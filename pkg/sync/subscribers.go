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

// SubscriberSynchronizer folds provisioned subscribers into the registry.
// Only subscribers with coordinates become devices; the rest of the
// record set stays in the provisioning store until surveyed.
type SubscriberSynchronizer struct {
	db          db.Service
	devices     registry.DeviceManager
	concurrency int
	logger      logger.Logger
}

// NewSubscriberSynchronizer creates the subscriber source.
func NewSubscriberSynchronizer(
	database db.Service, devices registry.DeviceManager, concurrency int, log logger.Logger,
) *SubscriberSynchronizer {
	return &SubscriberSynchronizer{
		db:          database,
		devices:     devices,
		concurrency: concurrency,
		logger:      log,
	}
}

func (s *SubscriberSynchronizer) Name() string {
	return "subscribers"
}

func (s *SubscriberSynchronizer) Sync(ctx context.Context) (*Result, error) {
	subscribers, err := s.db.ListSubscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToListSource, err)
	}

	updates := make([]*models.DeviceUpdate, 0, len(subscribers))
	skipped := 0

	for _, sub := range subscribers {
		if sub.Latitude == nil || sub.Longitude == nil {
			skipped++
			continue
		}

		// The service-active flag is the one operational fact this
		// source knows; probing refines it later.
		status := models.StatusOffline
		if sub.Status == "active" {
			status = models.StatusOnline
		}

		subscriberID := sub.ID

		metadata := map[string]interface{}{
			"connection_type": sub.ConnectionType,
			"pppoe_username":  stringOrEmpty(sub.PppoeUsername),
			"service_status":  sub.Status,
		}

		// Static-address subscribers are pinged at their assigned IP.
		if sub.StaticIP != nil && *sub.StaticIP != "" {
			metadata["ip_address"] = *sub.StaticIP
		}

		updates = append(updates, &models.DeviceUpdate{
			DeviceType:   models.TypeSubscriber,
			Name:         subscriberName(sub),
			SubscriberID: &subscriberID,
			OdcRef:       sub.OdcRef,
			OdpRef:       sub.OdpRef,
			Address:      sub.Address,
			Latitude:     sub.Latitude,
			Longitude:    sub.Longitude,
			Status:       status,
			Metadata:     metadata,
		})
	}

	result := upsertAll(ctx, s.devices, updates, s.concurrency, s.logger)
	result.Skipped += skipped

	return &result, nil
}

func subscriberName(sub *models.Subscriber) string {
	if sub.Code == "" {
		return sub.Name
	}

	return fmt.Sprintf("%s (%s)", sub.Name, sub.Code)
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
