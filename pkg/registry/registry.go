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

// Package registry is the canonical store of monitored devices and the
// containment edges between them.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ftthlab/fibermon/pkg/db"
	"github.com/ftthlab/fibermon/pkg/logger"
	"github.com/ftthlab/fibermon/pkg/models"
)

// DeviceRegistry is the concrete DeviceManager backed by the store.
type DeviceRegistry struct {
	db     db.Service
	logger logger.Logger
}

// NewDeviceRegistry creates the authoritative device registry.
func NewDeviceRegistry(database db.Service, log logger.Logger) *DeviceRegistry {
	return &DeviceRegistry{db: database, logger: log}
}

func (r *DeviceRegistry) UpsertDevice(ctx context.Context, update *models.DeviceUpdate) (string, bool, error) {
	ident, err := update.Identity()
	if err != nil {
		return "", false, err
	}

	id, err := r.db.FindDeviceID(ctx, update.DeviceType, ident)

	switch {
	case errors.Is(err, db.ErrDeviceNotFound):
		status := update.Status
		if status == "" {
			status = models.StatusUnknown
		}

		device := deviceFromUpdate(update, status)
		device.ID = uuid.NewString()

		if err := r.db.InsertDevice(ctx, device); err != nil {
			return "", false, err
		}

		r.logger.Debug().
			Str("device_id", device.ID).
			Str("device_type", string(device.DeviceType)).
			Str("name", device.Name).
			Msg("Registered new device")

		return device.ID, true, nil
	case err != nil:
		return "", false, fmt.Errorf("failed to resolve device identity: %w", err)
	}

	// An empty status on an existing device is "no opinion": the store
	// keeps whatever the prober last recorded.
	device := deviceFromUpdate(update, update.Status)
	device.ID = id

	if err := r.db.UpdateDevice(ctx, device); err != nil {
		return "", false, err
	}

	return id, false, nil
}

func (r *DeviceRegistry) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	return r.db.GetDevice(ctx, id)
}

func (r *DeviceRegistry) ListDevices(ctx context.Context, deviceType *models.DeviceType) ([]*models.Device, error) {
	var filter *db.DeviceFilter

	if deviceType != nil {
		filter = &db.DeviceFilter{DeviceType: deviceType}
	}

	return r.db.ListDevices(ctx, filter)
}

func deviceFromUpdate(update *models.DeviceUpdate, status models.DeviceStatus) *models.Device {
	return &models.Device{
		DeviceType:   update.DeviceType,
		Name:         update.Name,
		AcsID:        update.AcsID,
		SubscriberID: update.SubscriberID,
		OltRef:       update.OltRef,
		OdcRef:       update.OdcRef,
		OdpRef:       update.OdpRef,
		Address:      update.Address,
		Latitude:     update.Latitude,
		Longitude:    update.Longitude,
		Status:       status,
		LastSeen:     update.LastSeen,
		Metadata:     update.Metadata,
	}
}
