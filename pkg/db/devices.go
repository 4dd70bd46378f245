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

package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ftthlab/fibermon/pkg/models"
)

const deviceColumns = `id, device_type, name, acs_id, subscriber_id, olt_ref, odc_ref, odp_ref,
	address, latitude, longitude, status, last_seen, last_check, latency_ms, packet_loss_percent,
	metadata, created_at, updated_at`

// identityColumns whitelists the columns an IdentityRef may name. The
// field value is interpolated into SQL, so it must never come from data.
var identityColumns = map[string]bool{
	models.IdentityAcsID:        true,
	models.IdentitySubscriberID: true,
	models.IdentityOltRef:       true,
	models.IdentityOdcRef:       true,
	models.IdentityOdpRef:       true,
}

var errUnknownIdentityField = errors.New("unknown identity field")

func (s *DataService) FindDeviceID(ctx context.Context, deviceType models.DeviceType, ident *models.IdentityRef) (string, error) {
	if !identityColumns[ident.Field] {
		return "", fmt.Errorf("%w: %q", errUnknownIdentityField, ident.Field)
	}

	var key interface{} = ident.Num
	if ident.Field == models.IdentityAcsID {
		key = ident.Text
	}

	query := fmt.Sprintf(
		`SELECT id FROM devices WHERE device_type = $1 AND %s = $2 LIMIT 1`, ident.Field)

	var id string

	err := s.pool.QueryRow(ctx, query, deviceType, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrDeviceNotFound
	}

	if err != nil {
		return "", fmt.Errorf("%w device by identity: %w", ErrFailedToQuery, err)
	}

	return id, nil
}

func (s *DataService) InsertDevice(ctx context.Context, device *models.Device) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO devices (id, device_type, name, acs_id, subscriber_id, olt_ref, odc_ref, odp_ref,
			address, latitude, longitude, status, last_seen, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())`,
		device.ID, device.DeviceType, device.Name,
		device.AcsID, device.SubscriberID, device.OltRef, device.OdcRef, device.OdpRef,
		device.Address, device.Latitude, device.Longitude,
		device.Status, device.LastSeen, encodeMetadata(device.Metadata))
	if err != nil {
		return fmt.Errorf("%w device %s: %w", ErrFailedToInsert, device.ID, err)
	}

	return nil
}

func (s *DataService) UpdateDevice(ctx context.Context, device *models.Device) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE devices
		SET name = $2, acs_id = $3, subscriber_id = $4, olt_ref = $5, odc_ref = $6, odp_ref = $7,
			address = $8, latitude = $9, longitude = $10,
			status = COALESCE(NULLIF($11::text, ''), status),
			last_seen = COALESCE($12, last_seen),
			metadata = $13, updated_at = now()
		WHERE id = $1`,
		device.ID, device.Name,
		device.AcsID, device.SubscriberID, device.OltRef, device.OdcRef, device.OdpRef,
		device.Address, device.Latitude, device.Longitude,
		device.Status, device.LastSeen, encodeMetadata(device.Metadata))
	if err != nil {
		return fmt.Errorf("%w device %s: %w", ErrFailedToUpdate, device.ID, err)
	}

	return nil
}

func (s *DataService) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM devices WHERE id = $1`, deviceColumns), id)

	device, err := s.scanDevice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}

	if err != nil {
		return nil, err
	}

	return device, nil
}

func (s *DataService) ListDevices(ctx context.Context, filter *DeviceFilter) ([]*models.Device, error) {
	query := fmt.Sprintf(`SELECT %s FROM devices`, deviceColumns)

	var args []interface{}

	if filter != nil && filter.DeviceType != nil {
		query += ` WHERE device_type = $1`

		args = append(args, *filter.DeviceType)
	}

	query += ` ORDER BY device_type, name`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w devices: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	var devices []*models.Device

	for rows.Next() {
		device, err := s.scanDevice(rows)
		if err != nil {
			return nil, err
		}

		devices = append(devices, device)
	}

	return devices, rows.Err()
}

func (s *DataService) RecordProbeResult(
	ctx context.Context, id string, status models.DeviceStatus, latencyMs, packetLoss *float64, seen bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE devices
		SET status = $2, latency_ms = $3, packet_loss_percent = $4,
			last_check = now(),
			last_seen = CASE WHEN $5 THEN now() ELSE last_seen END,
			updated_at = now()
		WHERE id = $1`,
		id, status, latencyMs, packetLoss, seen)
	if err != nil {
		return fmt.Errorf("%w probe result for %s: %w", ErrFailedToUpdate, id, err)
	}

	return nil
}

func (s *DataService) TouchDeviceCheck(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE devices SET last_check = now(), updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w last_check for %s: %w", ErrFailedToUpdate, id, err)
	}

	return nil
}

func (s *DataService) DeviceStatusCounts(ctx context.Context) (*models.TopologyStats, error) {
	var stats models.TopologyStats

	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'online'),
			COUNT(*) FILTER (WHERE status = 'offline'),
			COUNT(*) FILTER (WHERE status = 'warning')
		FROM devices`).
		Scan(&stats.TotalDevices, &stats.OnlineDevices, &stats.OfflineDevices, &stats.WarningDevices)
	if err != nil {
		return nil, fmt.Errorf("%w device status counts: %w", ErrFailedToQuery, err)
	}

	return &stats, nil
}

func (s *DataService) scanDevice(row pgx.Row) (*models.Device, error) {
	var (
		device   models.Device
		metadata []byte
	)

	err := row.Scan(&device.ID, &device.DeviceType, &device.Name,
		&device.AcsID, &device.SubscriberID, &device.OltRef, &device.OdcRef, &device.OdpRef,
		&device.Address, &device.Latitude, &device.Longitude,
		&device.Status, &device.LastSeen, &device.LastCheck,
		&device.LatencyMs, &device.PacketLossPercent,
		&metadata, &device.CreatedAt, &device.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	if err != nil {
		return nil, fmt.Errorf("%w device row: %w", ErrFailedToScan, err)
	}

	// A bad metadata blob must not fail the whole listing.
	device.Metadata = decodeMetadata(metadata, s.logger, device.ID)

	return &device, nil
}
