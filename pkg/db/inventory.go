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
	"fmt"

	"github.com/ftthlab/fibermon/pkg/models"
)

const subscriberColumns = `s.id, s.name, s.code, s.status, s.connection_type, s.pppoe_username,
	s.serial_number, ip.ip_address, s.odc_ref, s.odp_ref, s.address, s.phone,
	s.latitude, s.longitude, COALESCE(s.is_isolated, false)`

// Static-address subscribers carry their routable IP in a side table;
// the join surfaces it so the prober can reach them.
const subscriberFrom = `FROM subscribers s
	LEFT JOIN static_ip_clients ip ON ip.subscriber_id = s.id`

// ListSubscribers fetches the full subscriber inventory.
func (s *DataService) ListSubscribers(ctx context.Context) ([]*models.Subscriber, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s %s`, subscriberColumns, subscriberFrom))
	if err != nil {
		return nil, fmt.Errorf("%w subscribers: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	var subscribers []*models.Subscriber

	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}

		subscribers = append(subscribers, sub)
	}

	return subscribers, rows.Err()
}

// GetSubscribers fetches subscriber records by id, keyed for merge joins.
func (s *DataService) GetSubscribers(ctx context.Context, ids []int64) (map[int64]*models.Subscriber, error) {
	if len(ids) == 0 {
		return map[int64]*models.Subscriber{}, nil
	}

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s %s WHERE s.id = ANY($1)`, subscriberColumns, subscriberFrom), ids)
	if err != nil {
		return nil, fmt.Errorf("%w subscribers by id: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	subscribers := make(map[int64]*models.Subscriber, len(ids))

	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}

		subscribers[sub.ID] = sub
	}

	return subscribers, rows.Err()
}

func (s *DataService) ListOLTs(ctx context.Context) ([]*models.InfraRecord, error) {
	return s.queryInfra(ctx,
		`SELECT id, name, NULL::bigint, latitude, longitude, location FROM ftth_olts`)
}

func (s *DataService) ListODCs(ctx context.Context) ([]*models.InfraRecord, error) {
	return s.queryInfra(ctx,
		`SELECT id, name, olt_id, latitude, longitude, location FROM ftth_odcs`)
}

func (s *DataService) ListODPs(ctx context.Context) ([]*models.InfraRecord, error) {
	return s.queryInfra(ctx,
		`SELECT id, name, odc_id, latitude, longitude, location FROM ftth_odps`)
}

func (s *DataService) queryInfra(ctx context.Context, query string) ([]*models.InfraRecord, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w infrastructure inventory: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	var records []*models.InfraRecord

	for rows.Next() {
		var rec models.InfraRecord

		if err := rows.Scan(&rec.ID, &rec.Name, &rec.ParentRef,
			&rec.Latitude, &rec.Longitude, &rec.Location); err != nil {
			return nil, fmt.Errorf("%w infrastructure row: %w", ErrFailedToScan, err)
		}

		records = append(records, &rec)
	}

	return records, rows.Err()
}

func scanSubscriber(rows interface {
	Scan(dest ...interface{}) error
}) (*models.Subscriber, error) {
	var sub models.Subscriber

	if err := rows.Scan(&sub.ID, &sub.Name, &sub.Code, &sub.Status, &sub.ConnectionType,
		&sub.PppoeUsername, &sub.SerialNumber, &sub.StaticIP, &sub.OdcRef, &sub.OdpRef,
		&sub.Address, &sub.Phone, &sub.Latitude, &sub.Longitude, &sub.IsIsolated); err != nil {
		return nil, fmt.Errorf("%w subscriber row: %w", ErrFailedToScan, err)
	}

	return &sub, nil
}
