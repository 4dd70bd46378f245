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

const linkColumns = `id, source_device_id, target_device_id, link_type, status, created_at`

func (s *DataService) FindLinkID(ctx context.Context, sourceID, targetID string) (string, error) {
	var id string

	err := s.pool.QueryRow(ctx,
		`SELECT id FROM links WHERE source_device_id = $1 AND target_device_id = $2 LIMIT 1`,
		sourceID, targetID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrLinkNotFound
	}

	if err != nil {
		return "", fmt.Errorf("%w link: %w", ErrFailedToQuery, err)
	}

	return id, nil
}

func (s *DataService) InsertLink(ctx context.Context, link *models.Link) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO links (id, source_device_id, target_device_id, link_type, status, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		link.ID, link.SourceDeviceID, link.TargetDeviceID, link.LinkType, link.Status)
	if err != nil {
		return fmt.Errorf("%w link %s: %w", ErrFailedToInsert, link.ID, err)
	}

	return nil
}

func (s *DataService) ListLinks(ctx context.Context) ([]*models.Link, error) {
	return s.queryLinks(ctx, fmt.Sprintf(`SELECT %s FROM links`, linkColumns))
}

func (s *DataService) ListLinksFrom(ctx context.Context, deviceID string) ([]*models.Link, error) {
	return s.queryLinks(ctx,
		fmt.Sprintf(`SELECT %s FROM links WHERE source_device_id = $1`, linkColumns), deviceID)
}

func (s *DataService) ListLinksTo(ctx context.Context, deviceID string) ([]*models.Link, error) {
	return s.queryLinks(ctx,
		fmt.Sprintf(`SELECT %s FROM links WHERE target_device_id = $1`, linkColumns), deviceID)
}

func (s *DataService) queryLinks(ctx context.Context, query string, args ...interface{}) ([]*models.Link, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w links: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	var links []*models.Link

	for rows.Next() {
		var link models.Link

		if err := rows.Scan(&link.ID, &link.SourceDeviceID, &link.TargetDeviceID,
			&link.LinkType, &link.Status, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w link row: %w", ErrFailedToScan, err)
		}

		links = append(links, &link)
	}

	return links, rows.Err()
}
