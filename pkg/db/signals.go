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
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ftthlab/fibermon/pkg/models"
)

// MaintenanceSignals returns one signal per subscriber with an open
// maintenance window (scheduled or in progress).
func (s *DataService) MaintenanceSignals(ctx context.Context) ([]*models.TroubleSignal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT subscriber_id, COALESCE(issue_type, 'Maintenance'), status, created_at
		FROM maintenance_windows
		WHERE status IN ('scheduled', 'in_progress')`)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, fmt.Errorf("%w: maintenance_windows: %w", ErrSignalSourceMissing, err)
		}

		return nil, fmt.Errorf("%w maintenance signals: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	var signals []*models.TroubleSignal

	for rows.Next() {
		sig := models.TroubleSignal{TroubleType: models.TroubleMaintenance}

		var status string

		if err := rows.Scan(&sig.SubscriberID, &sig.IssueType, &status, &sig.Since); err != nil {
			return nil, fmt.Errorf("%w maintenance signal: %w", ErrFailedToScan, err)
		}

		sig.MaintenanceStatus = &status
		signals = append(signals, &sig)
	}

	return signals, rows.Err()
}

// OfflineSignals returns one signal per subscriber whose most recent
// connection-state record within the window shows disconnected, with no
// newer reconnect inside the grace window, plus subscribers whose static
// address ping state is offline within the window.
func (s *DataService) OfflineSignals(ctx context.Context, window, grace time.Duration) ([]*models.TroubleSignal, error) {
	pinged, pingErr := s.pingOfflineSignals(ctx, window)
	if pingErr != nil && !errors.Is(pingErr, ErrSignalSourceMissing) {
		return nil, pingErr
	}

	logged, logErr := s.eventOfflineSignals(ctx, window, grace)
	if logErr != nil && !errors.Is(logErr, ErrSignalSourceMissing) {
		return nil, logErr
	}

	// A deployment may track only one of the two sources; the detector is
	// missing only when both tables are absent.
	if pingErr != nil && logErr != nil {
		return nil, pingErr
	}

	bySubscriber := make(map[int64]*models.TroubleSignal)

	for _, sig := range pinged {
		bySubscriber[sig.SubscriberID] = sig
	}

	for _, sig := range logged {
		if existing, ok := bySubscriber[sig.SubscriberID]; !ok || sig.Since.After(existing.Since) {
			bySubscriber[sig.SubscriberID] = sig
		}
	}

	signals := make([]*models.TroubleSignal, 0, len(bySubscriber))
	for _, sig := range bySubscriber {
		signals = append(signals, sig)
	}

	return signals, nil
}

func scanOfflineSignals(rows pgx.Rows) ([]*models.TroubleSignal, error) {
	defer rows.Close()

	var signals []*models.TroubleSignal

	for rows.Next() {
		sig := models.TroubleSignal{TroubleType: models.TroubleOffline, IssueType: "Offline"}

		if err := rows.Scan(&sig.SubscriberID, &sig.Since); err != nil {
			return nil, fmt.Errorf("%w offline signal: %w", ErrFailedToScan, err)
		}

		signals = append(signals, &sig)
	}

	return signals, rows.Err()
}

func (s *DataService) pingOfflineSignals(ctx context.Context, window time.Duration) ([]*models.TroubleSignal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT subscriber_id, COALESCE(last_offline_at, last_check)
		FROM ping_status
		WHERE status = 'offline' AND last_check >= now() - $1::interval`,
		window)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, fmt.Errorf("%w: ping_status: %w", ErrSignalSourceMissing, err)
		}

		return nil, fmt.Errorf("%w ping offline signals: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	return scanOfflineSignals(rows)
}

func (s *DataService) eventOfflineSignals(ctx context.Context, window, grace time.Duration) ([]*models.TroubleSignal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.subscriber_id, e.recorded_at
		FROM connection_events e
		JOIN (
			SELECT subscriber_id, MAX(recorded_at) AS latest
			FROM connection_events
			WHERE recorded_at >= now() - $1::interval
			GROUP BY subscriber_id
		) last ON e.subscriber_id = last.subscriber_id AND e.recorded_at = last.latest
		WHERE e.state = 'offline'
			AND NOT EXISTS (
				SELECT 1 FROM connection_events o
				WHERE o.subscriber_id = e.subscriber_id
					AND o.state = 'online'
					AND o.recorded_at > e.recorded_at
					AND o.recorded_at >= now() - $2::interval
			)`,
		window, grace)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, fmt.Errorf("%w: connection_events: %w", ErrSignalSourceMissing, err)
		}

		return nil, fmt.Errorf("%w event offline signals: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	return scanOfflineSignals(rows)
}

// TicketSignals returns one signal per subscriber with an open ticket.
func (s *DataService) TicketSignals(ctx context.Context) ([]*models.TroubleSignal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT subscriber_id, 'Ticket: ' || subject, reported_at
		FROM tickets
		WHERE status = 'open'`)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, fmt.Errorf("%w: tickets: %w", ErrSignalSourceMissing, err)
		}

		return nil, fmt.Errorf("%w ticket signals: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	var signals []*models.TroubleSignal

	for rows.Next() {
		sig := models.TroubleSignal{TroubleType: models.TroubleTicket}

		if err := rows.Scan(&sig.SubscriberID, &sig.IssueType, &sig.Since); err != nil {
			return nil, fmt.Errorf("%w ticket signal: %w", ErrFailedToScan, err)
		}

		signals = append(signals, &sig)
	}

	return signals, rows.Err()
}

// SLASignals returns one signal per subscriber with an ongoing SLA incident.
func (s *DataService) SLASignals(ctx context.Context) ([]*models.TroubleSignal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT subscriber_id, 'SLA: ' || incident_type, start_time
		FROM sla_incidents
		WHERE status = 'ongoing'`)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, fmt.Errorf("%w: sla_incidents: %w", ErrSignalSourceMissing, err)
		}

		return nil, fmt.Errorf("%w sla signals: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	var signals []*models.TroubleSignal

	for rows.Next() {
		sig := models.TroubleSignal{TroubleType: models.TroubleSLAIncident}

		if err := rows.Scan(&sig.SubscriberID, &sig.IssueType, &sig.Since); err != nil {
			return nil, fmt.Errorf("%w sla signal: %w", ErrFailedToScan, err)
		}

		signals = append(signals, &sig)
	}

	return signals, rows.Err()
}
