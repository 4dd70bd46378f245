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

// Package trouble computes the merged list of subscribers that currently
// have a problem. Nothing here is persisted; every query re-derives the
// list from the detector sources and merges per subscriber.
package trouble

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/ftthlab/fibermon/pkg/cache"
	"github.com/ftthlab/fibermon/pkg/db"
	"github.com/ftthlab/fibermon/pkg/logger"
	"github.com/ftthlab/fibermon/pkg/models"
)

const cacheKey = "trouble:subscribers"

// Label and sort order are two different rankings. When one subscriber
// carries several signals, the merged record is labeled by the most
// operationally telling detector (maintenance, then offline, then SLA
// incident, then anything else); the list itself is ordered by the
// dispatch urgency ranking.
var (
	labelPriorities = map[models.TroubleType]int{
		models.TroubleMaintenance: 1,
		models.TroubleOffline:     2,
		models.TroubleSLAIncident: 3,
		models.TroubleTicket:      4,
	}

	sortPriorities = map[models.TroubleType]int{
		models.TroubleMaintenance: 1,
		models.TroubleOffline:     2,
		models.TroubleTicket:      3,
		models.TroubleSLAIncident: 4,
	}
)

// Aggregator merges detector signals into per-subscriber trouble records.
type Aggregator struct {
	db            db.Service
	cache         *cache.TTLCache
	limit         int
	offlineWindow time.Duration
	graceWindow   time.Duration
	cacheTTL      time.Duration
	logger        logger.Logger
}

// NewAggregator creates an aggregator from config.
func NewAggregator(database db.Service, c *cache.TTLCache, cfg *models.TroubleConfig, log logger.Logger) *Aggregator {
	limit := cfg.Limit
	if limit <= 0 {
		limit = models.DefaultTroubleLimit
	}

	offlineWindow := time.Duration(cfg.OfflineWindow)
	if offlineWindow == 0 {
		offlineWindow = models.DefaultOfflineWindow
	}

	graceWindow := time.Duration(cfg.GraceWindow)
	if graceWindow == 0 {
		graceWindow = models.DefaultGraceWindow
	}

	cacheTTL := time.Duration(cfg.CacheTTL)
	if cacheTTL == 0 {
		cacheTTL = models.DefaultTroubleTTL
	}

	return &Aggregator{
		db:            database,
		cache:         c,
		limit:         limit,
		offlineWindow: offlineWindow,
		graceWindow:   graceWindow,
		cacheTTL:      cacheTTL,
		logger:        log,
	}
}

// TroubledSubscribers returns the merged trouble list, ordered by
// detector priority and then recency, capped at the configured limit.
// Results are cached briefly so dashboards can poll without hammering
// the detectors.
func (a *Aggregator) TroubledSubscribers(ctx context.Context) ([]*models.TroubleRecord, error) {
	if cached, ok := a.cache.Get(cacheKey); ok {
		if records, ok := cached.([]*models.TroubleRecord); ok {
			return copyRecords(records), nil
		}
	}

	signals, err := a.collectSignals(ctx)
	if err != nil {
		return nil, err
	}

	records, err := a.merge(ctx, signals)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		pi, pj := sortPriorities[records[i].TroubleType], sortPriorities[records[j].TroubleType]
		if pi != pj {
			return pi < pj
		}

		return records[i].TroubleSince.After(records[j].TroubleSince)
	})

	if len(records) > a.limit {
		records = records[:a.limit]
	}

	a.cache.Put(cacheKey, records, a.cacheTTL)

	return copyRecords(records), nil
}

// copyRecords shields the cached slice from caller mutation.
func copyRecords(records []*models.TroubleRecord) []*models.TroubleRecord {
	copied := make([]*models.TroubleRecord, len(records))

	for i, record := range records {
		c := *record
		copied[i] = &c
	}

	return copied
}

// Invalidate drops the cached trouble list so the next query recomputes.
func (a *Aggregator) Invalidate() {
	a.cache.Invalidate(cacheKey)
}

// collectSignals queries every detector. A detector whose backing tables
// are not deployed is skipped with a warning; any other failure aborts
// the query.
func (a *Aggregator) collectSignals(ctx context.Context) ([]*models.TroubleSignal, error) {
	detectors := []struct {
		troubleType models.TroubleType
		fetch       func(context.Context) ([]*models.TroubleSignal, error)
	}{
		{models.TroubleMaintenance, a.db.MaintenanceSignals},
		{models.TroubleOffline, func(ctx context.Context) ([]*models.TroubleSignal, error) {
			return a.db.OfflineSignals(ctx, a.offlineWindow, a.graceWindow)
		}},
		{models.TroubleTicket, a.db.TicketSignals},
		{models.TroubleSLAIncident, a.db.SLASignals},
	}

	var signals []*models.TroubleSignal

	for _, detector := range detectors {
		batch, err := detector.fetch(ctx)
		if errors.Is(err, db.ErrSignalSourceMissing) {
			a.logger.Warn().
				Str("detector", string(detector.troubleType)).
				Msg("Detector source not deployed, skipping")

			continue
		}

		if err != nil {
			return nil, err
		}

		signals = append(signals, batch...)
	}

	return signals, nil
}

// merge resolves signals to subscribers and folds multiple signals for
// the same subscriber into one record: highest-priority detector labels
// the record, most recent detector timestamp dates it.
func (a *Aggregator) merge(ctx context.Context, signals []*models.TroubleSignal) ([]*models.TroubleRecord, error) {
	ids := make([]int64, 0, len(signals))
	seen := make(map[int64]bool, len(signals))

	for _, signal := range signals {
		if !seen[signal.SubscriberID] {
			seen[signal.SubscriberID] = true

			ids = append(ids, signal.SubscriberID)
		}
	}

	if len(ids) == 0 {
		return []*models.TroubleRecord{}, nil
	}

	subscribers, err := a.db.GetSubscribers(ctx, ids)
	if err != nil {
		return nil, err
	}

	merged := make(map[int64]*models.TroubleRecord)

	for _, signal := range signals {
		sub, ok := subscribers[signal.SubscriberID]
		if !ok || !a.eligible(sub, signal) {
			continue
		}

		record, ok := merged[signal.SubscriberID]
		if !ok {
			merged[signal.SubscriberID] = recordFor(sub, signal)

			continue
		}

		if labelPriorities[signal.TroubleType] < labelPriorities[record.TroubleType] {
			record.TroubleType = signal.TroubleType
			record.IssueType = signal.IssueType
			record.MaintenanceStatus = signal.MaintenanceStatus
		}

		if signal.Since.After(record.TroubleSince) {
			record.TroubleSince = signal.Since
		}
	}

	records := make([]*models.TroubleRecord, 0, len(merged))

	for _, record := range merged {
		records = append(records, record)
	}

	// Deterministic base order before the priority sort.
	sort.Slice(records, func(i, j int) bool {
		return records[i].SubscriberID < records[j].SubscriberID
	})

	return records, nil
}

// eligible filters which subscribers a signal may surface. Inactive
// subscribers never appear; an isolated subscriber is expected to be
// unreachable, so offline signals for it are noise while maintenance,
// tickets and SLA incidents still count.
func (a *Aggregator) eligible(sub *models.Subscriber, signal *models.TroubleSignal) bool {
	if sub.Status != "active" && sub.Status != "suspended" {
		return false
	}

	if sub.IsIsolated && signal.TroubleType == models.TroubleOffline {
		return false
	}

	return true
}

func recordFor(sub *models.Subscriber, signal *models.TroubleSignal) *models.TroubleRecord {
	return &models.TroubleRecord{
		SubscriberID:      sub.ID,
		Name:              sub.Name,
		Code:              sub.Code,
		Status:            sub.Status,
		ConnectionType:    sub.ConnectionType,
		PppoeUsername:     sub.PppoeUsername,
		OdcRef:            sub.OdcRef,
		OdpRef:            sub.OdpRef,
		Address:           sub.Address,
		Phone:             sub.Phone,
		MaintenanceStatus: signal.MaintenanceStatus,
		IssueType:         signal.IssueType,
		TroubleSince:      signal.Since,
		TroubleType:       signal.TroubleType,
	}
}
