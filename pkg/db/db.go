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

// Package db implements the relational-store collaborator. Every mutation
// is a single-row statement assumed atomic at the storage layer; the
// engine never takes multi-row transactions for device or link upserts.
package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ftthlab/fibermon/pkg/logger"
	"github.com/ftthlab/fibermon/pkg/models"
)

//go:generate mockgen -destination=mock_db.go -package=db github.com/ftthlab/fibermon/pkg/db Service

// DeviceFilter narrows ListDevices results.
type DeviceFilter struct {
	DeviceType *models.DeviceType
}

// DeviceStore persists registry devices.
type DeviceStore interface {
	// FindDeviceID looks up a device by its (type, source key) identity.
	// Returns ErrDeviceNotFound when no row matches.
	FindDeviceID(ctx context.Context, deviceType models.DeviceType, ident *models.IdentityRef) (string, error)
	InsertDevice(ctx context.Context, device *models.Device) error
	UpdateDevice(ctx context.Context, device *models.Device) error
	GetDevice(ctx context.Context, id string) (*models.Device, error)
	ListDevices(ctx context.Context, filter *DeviceFilter) ([]*models.Device, error)
	// RecordProbeResult stores a completed probe: status and metrics, with
	// last_check refreshed. When seen is true last_seen is refreshed too.
	RecordProbeResult(ctx context.Context, id string, status models.DeviceStatus, latencyMs, packetLoss *float64, seen bool) error
	// TouchDeviceCheck refreshes last_check only, leaving status and
	// metrics untouched. Used when the probe tooling itself failed.
	TouchDeviceCheck(ctx context.Context, id string) error
	DeviceStatusCounts(ctx context.Context) (*models.TopologyStats, error)
}

// LinkStore persists the derived parent-to-child edge table.
type LinkStore interface {
	// FindLinkID returns the id of the edge (source, target), or
	// ErrLinkNotFound.
	FindLinkID(ctx context.Context, sourceID, targetID string) (string, error)
	InsertLink(ctx context.Context, link *models.Link) error
	ListLinks(ctx context.Context) ([]*models.Link, error)
	ListLinksFrom(ctx context.Context, deviceID string) ([]*models.Link, error)
	ListLinksTo(ctx context.Context, deviceID string) ([]*models.Link, error)
}

// SignalStore computes raw trouble signals from the detector tables.
// Each method returns ErrSignalSourceMissing (wrapped) when its backing
// table does not exist, so the aggregator can degrade gracefully.
type SignalStore interface {
	MaintenanceSignals(ctx context.Context) ([]*models.TroubleSignal, error)
	OfflineSignals(ctx context.Context, window, grace time.Duration) ([]*models.TroubleSignal, error)
	TicketSignals(ctx context.Context) ([]*models.TroubleSignal, error)
	SLASignals(ctx context.Context) ([]*models.TroubleSignal, error)
}

// InventoryStore reads the subscriber and infrastructure inventories.
// These tables are owned by provisioning; the engine only fetches.
type InventoryStore interface {
	ListSubscribers(ctx context.Context) ([]*models.Subscriber, error)
	GetSubscribers(ctx context.Context, ids []int64) (map[int64]*models.Subscriber, error)
	ListOLTs(ctx context.Context) ([]*models.InfraRecord, error)
	ListODCs(ctx context.Context) ([]*models.InfraRecord, error)
	ListODPs(ctx context.Context) ([]*models.InfraRecord, error)
}

// Service is the full store contract consumed by the engine.
type Service interface {
	DeviceStore
	LinkStore
	SignalStore
	InventoryStore

	Close()
}

// DataService is the Postgres-backed Service.
type DataService struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

// New wraps an established pool as a Service.
func New(pool *pgxpool.Pool, log logger.Logger) *DataService {
	return &DataService{pool: pool, logger: log}
}

func (s *DataService) Close() {
	s.pool.Close()
}
