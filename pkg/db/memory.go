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
	"sort"
	"sync"
	"time"

	"github.com/ftthlab/fibermon/pkg/models"
)

// MemoryService is an in-memory Service used by tests and local
// development. It mirrors the Postgres implementation's contracts,
// including identity lookup and signal-source degradation.
type MemoryService struct {
	mu sync.RWMutex

	devices  map[string]*models.Device
	identity map[string]string
	links    map[string]*models.Link
	linkKeys map[string]string

	subscribers map[int64]*models.Subscriber
	olts        []*models.InfraRecord
	odcs        []*models.InfraRecord
	odps        []*models.InfraRecord

	maintenance []*models.TroubleSignal
	offline     []*models.TroubleSignal
	tickets     []*models.TroubleSignal
	sla         []*models.TroubleSignal

	missing map[models.TroubleType]bool

	now func() time.Time
}

// NewMemoryService creates an empty in-memory store.
func NewMemoryService() *MemoryService {
	return &MemoryService{
		devices:     make(map[string]*models.Device),
		identity:    make(map[string]string),
		links:       make(map[string]*models.Link),
		linkKeys:    make(map[string]string),
		subscribers: make(map[int64]*models.Subscriber),
		missing:     make(map[models.TroubleType]bool),
		now:         time.Now,
	}
}

func (*MemoryService) Close() {}

func identityKey(deviceType models.DeviceType, ident *models.IdentityRef) string {
	if ident.Field == models.IdentityAcsID {
		return fmt.Sprintf("%s|%s|%s", deviceType, ident.Field, ident.Text)
	}

	return fmt.Sprintf("%s|%s|%d", deviceType, ident.Field, ident.Num)
}

func (m *MemoryService) FindDeviceID(_ context.Context, deviceType models.DeviceType, ident *models.IdentityRef) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.identity[identityKey(deviceType, ident)]
	if !ok {
		return "", ErrDeviceNotFound
	}

	return id, nil
}

func (m *MemoryService) InsertDevice(_ context.Context, device *models.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *device
	stored.CreatedAt = m.now()
	stored.UpdatedAt = stored.CreatedAt
	m.devices[device.ID] = &stored
	m.indexIdentity(&stored)

	return nil
}

func (m *MemoryService) UpdateDevice(_ context.Context, device *models.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.devices[device.ID]
	if !ok {
		return ErrDeviceNotFound
	}

	updated := *device
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = m.now()
	updated.LastCheck = existing.LastCheck
	updated.LatencyMs = existing.LatencyMs
	updated.PacketLossPercent = existing.PacketLossPercent

	if updated.LastSeen == nil {
		updated.LastSeen = existing.LastSeen
	}

	if updated.Status == "" {
		updated.Status = existing.Status
	}

	m.devices[device.ID] = &updated
	m.indexIdentity(&updated)

	return nil
}

func (m *MemoryService) indexIdentity(device *models.Device) {
	update := models.DeviceUpdate{
		DeviceType:   device.DeviceType,
		AcsID:        device.AcsID,
		SubscriberID: device.SubscriberID,
		OltRef:       device.OltRef,
		OdcRef:       device.OdcRef,
		OdpRef:       device.OdpRef,
	}

	if ident, err := update.Identity(); err == nil {
		m.identity[identityKey(device.DeviceType, ident)] = device.ID
	}
}

func (m *MemoryService) GetDevice(_ context.Context, id string) (*models.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	device, ok := m.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}

	copied := *device

	return &copied, nil
}

func (m *MemoryService) ListDevices(_ context.Context, filter *DeviceFilter) ([]*models.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var devices []*models.Device

	for _, device := range m.devices {
		if filter != nil && filter.DeviceType != nil && device.DeviceType != *filter.DeviceType {
			continue
		}

		copied := *device
		devices = append(devices, &copied)
	}

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].DeviceType != devices[j].DeviceType {
			return devices[i].DeviceType < devices[j].DeviceType
		}

		return devices[i].Name < devices[j].Name
	})

	return devices, nil
}

func (m *MemoryService) RecordProbeResult(
	_ context.Context, id string, status models.DeviceStatus, latencyMs, packetLoss *float64, seen bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	device, ok := m.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}

	now := m.now()
	device.Status = status
	device.LatencyMs = latencyMs
	device.PacketLossPercent = packetLoss
	device.LastCheck = &now
	device.UpdatedAt = now

	if seen {
		device.LastSeen = &now
	}

	return nil
}

func (m *MemoryService) TouchDeviceCheck(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	device, ok := m.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}

	now := m.now()
	device.LastCheck = &now
	device.UpdatedAt = now

	return nil
}

func (m *MemoryService) DeviceStatusCounts(_ context.Context) (*models.TopologyStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats models.TopologyStats

	for _, device := range m.devices {
		stats.TotalDevices++

		switch device.Status {
		case models.StatusOnline:
			stats.OnlineDevices++
		case models.StatusOffline:
			stats.OfflineDevices++
		case models.StatusWarning:
			stats.WarningDevices++
		case models.StatusUnknown:
		}
	}

	return &stats, nil
}

func linkKey(sourceID, targetID string) string {
	return sourceID + "|" + targetID
}

func (m *MemoryService) FindLinkID(_ context.Context, sourceID, targetID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.linkKeys[linkKey(sourceID, targetID)]
	if !ok {
		return "", ErrLinkNotFound
	}

	return id, nil
}

func (m *MemoryService) InsertLink(_ context.Context, link *models.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *link
	stored.CreatedAt = m.now()
	m.links[link.ID] = &stored
	m.linkKeys[linkKey(link.SourceDeviceID, link.TargetDeviceID)] = link.ID

	return nil
}

func (m *MemoryService) ListLinks(_ context.Context) ([]*models.Link, error) {
	return m.filterLinks(func(*models.Link) bool { return true }), nil
}

func (m *MemoryService) ListLinksFrom(_ context.Context, deviceID string) ([]*models.Link, error) {
	return m.filterLinks(func(l *models.Link) bool { return l.SourceDeviceID == deviceID }), nil
}

func (m *MemoryService) ListLinksTo(_ context.Context, deviceID string) ([]*models.Link, error) {
	return m.filterLinks(func(l *models.Link) bool { return l.TargetDeviceID == deviceID }), nil
}

func (m *MemoryService) filterLinks(keep func(*models.Link) bool) []*models.Link {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var links []*models.Link

	for _, link := range m.links {
		if keep(link) {
			copied := *link
			links = append(links, &copied)
		}
	}

	sort.Slice(links, func(i, j int) bool { return links[i].ID < links[j].ID })

	return links
}

// Seeding helpers for tests and local development.

func (m *MemoryService) AddSubscriber(sub *models.Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *sub
	m.subscribers[sub.ID] = &copied
}

func (m *MemoryService) AddOLT(rec *models.InfraRecord) { m.addInfra(&m.olts, rec) }
func (m *MemoryService) AddODC(rec *models.InfraRecord) { m.addInfra(&m.odcs, rec) }
func (m *MemoryService) AddODP(rec *models.InfraRecord) { m.addInfra(&m.odps, rec) }

func (m *MemoryService) addInfra(list *[]*models.InfraRecord, rec *models.InfraRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *rec
	*list = append(*list, &copied)
}

func (m *MemoryService) AddSignal(sig *models.TroubleSignal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *sig

	switch sig.TroubleType {
	case models.TroubleMaintenance:
		m.maintenance = append(m.maintenance, &copied)
	case models.TroubleOffline:
		m.offline = append(m.offline, &copied)
	case models.TroubleTicket:
		m.tickets = append(m.tickets, &copied)
	case models.TroubleSLAIncident:
		m.sla = append(m.sla, &copied)
	}
}

// MarkSourceMissing makes the given detector behave as if its backing
// table were absent.
func (m *MemoryService) MarkSourceMissing(troubleType models.TroubleType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.missing[troubleType] = true
}

// signalSet selects the backing slice under the lock so concurrent
// AddSignal calls cannot race a fetch.
func (m *MemoryService) signalSet(troubleType models.TroubleType) ([]*models.TroubleSignal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.missing[troubleType] {
		return nil, fmt.Errorf("%w: %s", ErrSignalSourceMissing, troubleType)
	}

	var signals []*models.TroubleSignal

	switch troubleType {
	case models.TroubleMaintenance:
		signals = m.maintenance
	case models.TroubleOffline:
		signals = m.offline
	case models.TroubleTicket:
		signals = m.tickets
	case models.TroubleSLAIncident:
		signals = m.sla
	}

	copied := make([]*models.TroubleSignal, 0, len(signals))

	for _, sig := range signals {
		c := *sig
		copied = append(copied, &c)
	}

	return copied, nil
}

func (m *MemoryService) MaintenanceSignals(context.Context) ([]*models.TroubleSignal, error) {
	return m.signalSet(models.TroubleMaintenance)
}

func (m *MemoryService) OfflineSignals(_ context.Context, window, _ time.Duration) ([]*models.TroubleSignal, error) {
	signals, err := m.signalSet(models.TroubleOffline)
	if err != nil {
		return nil, err
	}

	cutoff := m.now().Add(-window)

	var recent []*models.TroubleSignal

	for _, sig := range signals {
		if !sig.Since.Before(cutoff) {
			recent = append(recent, sig)
		}
	}

	return recent, nil
}

func (m *MemoryService) TicketSignals(context.Context) ([]*models.TroubleSignal, error) {
	return m.signalSet(models.TroubleTicket)
}

func (m *MemoryService) SLASignals(context.Context) ([]*models.TroubleSignal, error) {
	return m.signalSet(models.TroubleSLAIncident)
}

func (m *MemoryService) ListSubscribers(context.Context) ([]*models.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subscribers := make([]*models.Subscriber, 0, len(m.subscribers))

	for _, sub := range m.subscribers {
		copied := *sub
		subscribers = append(subscribers, &copied)
	}

	sort.Slice(subscribers, func(i, j int) bool { return subscribers[i].ID < subscribers[j].ID })

	return subscribers, nil
}

func (m *MemoryService) GetSubscribers(_ context.Context, ids []int64) (map[int64]*models.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subscribers := make(map[int64]*models.Subscriber, len(ids))

	for _, id := range ids {
		if sub, ok := m.subscribers[id]; ok {
			copied := *sub
			subscribers[id] = &copied
		}
	}

	return subscribers, nil
}

func (m *MemoryService) ListOLTs(context.Context) ([]*models.InfraRecord, error) {
	return m.copyInfra(func() []*models.InfraRecord { return m.olts }), nil
}

func (m *MemoryService) ListODCs(context.Context) ([]*models.InfraRecord, error) {
	return m.copyInfra(func() []*models.InfraRecord { return m.odcs }), nil
}

func (m *MemoryService) ListODPs(context.Context) ([]*models.InfraRecord, error) {
	return m.copyInfra(func() []*models.InfraRecord { return m.odps }), nil
}

// copyInfra resolves the slice inside the lock, same as signalSet.
func (m *MemoryService) copyInfra(pick func() []*models.InfraRecord) []*models.InfraRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := pick()

	records := make([]*models.InfraRecord, 0, len(list))

	for _, rec := range list {
		copied := *rec
		records = append(records, &copied)
	}

	return records
}
