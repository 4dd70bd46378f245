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

package models

import (
	"errors"
	"time"
)

// DeviceType identifies a node's tier in the FTTH plant.
type DeviceType string

const (
	// TypeOLT is the top-level aggregation device (tier 1).
	TypeOLT DeviceType = "olt"
	// TypeODC is a mid-level distribution cabinet (tier 2).
	TypeODC DeviceType = "odc"
	// TypeODP is an edge distribution point (tier 3).
	TypeODP DeviceType = "odp"
	// TypeSubscriber is a subscriber endpoint (customer or CPE).
	TypeSubscriber DeviceType = "subscriber"
)

// IsInfrastructure reports whether the type is a non-subscriber tier.
func (t DeviceType) IsInfrastructure() bool {
	return t == TypeOLT || t == TypeODC || t == TypeODP
}

// DeviceStatus is the last-known health classification of a device.
type DeviceStatus string

const (
	StatusOnline  DeviceStatus = "online"
	StatusWarning DeviceStatus = "warning"
	StatusOffline DeviceStatus = "offline"
	StatusUnknown DeviceStatus = "unknown"
)

// Device is one monitored node in the registry.
type Device struct {
	ID         string     `json:"id"`
	DeviceType DeviceType `json:"device_type"`
	Name       string     `json:"name"`

	// Source foreign keys. Exactly one of these identifies the device for
	// synchronization within its type; the tier refs double as parent
	// pointers consumed by the topology assembler.
	AcsID        *string `json:"acs_id,omitempty"`
	SubscriberID *int64  `json:"subscriber_id,omitempty"`
	OltRef       *int64  `json:"olt_ref,omitempty"`
	OdcRef       *int64  `json:"odc_ref,omitempty"`
	OdpRef       *int64  `json:"odp_ref,omitempty"`

	Address   *string  `json:"address,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	Status            DeviceStatus `json:"status"`
	LastSeen          *time.Time   `json:"last_seen,omitempty"`
	LastCheck         *time.Time   `json:"last_check,omitempty"`
	LatencyMs         *float64     `json:"latency_ms,omitempty"`
	PacketLossPercent *float64     `json:"packet_loss_percent,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeviceUpdate is the complete field set a synchronizer supplies per record.
// Last writer wins; there is no field-level merge.
type DeviceUpdate struct {
	DeviceType DeviceType
	Name       string

	AcsID        *string
	SubscriberID *int64
	OltRef       *int64
	OdcRef       *int64
	OdpRef       *int64

	Address   *string
	Latitude  *float64
	Longitude *float64

	Status   DeviceStatus
	LastSeen *time.Time
	Metadata map[string]interface{}
}

// Identity key fields, by column name in the backing store.
const (
	IdentityAcsID        = "acs_id"
	IdentitySubscriberID = "subscriber_id"
	IdentityOltRef       = "olt_ref"
	IdentityOdcRef       = "odc_ref"
	IdentityOdpRef       = "odp_ref"
)

// ErrNoIdentity indicates an update carries no usable identity key.
var ErrNoIdentity = errors.New("device update has no identity key")

// IdentityRef names the source key that deduplicates a device within its
// type. Either Text or Num is set, depending on the key's kind.
type IdentityRef struct {
	Field string
	Text  string
	Num   int64
}

// Identity derives the identity key for the update, per device type.
// Subscriber-type devices are keyed by the ACS id when present (CPE
// inventory) and by the subscriber id otherwise (subscriber records).
func (u *DeviceUpdate) Identity() (*IdentityRef, error) {
	switch u.DeviceType {
	case TypeSubscriber:
		if u.AcsID != nil && *u.AcsID != "" {
			return &IdentityRef{Field: IdentityAcsID, Text: *u.AcsID}, nil
		}

		if u.SubscriberID != nil {
			return &IdentityRef{Field: IdentitySubscriberID, Num: *u.SubscriberID}, nil
		}
	case TypeOLT:
		if u.OltRef != nil {
			return &IdentityRef{Field: IdentityOltRef, Num: *u.OltRef}, nil
		}
	case TypeODC:
		if u.OdcRef != nil {
			return &IdentityRef{Field: IdentityOdcRef, Num: *u.OdcRef}, nil
		}
	case TypeODP:
		if u.OdpRef != nil {
			return &IdentityRef{Field: IdentityOdpRef, Num: *u.OdpRef}, nil
		}
	}

	return nil, ErrNoIdentity
}
