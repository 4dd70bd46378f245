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

import "time"

// TroubleType discriminates which detector produced a signal.
type TroubleType string

const (
	TroubleMaintenance TroubleType = "maintenance"
	TroubleOffline     TroubleType = "offline"
	TroubleTicket      TroubleType = "ticket"
	TroubleSLAIncident TroubleType = "sla_incident"
)

// TroubleSignal is one detector's assertion that a subscriber has a
// problem. Signals are computed fresh on every query and never persisted;
// multiple signals for the same subscriber are merged at read time.
type TroubleSignal struct {
	SubscriberID      int64       `json:"subscriber_id"`
	IssueType         string      `json:"issue_type"`
	Since             time.Time   `json:"since"`
	TroubleType       TroubleType `json:"trouble_type"`
	MaintenanceStatus *string     `json:"maintenance_status,omitempty"`
}

// Subscriber is the identifying/contact slice of a subscriber record the
// engine consumes. The full record belongs to the provisioning store.
type Subscriber struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Code           string   `json:"code"`
	Status         string   `json:"status"`
	ConnectionType string   `json:"connection_type"`
	PppoeUsername  *string  `json:"pppoe_username,omitempty"`
	SerialNumber   *string  `json:"serial_number,omitempty"`
	StaticIP       *string  `json:"static_ip,omitempty"`
	OdcRef         *int64   `json:"odc_ref,omitempty"`
	OdpRef         *int64   `json:"odp_ref,omitempty"`
	Address        *string  `json:"address,omitempty"`
	Phone          *string  `json:"phone,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	IsIsolated     bool     `json:"is_isolated"`
}

// TroubleRecord is the merged, de-duplicated view of a troubled
// subscriber: the single highest-priority issue label plus the most
// recent detector timestamp.
type TroubleRecord struct {
	SubscriberID      int64       `json:"subscriber_id"`
	Name              string      `json:"name"`
	Code              string      `json:"code"`
	Status            string      `json:"status"`
	ConnectionType    string      `json:"connection_type"`
	PppoeUsername     *string     `json:"pppoe_username,omitempty"`
	OdcRef            *int64      `json:"odc_ref,omitempty"`
	OdpRef            *int64      `json:"odp_ref,omitempty"`
	Address           *string     `json:"address,omitempty"`
	Phone             *string     `json:"phone,omitempty"`
	MaintenanceStatus *string     `json:"maintenance_status,omitempty"`
	IssueType         string      `json:"issue_type"`
	TroubleSince      time.Time   `json:"trouble_since"`
	TroubleType       TroubleType `json:"trouble_type"`
}

// InfraRecord is one row of the infrastructure inventory (an OLT, ODC or
// ODP), as fetched from the inventory source. ParentRef is the next tier
// up: odc rows reference an olt, odp rows reference an odc.
type InfraRecord struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	ParentRef *int64   `json:"parent_ref,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Location  *string  `json:"location,omitempty"`
}
