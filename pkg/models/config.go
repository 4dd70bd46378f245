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
	"encoding/json"
	"fmt"
	"time"

	"github.com/ftthlab/fibermon/pkg/logger"
)

var (
	errInvalidDuration         = fmt.Errorf("invalid duration")
	errDatabaseHostRequired    = fmt.Errorf("database host is required")
	errDatabaseNameRequired    = fmt.Errorf("database name is required")
	errACSEndpointRequired     = fmt.Errorf("acs endpoint is required")
	errGatewayEndpointRequired = fmt.Errorf("gateway endpoint is required")
)

// Duration wraps time.Duration so config files can use "5m"/"1h" strings.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		// parse numeric as nanoseconds
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// DatabaseConfig points at the relational store backing the registries.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	Database string `json:"database"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	SSLMode  string `json:"ssl_mode,omitempty"`
	MaxConns int32  `json:"max_conns,omitempty"`
}

// ACSConfig points at the remote device-management (CPE inventory) API.
type ACSConfig struct {
	Endpoint string `json:"endpoint"`
	Token    string `json:"token,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
	// OnlineWindow bounds how stale a CPE's last inform may be while the
	// device is still considered online.
	OnlineWindow Duration `json:"online_window,omitempty"`
	Interval     Duration `json:"interval,omitempty"`
}

// GatewayConfig points at the messaging gateway used for outage notices.
type GatewayConfig struct {
	Endpoint string   `json:"endpoint"`
	Token    string   `json:"token,omitempty"`
	Timeout  Duration `json:"timeout,omitempty"`
}

// ProbeConfig controls the reachability check cycle.
type ProbeConfig struct {
	Interval    Duration `json:"interval,omitempty"`
	Timeout     Duration `json:"timeout,omitempty"`
	Count       int      `json:"count,omitempty"`
	Concurrency int      `json:"concurrency,omitempty"`
}

// SyncConfig controls the inventory synchronization cycle.
type SyncConfig struct {
	Interval    Duration `json:"interval,omitempty"`
	Concurrency int      `json:"concurrency,omitempty"`
}

// TroubleConfig controls the trouble aggregator's detection windows.
type TroubleConfig struct {
	// OfflineWindow bounds how far back connection-state records are
	// considered when deriving the offline signal.
	OfflineWindow Duration `json:"offline_window,omitempty"`
	// GraceWindow suppresses flapping: a disconnect is ignored when a
	// reconnect lands within this window after it.
	GraceWindow Duration `json:"grace_window,omitempty"`
	Limit       int      `json:"limit,omitempty"`
	CacheTTL    Duration `json:"cache_ttl,omitempty"`
}

// TopologyConfig controls the cached topology snapshot.
type TopologyConfig struct {
	CacheTTL Duration `json:"cache_ttl,omitempty"`
}

// CoreConfig is the top-level engine configuration.
type CoreConfig struct {
	Database DatabaseConfig `json:"database"`
	ACS      ACSConfig      `json:"acs"`
	Gateway  GatewayConfig  `json:"gateway"`
	Probe    ProbeConfig    `json:"probe,omitempty"`
	Sync     SyncConfig     `json:"sync,omitempty"`
	Trouble  TroubleConfig  `json:"trouble,omitempty"`
	Topology TopologyConfig `json:"topology,omitempty"`
	Logging  *logger.Config `json:"logging,omitempty"`
}

// Default cadences and windows, mirrored by Validate when unset.
const (
	DefaultACSPageSize    = 1000
	DefaultACSOnlineWin   = 10 * time.Minute
	DefaultACSInterval    = 15 * time.Minute
	DefaultGatewayTimeout = 10 * time.Second
	DefaultProbeInterval  = 5 * time.Minute
	DefaultProbeTimeout   = 5 * time.Second
	DefaultProbeCount     = 4
	DefaultProbeWorkers   = 16
	DefaultSyncInterval   = time.Hour
	DefaultSyncWorkers    = 8
	DefaultOfflineWindow  = time.Hour
	DefaultGraceWindow    = 5 * time.Minute
	DefaultTroubleLimit   = 100
	DefaultTroubleTTL     = 30 * time.Second
	DefaultTopologyTTL    = time.Minute
)

// Validate checks required fields and fills defaults for optional ones.
func (c *CoreConfig) Validate() error {
	if c.Database.Host == "" {
		return errDatabaseHostRequired
	}

	if c.Database.Database == "" {
		return errDatabaseNameRequired
	}

	if c.ACS.Endpoint == "" {
		return errACSEndpointRequired
	}

	if c.Gateway.Endpoint == "" {
		return errGatewayEndpointRequired
	}

	setDuration(&c.ACS.OnlineWindow, DefaultACSOnlineWin)
	setDuration(&c.ACS.Interval, DefaultACSInterval)
	setDuration(&c.Gateway.Timeout, DefaultGatewayTimeout)
	setDuration(&c.Probe.Interval, DefaultProbeInterval)
	setDuration(&c.Probe.Timeout, DefaultProbeTimeout)
	setDuration(&c.Sync.Interval, DefaultSyncInterval)
	setDuration(&c.Trouble.OfflineWindow, DefaultOfflineWindow)
	setDuration(&c.Trouble.GraceWindow, DefaultGraceWindow)
	setDuration(&c.Trouble.CacheTTL, DefaultTroubleTTL)
	setDuration(&c.Topology.CacheTTL, DefaultTopologyTTL)

	if c.ACS.PageSize <= 0 {
		c.ACS.PageSize = DefaultACSPageSize
	}

	if c.Probe.Count <= 0 {
		c.Probe.Count = DefaultProbeCount
	}

	if c.Probe.Concurrency <= 0 {
		c.Probe.Concurrency = DefaultProbeWorkers
	}

	if c.Sync.Concurrency <= 0 {
		c.Sync.Concurrency = DefaultSyncWorkers
	}

	if c.Trouble.Limit <= 0 {
		c.Trouble.Limit = DefaultTroubleLimit
	}

	return nil
}

func setDuration(d *Duration, def time.Duration) {
	if *d == 0 {
		*d = Duration(def)
	}
}
