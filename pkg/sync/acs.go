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

package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ftthlab/fibermon/pkg/logger"
	"github.com/ftthlab/fibermon/pkg/models"
	"github.com/ftthlab/fibermon/pkg/registry"
)

// ACSDevice is one CPE record as reported by the ACS.
type ACSDevice struct {
	ID           string
	Manufacturer string
	ProductClass string
	SerialNumber string
	IPAddress    string
	LastInform   *time.Time
}

// ACSClient fetches CPE pages from an auto-configuration server.
type ACSClient interface {
	FetchDevices(ctx context.Context, limit, skip int) ([]ACSDevice, error)
}

// ACSSynchronizer folds ACS-managed CPEs into the registry as
// subscriber devices keyed by their ACS identifier.
type ACSSynchronizer struct {
	client       ACSClient
	devices      registry.DeviceManager
	onlineWindow time.Duration
	pageSize     int
	concurrency  int
	logger       logger.Logger
	now          func() time.Time
}

// NewACSSynchronizer creates the ACS source.
func NewACSSynchronizer(
	client ACSClient,
	devices registry.DeviceManager,
	cfg *models.ACSConfig,
	concurrency int,
	log logger.Logger,
) *ACSSynchronizer {
	onlineWindow := time.Duration(cfg.OnlineWindow)
	if onlineWindow == 0 {
		onlineWindow = models.DefaultACSOnlineWin
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = models.DefaultACSPageSize
	}

	return &ACSSynchronizer{
		client:       client,
		devices:      devices,
		onlineWindow: onlineWindow,
		pageSize:     pageSize,
		concurrency:  concurrency,
		logger:       log,
		now:          time.Now,
	}
}

func (s *ACSSynchronizer) Name() string {
	return "acs"
}

// Sync pages through the ACS inventory and upserts every CPE. A fetch
// failure aborts the cycle before any write so a half-read inventory
// never lands in the registry.
func (s *ACSSynchronizer) Sync(ctx context.Context) (*Result, error) {
	var cpes []ACSDevice

	for skip := 0; ; skip += s.pageSize {
		page, err := s.client.FetchDevices(ctx, s.pageSize, skip)
		if err != nil {
			return nil, fmt.Errorf("%w at offset %d: %w", errFailedToFetchPage, skip, err)
		}

		cpes = append(cpes, page...)

		if len(page) < s.pageSize {
			break
		}
	}

	cutoff := s.now().Add(-s.onlineWindow)
	updates := make([]*models.DeviceUpdate, 0, len(cpes))
	skipped := 0

	for i := range cpes {
		cpe := cpes[i]

		if cpe.ID == "" {
			s.logger.Warn().Msg("Skipping ACS record without an identifier")

			skipped++

			continue
		}

		status := models.StatusOffline
		if cpe.LastInform != nil && cpe.LastInform.After(cutoff) {
			status = models.StatusOnline
		}

		updates = append(updates, &models.DeviceUpdate{
			DeviceType: models.TypeSubscriber,
			Name:       acsDeviceName(&cpe),
			AcsID:      &cpe.ID,
			Status:     status,
			LastSeen:   cpe.LastInform,
			Metadata: map[string]interface{}{
				"manufacturer":  cpe.Manufacturer,
				"product_class": cpe.ProductClass,
				"serial_number": cpe.SerialNumber,
				"ip_address":    cpe.IPAddress,
			},
		})
	}

	result := upsertAll(ctx, s.devices, updates, s.concurrency, s.logger)
	result.Skipped += skipped

	return &result, nil
}

func acsDeviceName(cpe *ACSDevice) string {
	parts := make([]string, 0, 3)

	for _, part := range []string{cpe.Manufacturer, cpe.ProductClass, cpe.SerialNumber} {
		if part != "" {
			parts = append(parts, part)
		}
	}

	if len(parts) == 0 {
		return cpe.ID
	}

	return strings.Join(parts, " ")
}
