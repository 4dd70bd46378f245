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

// Package cascade notifies the subscribers downstream of a failed
// infrastructure device. The walk follows containment links, so one OLT
// failure fans out through its cabinets and distribution points to every
// subscriber leaf underneath.
package cascade

import (
	"context"
	"fmt"

	"github.com/ftthlab/fibermon/pkg/db"
	"github.com/ftthlab/fibermon/pkg/logger"
	"github.com/ftthlab/fibermon/pkg/models"
	"github.com/ftthlab/fibermon/pkg/notify"
	"github.com/ftthlab/fibermon/pkg/registry"
)

// Report accounts for one cascade run.
type Report struct {
	DeviceID   string            `json:"device_id"`
	DeviceName string            `json:"device_name"`
	DeviceType models.DeviceType `json:"device_type"`
	Affected   int               `json:"affected"`
	Sent       int               `json:"sent"`
	Failed     int               `json:"failed"`
	NoContact  int               `json:"no_contact"`
}

// Notifier walks the topology below a failed device and messages the
// affected subscribers.
type Notifier struct {
	devices   registry.DeviceManager
	links     registry.LinkManager
	db        db.Service
	messenger notify.Messenger
	logger    logger.Logger
}

// NewNotifier creates a cascade notifier.
func NewNotifier(
	devices registry.DeviceManager,
	links registry.LinkManager,
	database db.Service,
	messenger notify.Messenger,
	log logger.Logger,
) *Notifier {
	return &Notifier{
		devices:   devices,
		links:     links,
		db:        database,
		messenger: messenger,
		logger:    log,
	}
}

// OnDeviceDown handles a device's transition into offline. Only OLT and
// ODC failures cascade; anything smaller affects too few subscribers to
// broadcast about, and the report is nil for those. Individual delivery
// failures are counted, never fatal.
func (n *Notifier) OnDeviceDown(ctx context.Context, deviceID string) (*Report, error) {
	device, err := n.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	if device.DeviceType != models.TypeOLT && device.DeviceType != models.TypeODC {
		return nil, nil
	}

	subscriberIDs, affected, err := n.collectDownstream(ctx, device.ID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		DeviceID:   device.ID,
		DeviceName: device.Name,
		DeviceType: device.DeviceType,
		Affected:   affected,
	}

	if len(subscriberIDs) == 0 {
		n.logger.Info().
			Str("device_id", device.ID).
			Str("name", device.Name).
			Msg("Device down with no downstream subscribers")

		return report, nil
	}

	subscribers, err := n.db.GetSubscribers(ctx, subscriberIDs)
	if err != nil {
		return nil, err
	}

	message := outageMessage(device)

	for _, id := range subscriberIDs {
		sub, ok := subscribers[id]
		if !ok || sub.Phone == nil || *sub.Phone == "" {
			report.NoContact++
			continue
		}

		if err := n.messenger.Send(ctx, *sub.Phone, message); err != nil {
			n.logger.Warn().Err(err).
				Int64("subscriber_id", id).
				Msg("Failed to deliver outage notification")

			report.Failed++

			continue
		}

		report.Sent++
	}

	n.logger.Info().
		Str("device_id", device.ID).
		Str("device_type", string(device.DeviceType)).
		Str("name", device.Name).
		Int("affected", report.Affected).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Int("no_contact", report.NoContact).
		Msg("Outage notifications dispatched")

	return report, nil
}

// collectDownstream walks containment links breadth-first from root and
// returns the subscriber ids of every reachable subscriber leaf, plus
// the total count of affected subscriber devices. The visited set makes
// the walk safe against accidental cycles in link data.
func (n *Notifier) collectDownstream(ctx context.Context, root string) ([]int64, int, error) {
	visited := map[string]bool{root: true}
	queue := []string{root}

	var (
		ids      []int64
		seen     = make(map[int64]bool)
		affected int
	)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		links, err := n.links.LinksFrom(ctx, current)
		if err != nil {
			return nil, 0, err
		}

		for _, link := range links {
			if visited[link.TargetDeviceID] {
				continue
			}

			visited[link.TargetDeviceID] = true

			target, err := n.devices.GetDevice(ctx, link.TargetDeviceID)
			if err != nil {
				return nil, 0, fmt.Errorf("failed to resolve downstream device %s: %w", link.TargetDeviceID, err)
			}

			if target.DeviceType != models.TypeSubscriber {
				queue = append(queue, target.ID)
				continue
			}

			affected++

			if target.SubscriberID != nil && !seen[*target.SubscriberID] {
				seen[*target.SubscriberID] = true

				ids = append(ids, *target.SubscriberID)
			}
		}
	}

	return ids, affected, nil
}

func outageMessage(device *models.Device) string {
	return fmt.Sprintf(
		"Service disruption notice: our %s %s is currently experiencing an outage. "+
			"Your connection may be affected while our technicians work to restore service. "+
			"We apologize for the inconvenience.",
		deviceTypeLabel(device.DeviceType), device.Name)
}

func deviceTypeLabel(t models.DeviceType) string {
	switch t {
	case models.TypeOLT:
		return "central node"
	case models.TypeODC:
		return "distribution cabinet"
	case models.TypeODP:
		return "distribution point"
	default:
		return "network device"
	}
}
