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
	stdsync "sync"
	"sync/atomic"

	"github.com/ftthlab/fibermon/pkg/logger"
	"github.com/ftthlab/fibermon/pkg/models"
	"github.com/ftthlab/fibermon/pkg/registry"
)

// upsertAll pushes updates into the registry with bounded concurrency.
// An update that fails to upsert is counted as skipped, not fatal; the
// source record may be malformed while the rest of the batch is fine.
func upsertAll(
	ctx context.Context,
	devices registry.DeviceManager,
	updates []*models.DeviceUpdate,
	concurrency int,
	log logger.Logger,
) Result {
	if concurrency <= 0 {
		concurrency = models.DefaultSyncWorkers
	}

	var (
		added, updated, skipped atomic.Int64
		wg                      stdsync.WaitGroup
	)

	sem := make(chan struct{}, concurrency)

	for _, update := range updates {
		wg.Add(1)
		sem <- struct{}{}

		go func(update *models.DeviceUpdate) {
			defer wg.Done()
			defer func() { <-sem }()

			_, created, err := devices.UpsertDevice(ctx, update)
			if err != nil {
				log.Warn().Err(err).
					Str("device_type", string(update.DeviceType)).
					Str("name", update.Name).
					Msg("Skipping device that failed to upsert")

				skipped.Add(1)

				return
			}

			if created {
				added.Add(1)
			} else {
				updated.Add(1)
			}
		}(update)
	}

	wg.Wait()

	return Result{
		Added:   int(added.Load()),
		Updated: int(updated.Load()),
		Skipped: int(skipped.Load()),
	}
}
