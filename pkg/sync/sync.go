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

// Package sync pulls device inventory from external sources and folds
// it into the registry. Each source is a Synchronizer; a failed source
// leaves the registry untouched for that source only, other sources
// still run.
package sync

import (
	"context"

	"github.com/ftthlab/fibermon/pkg/logger"
)

//go:generate mockgen -destination=mock_sync.go -package=sync github.com/ftthlab/fibermon/pkg/sync Synchronizer,ACSClient

// Result counts the outcome of one synchronization cycle for one source.
type Result struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// Synchronizer reconciles one external inventory source with the registry.
type Synchronizer interface {
	Name() string
	Sync(ctx context.Context) (*Result, error)
}

// Service runs a fixed set of synchronizers in sequence.
type Service struct {
	synchronizers []Synchronizer
	logger        logger.Logger
}

// NewService creates a sync service over the given sources.
func NewService(log logger.Logger, synchronizers ...Synchronizer) *Service {
	return &Service{synchronizers: synchronizers, logger: log}
}

// RunAll runs every synchronizer. A source failure is logged and does
// not stop the remaining sources; per-source errors are returned so the
// caller can schedule a retry.
func (s *Service) RunAll(ctx context.Context) (map[string]*Result, map[string]error) {
	results := make(map[string]*Result, len(s.synchronizers))
	errs := make(map[string]error)

	for _, source := range s.synchronizers {
		result, err := source.Sync(ctx)
		if err != nil {
			s.logger.Error().Err(err).Str("source", source.Name()).Msg("Sync cycle failed")

			errs[source.Name()] = err

			continue
		}

		results[source.Name()] = result

		s.logger.Info().
			Str("source", source.Name()).
			Int("added", result.Added).
			Int("updated", result.Updated).
			Int("skipped", result.Skipped).
			Msg("Sync cycle complete")
	}

	return results, errs
}
