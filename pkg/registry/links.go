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

package registry

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ftthlab/fibermon/pkg/db"
	"github.com/ftthlab/fibermon/pkg/logger"
	"github.com/ftthlab/fibermon/pkg/models"
)

// LinkRegistry is the concrete LinkManager backed by the store.
type LinkRegistry struct {
	db     db.Service
	logger logger.Logger
}

// NewLinkRegistry creates the link registry.
func NewLinkRegistry(database db.Service, log logger.Logger) *LinkRegistry {
	return &LinkRegistry{db: database, logger: log}
}

func (r *LinkRegistry) UpsertLink(ctx context.Context, sourceID, targetID, linkType string) (string, bool, error) {
	id, err := r.db.FindLinkID(ctx, sourceID, targetID)
	if err == nil {
		return id, false, nil
	}

	if !errors.Is(err, db.ErrLinkNotFound) {
		return "", false, err
	}

	if linkType == "" {
		linkType = models.LinkTypeFiber
	}

	link := &models.Link{
		ID:             uuid.NewString(),
		SourceDeviceID: sourceID,
		TargetDeviceID: targetID,
		LinkType:       linkType,
		Status:         models.LinkUp,
	}

	if err := r.db.InsertLink(ctx, link); err != nil {
		return "", false, err
	}

	r.logger.Debug().
		Str("source", sourceID).
		Str("target", targetID).
		Str("link_type", linkType).
		Msg("Created link")

	return link.ID, true, nil
}

func (r *LinkRegistry) LinksFrom(ctx context.Context, deviceID string) ([]*models.Link, error) {
	return r.db.ListLinksFrom(ctx, deviceID)
}

func (r *LinkRegistry) LinksTo(ctx context.Context, deviceID string) ([]*models.Link, error) {
	return r.db.ListLinksTo(ctx, deviceID)
}

func (r *LinkRegistry) ListLinks(ctx context.Context) ([]*models.Link, error) {
	return r.db.ListLinks(ctx)
}
