package registry

//go:generate mockgen -destination=mock_registry.go -package=registry github.com/ftthlab/fibermon/pkg/registry DeviceManager,LinkManager

import (
	"context"

	"github.com/ftthlab/fibermon/pkg/models"
)

// DeviceManager is the authoritative device registry. All inventory
// synchronizers feed it; it guarantees one row per real-world entity.
type DeviceManager interface {
	// UpsertDevice reconciles one inventory record. It looks the device
	// up by its (type, source key) identity, updates the mutable fields
	// in place when found and inserts otherwise. Returns the device id
	// and whether a new row was created.
	UpsertDevice(ctx context.Context, update *models.DeviceUpdate) (id string, created bool, err error)
	GetDevice(ctx context.Context, id string) (*models.Device, error)
	ListDevices(ctx context.Context, deviceType *models.DeviceType) ([]*models.Device, error)
}

// LinkManager maintains the derived parent-to-child edge table.
type LinkManager interface {
	// UpsertLink is idempotent on the (source, target) pair.
	UpsertLink(ctx context.Context, sourceID, targetID, linkType string) (id string, created bool, err error)
	LinksFrom(ctx context.Context, deviceID string) ([]*models.Link, error)
	LinksTo(ctx context.Context, deviceID string) ([]*models.Link, error)
	ListLinks(ctx context.Context) ([]*models.Link, error)
}
