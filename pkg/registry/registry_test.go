package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftthlab/fibermon/pkg/db"
	"github.com/ftthlab/fibermon/pkg/logger"
	"github.com/ftthlab/fibermon/pkg/models"
)

func int64Ptr(v int64) *int64 { return &v }

func strPtr(v string) *string { return &v }

func TestUpsertDeviceIdempotent(t *testing.T) {
	store := db.NewMemoryService()
	devices := NewDeviceRegistry(store, logger.NewTestLogger())
	ctx := context.Background()

	update := &models.DeviceUpdate{
		DeviceType: models.TypeOLT,
		Name:       "OLT Central",
		OltRef:     int64Ptr(1),
	}

	id1, created, err := devices.UpsertDevice(ctx, update)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, id1)

	id2, created, err := devices.UpsertDevice(ctx, update)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)

	all, err := devices.ListDevices(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsertDeviceLastWriterWins(t *testing.T) {
	store := db.NewMemoryService()
	devices := NewDeviceRegistry(store, logger.NewTestLogger())
	ctx := context.Background()

	id, _, err := devices.UpsertDevice(ctx, &models.DeviceUpdate{
		DeviceType: models.TypeODC,
		Name:       "ODC-01",
		OdcRef:     int64Ptr(7),
	})
	require.NoError(t, err)

	_, created, err := devices.UpsertDevice(ctx, &models.DeviceUpdate{
		DeviceType: models.TypeODC,
		Name:       "ODC-01 Renamed",
		OdcRef:     int64Ptr(7),
	})
	require.NoError(t, err)
	assert.False(t, created)

	device, err := devices.GetDevice(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ODC-01 Renamed", device.Name)
}

func TestUpsertDeviceEmptyStatusPreservesExisting(t *testing.T) {
	store := db.NewMemoryService()
	devices := NewDeviceRegistry(store, logger.NewTestLogger())
	ctx := context.Background()

	id, _, err := devices.UpsertDevice(ctx, &models.DeviceUpdate{
		DeviceType: models.TypeOLT,
		Name:       "OLT Central",
		OltRef:     int64Ptr(1),
	})
	require.NoError(t, err)

	latency, loss := 12.5, 0.0
	require.NoError(t, store.RecordProbeResult(ctx, id, models.StatusOnline, &latency, &loss, true))

	// A refresh from an inventory source with no operational state must
	// not clobber what the prober recorded.
	_, _, err = devices.UpsertDevice(ctx, &models.DeviceUpdate{
		DeviceType: models.TypeOLT,
		Name:       "OLT Central",
		OltRef:     int64Ptr(1),
	})
	require.NoError(t, err)

	device, err := devices.GetDevice(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, device.Status)
}

func TestUpsertDeviceNoIdentity(t *testing.T) {
	store := db.NewMemoryService()
	devices := NewDeviceRegistry(store, logger.NewTestLogger())

	_, _, err := devices.UpsertDevice(context.Background(), &models.DeviceUpdate{
		DeviceType: models.TypeSubscriber,
		Name:       "no key",
	})
	require.ErrorIs(t, err, models.ErrNoIdentity)
}

func TestSubscriberIdentityPrefersAcsID(t *testing.T) {
	store := db.NewMemoryService()
	devices := NewDeviceRegistry(store, logger.NewTestLogger())
	ctx := context.Background()

	id1, _, err := devices.UpsertDevice(ctx, &models.DeviceUpdate{
		DeviceType:   models.TypeSubscriber,
		Name:         "CPE",
		AcsID:        strPtr("ABC-123"),
		SubscriberID: int64Ptr(42),
	})
	require.NoError(t, err)

	id2, created, err := devices.UpsertDevice(ctx, &models.DeviceUpdate{
		DeviceType: models.TypeSubscriber,
		Name:       "CPE updated",
		AcsID:      strPtr("ABC-123"),
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)
}

func TestUpsertLinkIdempotent(t *testing.T) {
	store := db.NewMemoryService()
	links := NewLinkRegistry(store, logger.NewTestLogger())
	ctx := context.Background()

	id1, created, err := links.UpsertLink(ctx, "a", "b", "")
	require.NoError(t, err)
	assert.True(t, created)

	id2, created, err := links.UpsertLink(ctx, "a", "b", models.LinkTypeFiber)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)

	// Reverse direction is a different edge.
	_, created, err = links.UpsertLink(ctx, "b", "a", models.LinkTypeFiber)
	require.NoError(t, err)
	assert.True(t, created)

	from, err := links.LinksFrom(ctx, "a")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, models.LinkUp, from[0].Status)
	assert.Equal(t, models.LinkTypeFiber, from[0].LinkType)
}
