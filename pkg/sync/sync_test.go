package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftthlab/fibermon/pkg/db"
	"github.com/ftthlab/fibermon/pkg/logger"
	"github.com/ftthlab/fibermon/pkg/models"
	"github.com/ftthlab/fibermon/pkg/registry"
)

// fakeACSClient serves a fixed inventory in pages.
type fakeACSClient struct {
	devices []ACSDevice
	calls   int
}

func (f *fakeACSClient) FetchDevices(_ context.Context, limit, skip int) ([]ACSDevice, error) {
	f.calls++

	if skip >= len(f.devices) {
		return nil, nil
	}

	end := skip + limit
	if end > len(f.devices) {
		end = len(f.devices)
	}

	return f.devices[skip:end], nil
}

func timePtr(v time.Time) *time.Time { return &v }

func newACS(store *db.MemoryService, client ACSClient, pageSize int) *ACSSynchronizer {
	log := logger.NewTestLogger()

	return NewACSSynchronizer(client, registry.NewDeviceRegistry(store, log),
		&models.ACSConfig{PageSize: pageSize}, 4, log)
}

func TestACSSyncSkipsMalformedRecords(t *testing.T) {
	store := db.NewMemoryService()

	client := &fakeACSClient{}
	recent := time.Now().Add(-time.Minute)

	for i := 1; i <= 10; i++ {
		device := ACSDevice{
			ID:           fmt.Sprintf("cpe-%d", i),
			Manufacturer: "Acme",
			SerialNumber: fmt.Sprintf("SN%04d", i),
			LastInform:   timePtr(recent),
		}

		// Record 4 arrives without its identifier.
		if i == 4 {
			device.ID = ""
		}

		client.devices = append(client.devices, device)
	}

	result, err := newACS(store, client, 100).Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 9, result.Added)
	assert.Zero(t, result.Updated)
	assert.Equal(t, 1, result.Skipped)

	devices, err := store.ListDevices(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, devices, 9)
}

func TestACSSyncOnlineWindow(t *testing.T) {
	store := db.NewMemoryService()
	ctx := context.Background()

	client := &fakeACSClient{devices: []ACSDevice{
		{ID: "cpe-fresh", LastInform: timePtr(time.Now().Add(-2 * time.Minute))},
		{ID: "cpe-stale", LastInform: timePtr(time.Now().Add(-30 * time.Minute))},
		{ID: "cpe-silent"},
	}}

	result, err := newACS(store, client, 100).Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Added)

	devices, err := store.ListDevices(ctx, nil)
	require.NoError(t, err)
	require.Len(t, devices, 3)

	byAcsID := make(map[string]*models.Device)
	for _, device := range devices {
		require.NotNil(t, device.AcsID)
		byAcsID[*device.AcsID] = device
	}

	assert.Equal(t, models.StatusOnline, byAcsID["cpe-fresh"].Status)
	assert.Equal(t, models.StatusOffline, byAcsID["cpe-stale"].Status)
	assert.Equal(t, models.StatusOffline, byAcsID["cpe-silent"].Status)
	assert.NotNil(t, byAcsID["cpe-fresh"].LastSeen)
	assert.Nil(t, byAcsID["cpe-silent"].LastSeen)
}

func TestACSSyncPagesThroughInventory(t *testing.T) {
	store := db.NewMemoryService()

	client := &fakeACSClient{}
	for i := 1; i <= 7; i++ {
		client.devices = append(client.devices, ACSDevice{ID: fmt.Sprintf("cpe-%d", i)})
	}

	result, err := newACS(store, client, 3).Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 7, result.Added)
	// 3 + 3 + 1; the short final page ends the loop.
	assert.Equal(t, 3, client.calls)
}

func TestACSSyncIsIdempotent(t *testing.T) {
	store := db.NewMemoryService()

	client := &fakeACSClient{devices: []ACSDevice{{ID: "cpe-1"}}}
	acs := newACS(store, client, 100)

	result, err := acs.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)

	result, err = acs.Sync(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Added)
	assert.Equal(t, 1, result.Updated)
}

func float64Ptr(v float64) *float64 { return &v }

func strPtr(v string) *string { return &v }

func TestSubscriberSyncRequiresCoordinates(t *testing.T) {
	store := db.NewMemoryService()
	ctx := context.Background()

	store.AddSubscriber(&models.Subscriber{
		ID: 1, Name: "Mapped", Code: "S-001", Status: "active",
		Latitude: float64Ptr(-6.2), Longitude: float64Ptr(106.8),
		PppoeUsername: strPtr("mapped@isp"),
	})
	store.AddSubscriber(&models.Subscriber{
		ID: 2, Name: "Unmapped", Code: "S-002", Status: "active",
	})
	store.AddSubscriber(&models.Subscriber{
		ID: 3, Name: "Cut off", Code: "S-003", Status: "suspended",
		Latitude: float64Ptr(-6.3), Longitude: float64Ptr(106.9),
	})

	log := logger.NewTestLogger()
	source := NewSubscriberSynchronizer(store, registry.NewDeviceRegistry(store, log), 4, log)

	result, err := source.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Added)
	assert.Equal(t, 1, result.Skipped)

	devices, err := store.ListDevices(ctx, nil)
	require.NoError(t, err)
	require.Len(t, devices, 2)

	bySubID := make(map[int64]*models.Device)
	for _, device := range devices {
		require.NotNil(t, device.SubscriberID)
		bySubID[*device.SubscriberID] = device
	}

	assert.Equal(t, models.StatusOnline, bySubID[1].Status)
	assert.Equal(t, "Mapped (S-001)", bySubID[1].Name)
	assert.Equal(t, "mapped@isp", bySubID[1].Metadata["pppoe_username"])
	assert.Equal(t, models.StatusOffline, bySubID[3].Status)
}

func TestSubscriberSyncCarriesStaticIP(t *testing.T) {
	store := db.NewMemoryService()
	ctx := context.Background()

	store.AddSubscriber(&models.Subscriber{
		ID: 1, Name: "Static", Code: "S-010", Status: "active",
		Latitude: float64Ptr(-6.2), Longitude: float64Ptr(106.8),
		StaticIP: strPtr("203.0.113.7"),
	})
	store.AddSubscriber(&models.Subscriber{
		ID: 2, Name: "Dynamic", Code: "S-011", Status: "active",
		Latitude: float64Ptr(-6.3), Longitude: float64Ptr(106.9),
	})

	log := logger.NewTestLogger()
	source := NewSubscriberSynchronizer(store, registry.NewDeviceRegistry(store, log), 4, log)

	result, err := source.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)

	devices, err := store.ListDevices(ctx, nil)
	require.NoError(t, err)
	require.Len(t, devices, 2)

	bySubID := make(map[int64]*models.Device)
	for _, device := range devices {
		require.NotNil(t, device.SubscriberID)
		bySubID[*device.SubscriberID] = device
	}

	// The static assignment is what the prober will ping.
	assert.Equal(t, "203.0.113.7", bySubID[1].Metadata["ip_address"])
	assert.NotContains(t, bySubID[2].Metadata, "ip_address")
}

func TestInfraSyncCarriesParentRefs(t *testing.T) {
	store := db.NewMemoryService()
	ctx := context.Background()

	store.AddOLT(&models.InfraRecord{ID: 1, Name: "OLT Central"})

	parent := int64(1)
	store.AddODC(&models.InfraRecord{ID: 10, Name: "ODC-10", ParentRef: &parent})

	odcParent := int64(10)
	store.AddODP(&models.InfraRecord{ID: 20, Name: "ODP-20", ParentRef: &odcParent})

	log := logger.NewTestLogger()
	source := NewInfraSynchronizer(store, registry.NewDeviceRegistry(store, log), 4, log)

	result, err := source.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Added)

	devices, err := store.ListDevices(ctx, nil)
	require.NoError(t, err)
	require.Len(t, devices, 3)

	byType := make(map[models.DeviceType]*models.Device)
	for _, device := range devices {
		byType[device.DeviceType] = device
	}

	require.NotNil(t, byType[models.TypeODC].OltRef)
	assert.Equal(t, int64(1), *byType[models.TypeODC].OltRef)
	require.NotNil(t, byType[models.TypeODP].OdcRef)
	assert.Equal(t, int64(10), *byType[models.TypeODP].OdcRef)

	// Infrastructure sources carry no operational state.
	assert.Equal(t, models.StatusUnknown, byType[models.TypeOLT].Status)
}

func TestRunAllIsolatesSourceFailure(t *testing.T) {
	store := db.NewMemoryService()
	log := logger.NewTestLogger()

	failing := &failingSynchronizer{}
	working := NewInfraSynchronizer(store, registry.NewDeviceRegistry(store, log), 4, log)

	store.AddOLT(&models.InfraRecord{ID: 1, Name: "OLT Central"})

	results, errs := NewService(log, failing, working).RunAll(context.Background())

	assert.Len(t, errs, 1)
	require.Contains(t, results, "infrastructure")
	assert.Equal(t, 1, results["infrastructure"].Added)
}

type failingSynchronizer struct{}

func (*failingSynchronizer) Name() string { return "broken" }

func (*failingSynchronizer) Sync(context.Context) (*Result, error) {
	return nil, errFailedToListSource
}
