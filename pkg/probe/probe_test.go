package probe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftthlab/fibermon/pkg/db"
	"github.com/ftthlab/fibermon/pkg/logger"
	"github.com/ftthlab/fibermon/pkg/models"
)

var errSocket = errors.New("socket unavailable")

func strPtr(v string) *string { return &v }

// fakePinger returns a canned result or error per address.
type fakePinger struct {
	results map[string]*PingResult
	errs    map[string]error
}

func (f *fakePinger) Ping(_ context.Context, address string) (*PingResult, error) {
	if err, ok := f.errs[address]; ok {
		return nil, err
	}

	if result, ok := f.results[address]; ok {
		return result, nil
	}

	return &PingResult{PacketLossPercent: 100}, nil
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		result   PingResult
		expected models.DeviceStatus
	}{
		{"total loss", PingResult{LatencyMs: 0, PacketLossPercent: 100}, models.StatusOffline},
		{"partial loss", PingResult{LatencyMs: 20, PacketLossPercent: 25}, models.StatusWarning},
		{"loss at threshold", PingResult{LatencyMs: 20, PacketLossPercent: 5}, models.StatusOnline},
		{"high latency", PingResult{LatencyMs: 200, PacketLossPercent: 0}, models.StatusWarning},
		{"latency at threshold", PingResult{LatencyMs: 100, PacketLossPercent: 0}, models.StatusOnline},
		{"healthy", PingResult{LatencyMs: 10, PacketLossPercent: 0}, models.StatusOnline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(&PingResult{
				LatencyMs:         tt.result.LatencyMs,
				PacketLossPercent: tt.result.PacketLossPercent,
			}))
		})
	}
}

func seedDevice(t *testing.T, store *db.MemoryService, name, ref string, status models.DeviceStatus, ip string) string {
	t.Helper()

	device := &models.Device{
		ID:         "dev-" + ref,
		DeviceType: models.TypeOLT,
		Name:       name,
		Status:     status,
	}

	oltRef := int64(len(ref))
	device.OltRef = &oltRef

	if ip != "" {
		device.Metadata = map[string]interface{}{"ip_address": ip}
	}

	require.NoError(t, store.InsertDevice(context.Background(), device))

	return device.ID
}

func TestProbeAllRecordsTransitions(t *testing.T) {
	store := db.NewMemoryService()
	ctx := context.Background()

	upID := seedDevice(t, store, "olt-up", "a", models.StatusUnknown, "10.0.0.1")
	downID := seedDevice(t, store, "olt-down", "bb", models.StatusOnline, "10.0.0.2")

	pinger := &fakePinger{results: map[string]*PingResult{
		"10.0.0.1": {LatencyMs: 8, PacketLossPercent: 0},
		"10.0.0.2": {PacketLossPercent: 100},
	}}

	prober := NewProber(store, pinger, &models.ProbeConfig{Concurrency: 2}, logger.NewTestLogger())

	outcomes, err := prober.ProbeAll(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	byID := make(map[string]*Outcome)
	for _, outcome := range outcomes {
		byID[outcome.DeviceID] = outcome
	}

	assert.Equal(t, models.StatusOnline, byID[upID].Current)
	assert.False(t, byID[upID].WentOffline())

	assert.Equal(t, models.StatusOffline, byID[downID].Current)
	assert.Equal(t, models.StatusOnline, byID[downID].Previous)
	assert.True(t, byID[downID].WentOffline())

	up, err := store.GetDevice(ctx, upID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, up.Status)
	assert.NotNil(t, up.LastSeen)
	assert.NotNil(t, up.LastCheck)
	require.NotNil(t, up.LatencyMs)
	assert.InDelta(t, 8, *up.LatencyMs, 0.01)

	down, err := store.GetDevice(ctx, downID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, down.Status)
	assert.Nil(t, down.LastSeen)
}

func TestProbeDeviceWithoutAddressIsUnknown(t *testing.T) {
	store := db.NewMemoryService()
	ctx := context.Background()

	id := seedDevice(t, store, "olt-bare", "c", models.StatusOnline, "")

	prober := NewProber(store, &fakePinger{}, &models.ProbeConfig{}, logger.NewTestLogger())

	outcomes, err := prober.ProbeAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, outcomes)

	device, err := store.GetDevice(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnknown, device.Status)
	assert.NotNil(t, device.LastCheck)
}

func TestProbeAddressSelection(t *testing.T) {
	metaIP := func(ip string) map[string]interface{} {
		return map[string]interface{}{"ip_address": ip}
	}

	tests := []struct {
		name     string
		device   models.Device
		expected string
	}{
		{"metadata ip wins", models.Device{Metadata: metaIP("10.0.0.1"), Address: strPtr("198.51.100.4")}, "10.0.0.1"},
		{"address field holds an ip", models.Device{Address: strPtr("198.51.100.4")}, "198.51.100.4"},
		{"street address is not pingable", models.Device{Address: strPtr("12 Main St, Springfield")}, ""},
		{"empty metadata falls through", models.Device{Metadata: metaIP(""), Address: strPtr("198.51.100.4")}, "198.51.100.4"},
		{"nothing to ping", models.Device{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := tt.device
			assert.Equal(t, tt.expected, probeAddress(&device))
		})
	}
}

func TestProbeAllReachesStaticIPSubscriber(t *testing.T) {
	store := db.NewMemoryService()
	ctx := context.Background()

	device := &models.Device{
		ID:         "dev-static",
		DeviceType: models.TypeSubscriber,
		Name:       "Static (S-010)",
		Status:     models.StatusUnknown,
		Address:    strPtr("203.0.113.7"),
	}
	require.NoError(t, store.InsertDevice(ctx, device))

	pinger := &fakePinger{results: map[string]*PingResult{
		"203.0.113.7": {LatencyMs: 12, PacketLossPercent: 0},
	}}
	prober := NewProber(store, pinger, &models.ProbeConfig{}, logger.NewTestLogger())

	outcomes, err := prober.ProbeAll(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.StatusOnline, outcomes[0].Current)

	stored, err := store.GetDevice(ctx, "dev-static")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, stored.Status)
	assert.NotNil(t, stored.LastSeen)
}

func TestProbeToolingFaultKeepsStatus(t *testing.T) {
	store := db.NewMemoryService()
	ctx := context.Background()

	id := seedDevice(t, store, "olt-flaky", "d", models.StatusOnline, "10.0.0.9")

	pinger := &fakePinger{errs: map[string]error{"10.0.0.9": errSocket}}
	prober := NewProber(store, pinger, &models.ProbeConfig{}, logger.NewTestLogger())

	outcomes, err := prober.ProbeAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, outcomes)

	device, err := store.GetDevice(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, device.Status)
	assert.NotNil(t, device.LastCheck)
}
