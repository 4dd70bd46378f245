package monitor

import (
	"context"
	stdsync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftthlab/fibermon/pkg/cache"
	"github.com/ftthlab/fibermon/pkg/cascade"
	"github.com/ftthlab/fibermon/pkg/db"
	"github.com/ftthlab/fibermon/pkg/logger"
	"github.com/ftthlab/fibermon/pkg/models"
	"github.com/ftthlab/fibermon/pkg/probe"
	"github.com/ftthlab/fibermon/pkg/registry"
	"github.com/ftthlab/fibermon/pkg/sync"
	"github.com/ftthlab/fibermon/pkg/topology"
)

// deadPinger reports every target as fully lost.
type deadPinger struct{}

func (*deadPinger) Ping(context.Context, string) (*probe.PingResult, error) {
	return &probe.PingResult{PacketLossPercent: 100}, nil
}

type recordingMessenger struct {
	mu   stdsync.Mutex
	sent []string
}

func (r *recordingMessenger) Send(_ context.Context, address, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sent = append(r.sent, address)

	return nil
}

type idleSynchronizer struct{}

func (*idleSynchronizer) Name() string { return "idle" }

func (*idleSynchronizer) Sync(context.Context) (*sync.Result, error) {
	return &sync.Result{}, nil
}

func TestProbeCycleCascadesFreshOutage(t *testing.T) {
	log := logger.NewTestLogger()
	store := db.NewMemoryService()
	ctx := context.Background()

	devices := registry.NewDeviceRegistry(store, log)
	links := registry.NewLinkRegistry(store, log)

	oltRef := int64(1)
	oltID, _, err := devices.UpsertDevice(ctx, &models.DeviceUpdate{
		DeviceType: models.TypeOLT,
		Name:       "OLT Central",
		OltRef:     &oltRef,
		Status:     models.StatusOnline,
		Metadata:   map[string]interface{}{"ip_address": "10.0.0.1"},
	})
	require.NoError(t, err)

	subID := int64(7)
	subDeviceID, _, err := devices.UpsertDevice(ctx, &models.DeviceUpdate{
		DeviceType:   models.TypeSubscriber,
		Name:         "Subscriber 7",
		SubscriberID: &subID,
	})
	require.NoError(t, err)

	_, _, err = links.UpsertLink(ctx, oltID, subDeviceID, models.LinkTypeFiber)
	require.NoError(t, err)

	phone := "+628110007"
	store.AddSubscriber(&models.Subscriber{ID: subID, Name: "Subscriber 7", Status: "active", Phone: &phone})

	messenger := &recordingMessenger{}
	cfg := &models.CoreConfig{}
	cfg.Sync.Interval = models.Duration(models.DefaultSyncInterval)
	cfg.ACS.Interval = models.Duration(models.DefaultACSInterval)
	cfg.Probe.Interval = models.Duration(models.DefaultProbeInterval)

	engine := NewEngine(
		sync.NewService(log),
		&idleSynchronizer{},
		probe.NewProber(store, &deadPinger{}, &models.ProbeConfig{}, log),
		topology.NewAssembler(store, devices, links, cache.New(), &models.TopologyConfig{}, log),
		cascade.NewNotifier(devices, links, store, messenger, log),
		cfg,
		log,
	)

	engine.runProbeCycle(ctx)

	assert.Equal(t, []string{phone}, messenger.sent)

	device, err := store.GetDevice(ctx, oltID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, device.Status)

	// A second cycle sees no transition and stays quiet.
	engine.runProbeCycle(ctx)
	assert.Len(t, messenger.sent, 1)
}
