package trouble

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftthlab/fibermon/pkg/cache"
	"github.com/ftthlab/fibermon/pkg/db"
	"github.com/ftthlab/fibermon/pkg/logger"
	"github.com/ftthlab/fibermon/pkg/models"
)

func newAggregator(store *db.MemoryService, cfg *models.TroubleConfig) *Aggregator {
	if cfg == nil {
		cfg = &models.TroubleConfig{}
	}

	return NewAggregator(store, cache.New(), cfg, logger.NewTestLogger())
}

func seedSubscriber(store *db.MemoryService, id int64, status string, isolated bool) {
	store.AddSubscriber(&models.Subscriber{
		ID:         id,
		Name:       "Subscriber",
		Code:       "SUB",
		Status:     status,
		IsIsolated: isolated,
	})
}

func TestPriorityMergeLabelsWithHighestPriority(t *testing.T) {
	store := db.NewMemoryService()
	seedSubscriber(store, 1, "active", false)

	older := time.Now().Add(-30 * time.Minute)
	newer := time.Now().Add(-5 * time.Minute)

	store.AddSignal(&models.TroubleSignal{
		SubscriberID: 1, IssueType: "No Connection", Since: newer,
		TroubleType: models.TroubleOffline,
	})
	store.AddSignal(&models.TroubleSignal{
		SubscriberID: 1, IssueType: "Maintenance", Since: older,
		TroubleType: models.TroubleMaintenance,
	})

	records, err := newAggregator(store, nil).TroubledSubscribers(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	// Maintenance outranks offline for the label; recency still comes
	// from the newest signal of either kind.
	assert.Equal(t, models.TroubleMaintenance, records[0].TroubleType)
	assert.Equal(t, "Maintenance", records[0].IssueType)
	assert.True(t, records[0].TroubleSince.Equal(newer))
}

func TestSLAIncidentLabelOutranksTicket(t *testing.T) {
	store := db.NewMemoryService()
	seedSubscriber(store, 1, "active", false)

	since := time.Now().Add(-10 * time.Minute)

	store.AddSignal(&models.TroubleSignal{
		SubscriberID: 1, IssueType: "Ticket: slow speeds", Since: since,
		TroubleType: models.TroubleTicket,
	})
	store.AddSignal(&models.TroubleSignal{
		SubscriberID: 1, IssueType: "SLA: outage", Since: since.Add(-time.Minute),
		TroubleType: models.TroubleSLAIncident,
	})

	records, err := newAggregator(store, nil).TroubledSubscribers(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	// The label ranking puts SLA incidents above tickets even though the
	// list ordering ranks tickets first.
	assert.Equal(t, models.TroubleSLAIncident, records[0].TroubleType)
	assert.Equal(t, "SLA: outage", records[0].IssueType)
}

func TestTicketSortsBeforeSLAIncident(t *testing.T) {
	store := db.NewMemoryService()
	seedSubscriber(store, 1, "active", false)
	seedSubscriber(store, 2, "active", false)

	since := time.Now().Add(-10 * time.Minute)

	store.AddSignal(&models.TroubleSignal{
		SubscriberID: 1, IssueType: "SLA: outage", Since: since.Add(5 * time.Minute),
		TroubleType: models.TroubleSLAIncident,
	})
	store.AddSignal(&models.TroubleSignal{
		SubscriberID: 2, IssueType: "Ticket: slow speeds", Since: since,
		TroubleType: models.TroubleTicket,
	})

	records, err := newAggregator(store, nil).TroubledSubscribers(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, int64(2), records[0].SubscriberID)
	assert.Equal(t, int64(1), records[1].SubscriberID)
}

func TestOrderingByPriorityThenRecency(t *testing.T) {
	store := db.NewMemoryService()

	for id := int64(1); id <= 4; id++ {
		seedSubscriber(store, id, "active", false)
	}

	base := time.Now().Add(-time.Hour)

	store.AddSignal(&models.TroubleSignal{
		SubscriberID: 1, IssueType: "Ticket: slow speeds", Since: base.Add(40 * time.Minute),
		TroubleType: models.TroubleTicket,
	})
	store.AddSignal(&models.TroubleSignal{
		SubscriberID: 2, IssueType: "No Connection", Since: base.Add(10 * time.Minute),
		TroubleType: models.TroubleOffline,
	})
	store.AddSignal(&models.TroubleSignal{
		SubscriberID: 3, IssueType: "No Connection", Since: base.Add(30 * time.Minute),
		TroubleType: models.TroubleOffline,
	})
	store.AddSignal(&models.TroubleSignal{
		SubscriberID: 4, IssueType: "Maintenance", Since: base,
		TroubleType: models.TroubleMaintenance,
	})

	records, err := newAggregator(store, nil).TroubledSubscribers(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 4)

	ids := []int64{records[0].SubscriberID, records[1].SubscriberID, records[2].SubscriberID, records[3].SubscriberID}
	assert.Equal(t, []int64{4, 3, 2, 1}, ids)
}

func TestLimitCapsResult(t *testing.T) {
	store := db.NewMemoryService()

	for id := int64(1); id <= 5; id++ {
		seedSubscriber(store, id, "active", false)
		store.AddSignal(&models.TroubleSignal{
			SubscriberID: id, IssueType: "No Connection",
			Since:       time.Now().Add(-time.Duration(id) * time.Minute),
			TroubleType: models.TroubleOffline,
		})
	}

	records, err := newAggregator(store, &models.TroubleConfig{Limit: 3}).TroubledSubscribers(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestMissingDetectorSourceDegrades(t *testing.T) {
	store := db.NewMemoryService()
	seedSubscriber(store, 1, "active", false)

	store.MarkSourceMissing(models.TroubleSLAIncident)
	store.AddSignal(&models.TroubleSignal{
		SubscriberID: 1, IssueType: "No Connection", Since: time.Now().Add(-time.Minute),
		TroubleType: models.TroubleOffline,
	})

	records, err := newAggregator(store, nil).TroubledSubscribers(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestIsolatedSubscriberOfflineSuppressed(t *testing.T) {
	store := db.NewMemoryService()
	seedSubscriber(store, 1, "active", true)
	seedSubscriber(store, 2, "active", true)

	since := time.Now().Add(-time.Minute)

	// Expected to be unreachable, so offline is noise; maintenance is not.
	store.AddSignal(&models.TroubleSignal{
		SubscriberID: 1, IssueType: "No Connection", Since: since,
		TroubleType: models.TroubleOffline,
	})
	store.AddSignal(&models.TroubleSignal{
		SubscriberID: 2, IssueType: "Maintenance", Since: since,
		TroubleType: models.TroubleMaintenance,
	})

	records, err := newAggregator(store, nil).TroubledSubscribers(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(2), records[0].SubscriberID)
}

func TestInactiveSubscriberExcluded(t *testing.T) {
	store := db.NewMemoryService()
	seedSubscriber(store, 1, "terminated", false)
	seedSubscriber(store, 2, "suspended", false)

	since := time.Now().Add(-time.Minute)

	for _, id := range []int64{1, 2} {
		store.AddSignal(&models.TroubleSignal{
			SubscriberID: id, IssueType: "No Connection", Since: since,
			TroubleType: models.TroubleOffline,
		})
	}

	records, err := newAggregator(store, nil).TroubledSubscribers(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(2), records[0].SubscriberID)
}

func TestResultIsCached(t *testing.T) {
	store := db.NewMemoryService()
	seedSubscriber(store, 1, "active", false)

	agg := newAggregator(store, nil)

	records, err := agg.TroubledSubscribers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)

	// A signal arriving after the first query stays invisible until the
	// cache is invalidated.
	store.AddSignal(&models.TroubleSignal{
		SubscriberID: 1, IssueType: "No Connection", Since: time.Now(),
		TroubleType: models.TroubleOffline,
	})

	records, err = agg.TroubledSubscribers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)

	agg.Invalidate()

	records, err = agg.TroubledSubscribers(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestCallerMutationDoesNotReachCache(t *testing.T) {
	store := db.NewMemoryService()
	seedSubscriber(store, 1, "active", false)

	store.AddSignal(&models.TroubleSignal{
		SubscriberID: 1, IssueType: "No Connection", Since: time.Now().Add(-time.Minute),
		TroubleType: models.TroubleOffline,
	})

	agg := newAggregator(store, nil)

	records, err := agg.TroubledSubscribers(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	records[0].IssueType = "edited downstream"
	records[0].TroubleType = models.TroubleMaintenance

	// The second query serves the cached entry; it must be untouched.
	records, err = agg.TroubledSubscribers(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "No Connection", records[0].IssueType)
	assert.Equal(t, models.TroubleOffline, records[0].TroubleType)
}
