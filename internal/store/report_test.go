package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetUsageReport_Counters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	ownerID := createTestClient(t, store, "owner@example.com")

	active := createTestSession(t, store, ownerID)
	handedOff := createTestSession(t, store, ownerID)
	closed := createTestSession(t, store, ownerID)

	_, err := store.TriggerHandoff(ctx, handedOff.ID, handoffMarker(handedOff.ID))
	require.NoError(t, err)
	require.NoError(t, store.CloseSession(ctx, AdminScope(), closed.ID))

	require.NoError(t, store.SaveMessage(ctx, &ChatMessage{
		ID:         uuid.NewString(),
		SessionID:  active.ID,
		SenderType: SenderVisitor,
		Body:       "hi",
		CreatedAt:  time.Now().UTC(),
	}))

	report, err := store.GetUsageReport(ctx, AdminScope(), ReportRange{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalSessions)
	assert.Equal(t, 1, report.ActiveSessions)
	assert.Equal(t, 1, report.HumanHandoffs)
	// The visitor message plus the handoff marker.
	assert.Equal(t, 2, report.TotalMessages)

	require.Len(t, report.DailyStats, 1)
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), report.DailyStats[0].Date)
	assert.Equal(t, 3, report.DailyStats[0].Count)
}

func TestStore_GetUsageReport_TenantScoped(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	ownerA := createTestClient(t, store, "a@example.com")
	ownerB := createTestClient(t, store, "b@example.com")

	createTestSession(t, store, ownerA)
	sessionB := createTestSession(t, store, ownerB)
	require.NoError(t, store.SaveMessage(ctx, &ChatMessage{
		ID:         uuid.NewString(),
		SessionID:  sessionB.ID,
		SenderType: SenderVisitor,
		Body:       "hi",
		CreatedAt:  time.Now().UTC(),
	}))

	reportA, err := store.GetUsageReport(ctx, TenantScope(ownerA), ReportRange{})
	require.NoError(t, err)
	assert.Equal(t, 1, reportA.TotalSessions)
	assert.Equal(t, 0, reportA.TotalMessages)

	reportB, err := store.GetUsageReport(ctx, TenantScope(ownerB), ReportRange{})
	require.NoError(t, err)
	assert.Equal(t, 1, reportB.TotalSessions)
	assert.Equal(t, 1, reportB.TotalMessages)
}

func TestStore_GetUsageReport_DateRange(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	ownerID := createTestClient(t, store, "owner@example.com")
	createTestSession(t, store, ownerID)

	// A window entirely in the past excludes today's session.
	start := time.Now().UTC().AddDate(0, 0, -10)
	end := time.Now().UTC().AddDate(0, 0, -5)
	report, err := store.GetUsageReport(ctx, AdminScope(), ReportRange{Start: &start, End: &end})
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalSessions)
	assert.Empty(t, report.DailyStats)

	// An inclusive window covering now includes it.
	start = time.Now().UTC().Add(-time.Hour)
	end = time.Now().UTC().Add(time.Hour)
	report, err = store.GetUsageReport(ctx, AdminScope(), ReportRange{Start: &start, End: &end})
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalSessions)
}

func TestStore_GetUsageReport_Empty(t *testing.T) {
	store := setupTestStore(t)

	report, err := store.GetUsageReport(context.Background(), AdminScope(), ReportRange{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalSessions)
	assert.NotNil(t, report.DailyStats)
	assert.Empty(t, report.DailyStats)
}
