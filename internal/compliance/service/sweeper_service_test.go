package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zynthio/zynthio/internal/compliance/entity"
	"github.com/zynthio/zynthio/internal/compliance/testutil"
)

func TestSweepOverdueMarksPastCutoff(t *testing.T) {
	db, repos, svc := setupServices(t)
	ctx := context.Background()

	_, site := testutil.SeedOrgAndSite(t, db, "Acme Hotels", "Riverside", "UTC")
	org := site.OrganizationID
	closesAt := "17:00"
	cat := testutil.SeedCategory(t, db, org, "Opening Checks", entity.FrequencyDaily, &closesAt, time.Now().AddDate(0, -1, 0))
	testutil.SeedTask(t, db, cat.ID, site.ID, "Check fridge", 1, false)

	date := time.Date(2026, time.May, 11, 0, 0, 0, 0, time.UTC)
	checklist, err := svc.Materializer.MaterializeEvent(ctx, org, cat.ID, site.ID, date)
	require.NoError(t, err)

	// Before the cutoff nothing moves.
	swept, err := svc.Sweeper.SweepOverdue(ctx, time.Date(2026, time.May, 11, 16, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, swept)

	// Past the cutoff the instance goes overdue.
	swept, err = svc.Sweeper.SweepOverdue(ctx, time.Date(2026, time.May, 11, 18, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	reloaded, err := repos.Checklist.FindByID(ctx, checklist.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ChecklistStatusOverdue, reloaded.Status)

	// Sweeping again is a no-op.
	swept, err = svc.Sweeper.SweepOverdue(ctx, time.Date(2026, time.May, 11, 19, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
}

func TestSweepOverdueDefaultsToEndOfDay(t *testing.T) {
	db, _, svc := setupServices(t)
	ctx := context.Background()

	_, site := testutil.SeedOrgAndSite(t, db, "Acme Hotels", "Riverside", "UTC")
	org := site.OrganizationID
	cat := testutil.SeedCategory(t, db, org, "Opening Checks", entity.FrequencyDaily, nil, time.Now().AddDate(0, -1, 0))
	testutil.SeedTask(t, db, cat.ID, site.ID, "Check fridge", 1, false)

	date := time.Date(2026, time.May, 11, 0, 0, 0, 0, time.UTC)
	_, err := svc.Materializer.MaterializeEvent(ctx, org, cat.ID, site.ID, date)
	require.NoError(t, err)

	// Late the same day: still open.
	swept, err := svc.Sweeper.SweepOverdue(ctx, time.Date(2026, time.May, 11, 23, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, swept)

	// First minutes of the next day: overdue.
	swept, err = svc.Sweeper.SweepOverdue(ctx, time.Date(2026, time.May, 12, 0, 5, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, swept)
}

func TestSweepOverdueSkipsCompleted(t *testing.T) {
	db, _, svc := setupServices(t)
	ctx := context.Background()

	_, site := testutil.SeedOrgAndSite(t, db, "Acme Hotels", "Riverside", "UTC")
	org := site.OrganizationID
	closesAt := "17:00"
	cat := testutil.SeedCategory(t, db, org, "Opening Checks", entity.FrequencyDaily, &closesAt, time.Now().AddDate(0, -1, 0))
	task := testutil.SeedTask(t, db, cat.ID, site.ID, "Check fridge", 1, true)
	field := testutil.SeedField(t, db, task.ID, "Surfaces cleaned", entity.FieldTypeYesNo, 1, true, "", "", "")

	date := time.Date(2026, time.May, 11, 0, 0, 0, 0, time.UTC)
	checklist, err := svc.Materializer.MaterializeEvent(ctx, org, cat.ID, site.ID, date)
	require.NoError(t, err)

	detail, err := svc.Response.GetChecklist(ctx, org, checklist.ID)
	require.NoError(t, err)
	_, err = svc.Response.SubmitFieldResponses(ctx, org, "user-1", detail.Items[0].ID, []FieldSubmission{
		{FieldID: field.ID, Value: json.RawMessage(`"yes"`)},
	})
	require.NoError(t, err)

	swept, err := svc.Sweeper.SweepOverdue(ctx, time.Date(2026, time.May, 11, 18, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, swept, "completed instances never go overdue")
}

func TestSweepOverdueCatchesEmptyInstances(t *testing.T) {
	db, repos, svc := setupServices(t)
	ctx := context.Background()

	_, site := testutil.SeedOrgAndSite(t, db, "Acme Hotels", "Riverside", "UTC")
	org := site.OrganizationID
	// No tasks assigned: the instance materializes empty and can never
	// complete, so the sweeper is what retires it.
	cat := testutil.SeedCategory(t, db, org, "Unconfigured", entity.FrequencyDaily, nil, time.Now().AddDate(0, -1, 0))

	date := time.Date(2026, time.May, 11, 0, 0, 0, 0, time.UTC)
	checklist, err := svc.Materializer.MaterializeEvent(ctx, org, cat.ID, site.ID, date)
	require.NoError(t, err)
	assert.Equal(t, 0, checklist.TotalItems)

	swept, err := svc.Sweeper.SweepOverdue(ctx, time.Date(2026, time.May, 12, 1, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	reloaded, err := repos.Checklist.FindByID(ctx, checklist.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ChecklistStatusOverdue, reloaded.Status)
}

func TestSweepOverdueUsesSiteLocalCutoff(t *testing.T) {
	db, repos, svc := setupServices(t)
	ctx := context.Background()

	_, site := testutil.SeedOrgAndSite(t, db, "Acme Hotels", "Auckland", "Pacific/Auckland")
	org := site.OrganizationID
	closesAt := "17:00"
	cat := testutil.SeedCategory(t, db, org, "Opening Checks", entity.FrequencyDaily, &closesAt, time.Now().AddDate(0, -1, 0))
	testutil.SeedTask(t, db, cat.ID, site.ID, "Check fridge", 1, false)

	date := time.Date(2026, time.May, 11, 0, 0, 0, 0, time.UTC)
	checklist, err := svc.Materializer.MaterializeEvent(ctx, org, cat.ID, site.ID, date)
	require.NoError(t, err)

	loc := site.Location()
	before := time.Date(2026, time.May, 11, 16, 0, 0, 0, loc)
	after := time.Date(2026, time.May, 11, 18, 0, 0, 0, loc)

	swept, err := svc.Sweeper.SweepOverdue(ctx, before)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)

	swept, err = svc.Sweeper.SweepOverdue(ctx, after)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	reloaded, err := repos.Checklist.FindByID(ctx, checklist.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ChecklistStatusOverdue, reloaded.Status)

	// A late completion still overwrites overdue.
	detail, err := svc.Response.GetChecklist(ctx, org, checklist.ID)
	require.NoError(t, err)
	done := true
	_, err = svc.Response.PatchItem(ctx, org, "user-1", detail.Items[0].ID, &PatchItemRequest{IsCompleted: &done})
	require.NoError(t, err)

	reloaded, err = repos.Checklist.FindByID(ctx, checklist.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ChecklistStatusCompleted, reloaded.Status)
}
