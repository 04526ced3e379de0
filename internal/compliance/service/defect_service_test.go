package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zynthio/zynthio/internal/compliance/entity"
	"github.com/zynthio/zynthio/internal/compliance/testutil"
)

func TestDefectManualLifecycle(t *testing.T) {
	db, _, svc := setupServices(t)
	ctx := context.Background()

	_, site := testutil.SeedOrgAndSite(t, db, "Acme Hotels", "Riverside", "UTC")
	org := site.OrganizationID

	defect, err := svc.Defect.Create(ctx, org, "user-1", &CreateDefectRequest{
		SiteID:      site.ID,
		Title:       "Broken freezer door seal",
		Description: "Seal torn on freezer 2",
		Severity:    entity.DefectSeverityCritical,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.DefectStatusOpen, defect.Status)
	assert.Equal(t, entity.DefectSeverityCritical, defect.Severity)
	require.NotNil(t, defect.ReportedByID)
	assert.Equal(t, "user-1", *defect.ReportedByID)

	closed, err := svc.Defect.Close(ctx, org, defect.ID, "user-2", "seal replaced")
	require.NoError(t, err)
	assert.Equal(t, entity.DefectStatusClosed, closed.Status)
	assert.NotNil(t, closed.ClosedAt)
	assert.Equal(t, "user-2", closed.ClosedBy)
	assert.Equal(t, "seal replaced", closed.CloseNotes)

	// Closure is monotone: a late closer loses and never overwrites the
	// winner's audit fields.
	_, err = svc.Defect.Close(ctx, org, defect.ID, "user-3", "again")
	assert.ErrorIs(t, err, ErrConflict)

	var stored entity.Defect
	require.NoError(t, db.First(&stored, "id = ?", defect.ID).Error)
	assert.Equal(t, "user-2", stored.ClosedBy)
	assert.Equal(t, "seal replaced", stored.CloseNotes)
}

func TestDefectCreateDefaultsSeverity(t *testing.T) {
	db, _, svc := setupServices(t)
	ctx := context.Background()

	_, site := testutil.SeedOrgAndSite(t, db, "Acme Hotels", "Riverside", "UTC")
	org := site.OrganizationID

	defect, err := svc.Defect.Create(ctx, org, "user-1", &CreateDefectRequest{
		SiteID: site.ID,
		Title:  "Flickering light in cold store",
	})
	require.NoError(t, err)
	assert.Equal(t, entity.DefectSeverityMedium, defect.Severity)
}

func TestDefectCreateRejectsUnknownSeverity(t *testing.T) {
	db, _, svc := setupServices(t)
	ctx := context.Background()

	_, site := testutil.SeedOrgAndSite(t, db, "Acme Hotels", "Riverside", "UTC")

	_, err := svc.Defect.Create(ctx, site.OrganizationID, "user-1", &CreateDefectRequest{
		SiteID:   site.ID,
		Title:    "Broken tile",
		Severity: "catastrophic",
	})
	_, ok := AsValidation(err)
	assert.True(t, ok)
}

func TestDefectCreateDeniesForeignSite(t *testing.T) {
	db, _, svc := setupServices(t)
	ctx := context.Background()

	_, site := testutil.SeedOrgAndSite(t, db, "Acme Hotels", "Riverside", "UTC")
	_, other := testutil.SeedOrgAndSite(t, db, "Rival Inns", "Hilltop", "UTC")

	_, err := svc.Defect.Create(ctx, site.OrganizationID, "user-1", &CreateDefectRequest{
		SiteID: other.ID,
		Title:  "Not my site",
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestDefectCloseDeniesForeignTenant(t *testing.T) {
	db, _, svc := setupServices(t)
	ctx := context.Background()

	_, site := testutil.SeedOrgAndSite(t, db, "Acme Hotels", "Riverside", "UTC")
	org := site.OrganizationID

	defect, err := svc.Defect.Create(ctx, org, "user-1", &CreateDefectRequest{
		SiteID: site.ID,
		Title:  "Broken tile",
	})
	require.NoError(t, err)

	_, err = svc.Defect.Close(ctx, "other-org", defect.ID, "user-2", "")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestDefectList(t *testing.T) {
	db, _, svc := setupServices(t)
	ctx := context.Background()

	_, site := testutil.SeedOrgAndSite(t, db, "Acme Hotels", "Riverside", "UTC")
	org := site.OrganizationID

	for _, title := range []string{"Torn seal", "Cracked shelf", "Noisy compressor"} {
		_, err := svc.Defect.Create(ctx, org, "user-1", &CreateDefectRequest{SiteID: site.ID, Title: title})
		require.NoError(t, err)
	}
	closedOne, err := svc.Defect.Create(ctx, org, "user-1", &CreateDefectRequest{SiteID: site.ID, Title: "Fixed already"})
	require.NoError(t, err)
	_, err = svc.Defect.Close(ctx, org, closedOne.ID, "user-1", "")
	require.NoError(t, err)

	open, total, err := svc.Defect.List(ctx, org, site.ID, entity.DefectStatusOpen, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, open, 3)

	all, total, err := svc.Defect.List(ctx, org, "", "", 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Len(t, all, 2, "page size bounds the slice")
}
