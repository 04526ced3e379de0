package handler

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zynthio/zynthio/internal/compliance/entity"
	"github.com/zynthio/zynthio/internal/compliance/repository"
	"github.com/zynthio/zynthio/internal/compliance/service"
	"github.com/zynthio/zynthio/internal/compliance/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupChecklistRouter(t *testing.T) (*gorm.DB, *gin.Engine) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svc := service.NewServices(repos, nil, zap.NewNop())
	h := NewChecklistHandler(svc)

	r := testutil.SetupRouter()
	api := testutil.AuthGroup(r, "/api/v1")
	api.POST("/checklists", h.CreateInstance)
	api.GET("/checklists/:id", h.Get)
	api.POST("/checklist-items/:id/responses", h.SubmitResponses)
	return db, r
}

func TestChecklistEndToEnd(t *testing.T) {
	db, r := setupChecklistRouter(t)

	_, site := testutil.SeedOrgAndSite(t, db, "Acme Hotels", "Riverside", "UTC")
	org := site.OrganizationID
	cat := testutil.SeedCategory(t, db, org, "Goods In", entity.FrequencyPerDelivery, nil, time.Now().AddDate(0, -1, 0))
	task := testutil.SeedTask(t, db, cat.ID, site.ID, "Check delivery temps", 1, true)
	field := testutil.SeedField(t, db, task.ID, "Van temp", entity.FieldTypeNumber, 1, true,
		`{"min":0,"max":5,"create_defect_if":"out_of_range","severity":"high"}`, "", "")

	token := testutil.GenerateTestToken("user-1", org, "Sam", []string{"site_staff"})

	// Materialize on demand.
	w := testutil.DoRequest(r, "POST", "/api/v1/checklists", gin.H{
		"category_id": cat.ID,
		"site_id":     site.ID,
		"date":        "2026-05-11",
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := testutil.ParseResponse(w)
	checklist := body["data"].(map[string]interface{})
	checklistID := checklist["id"].(string)
	assert.Equal(t, "pending", checklist["status"])

	// Same instance on a duplicate trigger.
	w = testutil.DoRequest(r, "POST", "/api/v1/checklists", gin.H{
		"category_id": cat.ID,
		"site_id":     site.ID,
		"date":        "2026-05-11",
	}, token)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, checklistID, testutil.ParseResponse(w)["data"].(map[string]interface{})["id"])

	// Fetch with items and field schema.
	w = testutil.DoRequest(r, "GET", "/api/v1/checklists/"+checklistID, nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	body = testutil.ParseResponse(w)
	data := body["data"].(map[string]interface{})
	items := data["items"].([]interface{})
	require.Len(t, items, 1)
	itemID := items[0].(map[string]interface{})["id"].(string)
	assert.Contains(t, data["field_schema"].(map[string]interface{}), task.ID)

	// Out-of-range submission passes and completes the item.
	w = testutil.DoRequest(r, "POST", fmt.Sprintf("/api/v1/checklist-items/%s/responses", itemID), gin.H{
		"responses": []gin.H{{"field_id": field.ID, "value": 9.5}},
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var defects int64
	db.Model(&entity.Defect{}).Where("checklist_item_id = ?", itemID).Count(&defects)
	assert.EqualValues(t, 1, defects)

	// Completed checklists reject further submissions.
	w = testutil.DoRequest(r, "POST", fmt.Sprintf("/api/v1/checklist-items/%s/responses", itemID), gin.H{
		"responses": []gin.H{{"field_id": field.ID, "value": 3}},
	}, token)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestChecklistValidationErrorPayload(t *testing.T) {
	db, r := setupChecklistRouter(t)

	_, site := testutil.SeedOrgAndSite(t, db, "Acme Hotels", "Riverside", "UTC")
	org := site.OrganizationID
	cat := testutil.SeedCategory(t, db, org, "Goods In", entity.FrequencyPerDelivery, nil, time.Now().AddDate(0, -1, 0))
	task := testutil.SeedTask(t, db, cat.ID, site.ID, "Check delivery temps", 1, true)
	field := testutil.SeedField(t, db, task.ID, "Van temp", entity.FieldTypeNumber, 1, true, "", "", "")

	token := testutil.GenerateTestToken("user-1", org, "Sam", []string{"site_staff"})

	w := testutil.DoRequest(r, "POST", "/api/v1/checklists", gin.H{
		"category_id": cat.ID,
		"site_id":     site.ID,
		"date":        "2026-05-11",
	}, token)
	require.Equal(t, http.StatusCreated, w.Code)
	checklistID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(r, "GET", "/api/v1/checklists/"+checklistID, nil, token)
	items := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	itemID := items[0].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(r, "POST", fmt.Sprintf("/api/v1/checklist-items/%s/responses", itemID), gin.H{
		"responses": []gin.H{{"field_id": field.ID, "value": "warm"}},
	}, token)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	body := testutil.ParseResponse(w)
	fields := body["data"].(map[string]interface{})["fields"].(map[string]interface{})
	assert.Contains(t, fields, "Van temp")
}

func TestChecklistRequiresAuth(t *testing.T) {
	_, r := setupChecklistRouter(t)

	w := testutil.DoRequest(r, "GET", "/api/v1/checklists/some-id", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChecklistTenantIsolation(t *testing.T) {
	db, r := setupChecklistRouter(t)

	_, site := testutil.SeedOrgAndSite(t, db, "Acme Hotels", "Riverside", "UTC")
	org := site.OrganizationID
	cat := testutil.SeedCategory(t, db, org, "Goods In", entity.FrequencyPerDelivery, nil, time.Now().AddDate(0, -1, 0))
	testutil.SeedTask(t, db, cat.ID, site.ID, "Check delivery temps", 1, false)

	token := testutil.GenerateTestToken("user-1", org, "Sam", nil)
	w := testutil.DoRequest(r, "POST", "/api/v1/checklists", gin.H{
		"category_id": cat.ID,
		"site_id":     site.ID,
		"date":        "2026-05-11",
	}, token)
	require.Equal(t, http.StatusCreated, w.Code)
	checklistID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	intruder := testutil.GenerateTestToken("user-9", "other-org", "Max", nil)
	w = testutil.DoRequest(r, "GET", "/api/v1/checklists/"+checklistID, nil, intruder)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
