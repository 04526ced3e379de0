package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/zynthio/zynthio/internal/compliance/entity"
	"github.com/zynthio/zynthio/internal/middleware"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestSchema = "test_zynthio"
	JWTSecret  = "zynthio-test-jwt-secret"
)

// TestEnv holds test environment resources
type TestEnv struct {
	DB     *gorm.DB
	Router *gin.Engine
	T      *testing.T
}

// projectRoot returns the project root directory by looking for go.mod
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// loadEnv loads .env from the project root
func loadEnv() {
	root := projectRoot()
	if root != "" {
		godotenv.Load(filepath.Join(root, ".env"))
	}
}

// SetupTestDB creates a test database connection using a dedicated test
// schema. Each test gets an isolated schema that is cleaned up after the
// test.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "zynthio")
	password := getEnv("DB_PASSWORD", "zynthio123")
	dbname := getEnv("DB_NAME", "zynthio")

	baseDSN := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	schemaName := fmt.Sprintf("%s_%d", TestSchema, time.Now().UnixNano()%1000000)

	setupDB, err := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to database for schema setup: %v", err)
	}
	setupDB.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName))
	sqlSetup, _ := setupDB.DB()
	sqlSetup.Close()

	// search_path in the DSN so all pooled connections use the test schema
	testDSN := fmt.Sprintf("%s search_path=%s", baseDSN, schemaName)
	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	err = db.AutoMigrate(
		&entity.Organization{},
		&entity.Site{},
		&entity.Category{},
		&entity.Task{},
		&entity.TaskField{},
		&entity.SiteTask{},
		&entity.Checklist{},
		&entity.ChecklistItem{},
		&entity.TaskFieldResponse{},
		&entity.Defect{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		cleanDB, cleanErr := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if cleanErr == nil {
			cleanDB.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
			sqlClean, _ := cleanDB.DB()
			if sqlClean != nil {
				sqlClean.Close()
			}
		}
	})

	return db
}

// SetupRouter creates a gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group with JWT auth middleware for testing
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken creates a valid JWT token for testing
func GenerateTestToken(userID, orgID, name string, roles []string) string {
	if roles == nil {
		roles = []string{}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"uid":   userID,
		"org":   orgID,
		"name":  name,
		"roles": roles,
		"iss":   "zynthio",
		"iat":   now.Unix(),
		"exp":   now.Add(24 * time.Hour).Unix(),
		"jti":   fmt.Sprintf("test-jti-%d", now.UnixNano()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// DoRequest executes an HTTP request against the test router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the JSON response body into a map
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedOrgAndSite creates an organization with one site
func SeedOrgAndSite(t *testing.T, db *gorm.DB, orgName, siteName, timezone string) (*entity.Organization, *entity.Site) {
	t.Helper()
	org := &entity.Organization{
		ID:        uuid.New().String(),
		Name:      orgName,
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(org).Error; err != nil {
		t.Fatalf("Failed to seed organization: %v", err)
	}
	site := &entity.Site{
		ID:             uuid.New().String(),
		OrganizationID: org.ID,
		Name:           siteName,
		Timezone:       timezone,
		IsActive:       true,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := db.Create(site).Error; err != nil {
		t.Fatalf("Failed to seed site: %v", err)
	}
	return org, site
}

// SeedCategory creates an active category owned by the organization with
// the given frequency and creation time (the recurrence anchor).
func SeedCategory(t *testing.T, db *gorm.DB, orgID, name, frequency string, closesAt *string, createdAt time.Time) *entity.Category {
	t.Helper()
	cat := &entity.Category{
		ID:             uuid.New().String(),
		OrganizationID: &orgID,
		Name:           name,
		Frequency:      frequency,
		ClosesAt:       closesAt,
		IsActive:       true,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	if err := db.Create(cat).Error; err != nil {
		t.Fatalf("Failed to seed category: %v", err)
	}
	return cat
}

// SeedTask creates a task and assigns it to the given site
func SeedTask(t *testing.T, db *gorm.DB, categoryID, siteID, name string, orderIndex int, dynamic bool) *entity.Task {
	t.Helper()
	task := &entity.Task{
		ID:             uuid.New().String(),
		CategoryID:     categoryID,
		Name:           name,
		OrderIndex:     orderIndex,
		HasDynamicForm: dynamic,
		IsActive:       true,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := db.Create(task).Error; err != nil {
		t.Fatalf("Failed to seed task: %v", err)
	}
	if siteID != "" {
		st := &entity.SiteTask{
			ID:        uuid.New().String(),
			SiteID:    siteID,
			TaskID:    task.ID,
			CreatedAt: time.Now(),
		}
		if err := db.Create(st).Error; err != nil {
			t.Fatalf("Failed to seed site task: %v", err)
		}
	}
	return task
}

// SeedField creates a task field
func SeedField(t *testing.T, db *gorm.DB, taskID, label, fieldType string, order int, required bool, rules, options, showIf string) *entity.TaskField {
	t.Helper()
	field := &entity.TaskField{
		ID:         uuid.New().String(),
		TaskID:     taskID,
		Label:      label,
		FieldType:  fieldType,
		FieldOrder: order,
		IsRequired: required,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if rules != "" {
		field.ValidationRules = json.RawMessage(rules)
	}
	if options != "" {
		field.Options = json.RawMessage(options)
	}
	if showIf != "" {
		field.ShowIf = json.RawMessage(showIf)
	}
	if err := db.Create(field).Error; err != nil {
		t.Fatalf("Failed to seed task field: %v", err)
	}
	return field
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
