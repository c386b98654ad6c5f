package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hrk-pass/household-account-book/internal/api"
	"github.com/hrk-pass/household-account-book/internal/config"
	"github.com/hrk-pass/household-account-book/internal/ledger"
	"github.com/hrk-pass/household-account-book/internal/models"
	"github.com/hrk-pass/household-account-book/internal/realtime"
	"github.com/hrk-pass/household-account-book/internal/repository"
	"github.com/hrk-pass/household-account-book/internal/service"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// TestContext holds all dependencies for tests
type TestContext struct {
	Router      *gin.Engine
	Repository  repository.Repository
	Service     service.Service
	Hub         *realtime.Hub
	JWTSecret   []byte
	DB          *sqlx.DB
	TestUserID  string
	TestUserJWT string
}

// SetupTestContext creates a new test context backed by a fresh SQLite
// database in a temporary directory.
func SetupTestContext(t *testing.T) *TestContext {
	t.Helper()
	return SetupTestContextWithRepo(t, func(r *repository.SQLRepository) repository.Repository { return r })
}

// SetupTestContextWithRepo is SetupTestContext with the repository wrapped
// by wrap before anything is built on it.
func SetupTestContextWithRepo(t *testing.T, wrap func(*repository.SQLRepository) repository.Repository) *TestContext {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.Path = filepath.Join(t.TempDir(), "household_test.db")
	cfg.Auth.JWTSecret = "test-secret-key"

	db, err := config.SetupDatabase(cfg)
	require.NoError(t, err, "Failed to set up test database")

	repo := wrap(repository.NewSQLRepository(db))
	hub := realtime.NewHub(repo, nil)
	svc := service.NewDefaultService(repo, cfg.Auth.JWTSecret,
		service.WithLedger(ledger.New(repo,
			ledger.WithMealPrepCreditStep(cfg.Ledger.MealPrepCreditStep),
			ledger.WithLegacyIngredientCreditStep(cfg.Ledger.LegacyIngredientCreditStep),
		)),
		service.WithNotifier(hub),
		service.WithTokenDuration(cfg.Auth.TokenTTL),
	)

	handler := api.NewHandler(svc, hub, nil)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(api.JWTSecret(cfg.Auth.JWTSecret))
	handler.SetupRoutes(router)

	testUserID, token := createTestUser(t, repo, cfg.Auth.JWTSecret)

	return &TestContext{
		Router:      router,
		Repository:  repo,
		Service:     svc,
		Hub:         hub,
		JWTSecret:   []byte(cfg.Auth.JWTSecret),
		DB:          db,
		TestUserID:  testUserID,
		TestUserJWT: token,
	}
}

// CleanupTestContext cleans up test resources
func CleanupTestContext(t *TestContext) {
	if t.DB != nil {
		t.DB.Close()
	}
}

// Helper functions
func createTestUser(t *testing.T, repo repository.Repository, jwtSecret string) (string, string) {
	hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("testpassword"), bcrypt.DefaultCost)

	user := &models.User{
		ID:        uuid.New().String(),
		Email:     "testuser@example.com",
		Name:      "Test User",
		Password:  string(hashedPassword),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	err := repo.CreateUser(context.Background(), user)
	require.NoError(t, err, "Failed to create test user")

	return user.ID, SignToken(t, user.ID, jwtSecret)
}

// SignToken issues a token for userID the way the login endpoint does.
func SignToken(t *testing.T, userID, jwtSecret string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(24 * time.Hour).Unix(),
		"iat": time.Now().Unix(),
	})

	tokenString, err := token.SignedString([]byte(jwtSecret))
	require.NoError(t, err, "Failed to generate JWT token")
	return tokenString
}

// PerformRequest executes an HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// AuthHeaders returns headers with Authorization token
func AuthHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", token),
	}
}

// DecodeJSON unmarshals the recorded response body into v.
func DecodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), "body: %s", w.Body.String())
}
