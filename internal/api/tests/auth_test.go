package api_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hrk-pass/household-account-book/internal/api/testutils"
	"github.com/hrk-pass/household-account-book/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignup(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	// Test case 1: Successful signup
	signupReq := models.SignUpRequest{
		Email:    "newuser@example.com",
		Password: "Password123",
		Name:     "New User",
	}

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/signup",
		signupReq,
		nil,
	)

	assert.Equal(t, http.StatusCreated, w.Code)

	// Test case 2: Duplicate email
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/signup",
		signupReq,
		nil,
	)

	assert.Equal(t, http.StatusConflict, w.Code)

	// Test case 3: Invalid request (missing required fields)
	invalidReq := models.SignUpRequest{
		Email: "invalid@example.com",
		// Missing password and name
	}

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/signup",
		invalidReq,
		nil,
	)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	// Test case 1: Successful login
	loginReq := models.LoginRequest{
		Email:    "testuser@example.com",
		Password: "testpassword",
	}

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/login",
		loginReq,
		nil,
	)

	assert.Equal(t, http.StatusOK, w.Code)

	// Test case 2: Invalid credentials
	invalidLoginReq := models.LoginRequest{
		Email:    "testuser@example.com",
		Password: "wrongpassword",
	}

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/login",
		invalidLoginReq,
		nil,
	)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Test case 3: User not found
	nonExistentUserReq := models.LoginRequest{
		Email:    "nonexistent@example.com",
		Password: "testpassword",
	}

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/login",
		nonExistentUserReq,
		nil,
	)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTokenValidation(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)
	secret := string(testCtx.JWTSecret)

	// Test case 1: Valid token
	w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/expenses", nil,
		testutils.AuthHeaders(testCtx.TestUserJWT))
	assert.Equal(t, http.StatusOK, w.Code)

	// Test case 2: Token without a subject
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/expenses", nil,
		testutils.AuthHeaders(testutils.SignToken(t, "", secret)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Test case 3: Token signed with another secret
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/expenses", nil,
		testutils.AuthHeaders(testutils.SignToken(t, testCtx.TestUserID, "another-secret")))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Test case 4: Expired token
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": testCtx.TestUserID,
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	expiredToken, err := expired.SignedString(testCtx.JWTSecret)
	require.NoError(t, err)
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/expenses", nil,
		testutils.AuthHeaders(expiredToken))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Test case 5: Query tokens are only read on the websocket route
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/expenses?token="+testCtx.TestUserJWT, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
