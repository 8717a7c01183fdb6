package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chefscart/backend/internal/limiter"
	"github.com/chefscart/backend/internal/middleware"
	"github.com/chefscart/backend/internal/models"
	"github.com/chefscart/backend/internal/service"
	"github.com/chefscart/backend/internal/types"
)

const testToken = "test-token"

func init() {
	gin.SetMode(gin.TestMode)
}

type MockTokenValidator struct {
	mock.Mock
}

func (v *MockTokenValidator) ValidateToken(token string) (*types.TokenClaims, error) {
	args := v.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.TokenClaims), args.Error(1)
}

type MockImageService struct {
	mock.Mock
}

func (m *MockImageService) GenerateImageFromPrompt(ctx context.Context, userID, prompt, size string) (*models.GeneratedImage, error) {
	args := m.Called(ctx, userID, prompt, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GeneratedImage), args.Error(1)
}

func (m *MockImageService) GenerateMealImage(ctx context.Context, userID string, meal *types.Meal) (*models.GeneratedImage, error) {
	args := m.Called(ctx, userID, meal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GeneratedImage), args.Error(1)
}

func (m *MockImageService) ListImages(ctx context.Context, userID string, limit int) ([]*models.GeneratedImage, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.GeneratedImage), args.Error(1)
}

func (m *MockImageService) GetImage(ctx context.Context, userID string, id uuid.UUID) (*models.GeneratedImage, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GeneratedImage), args.Error(1)
}

func (m *MockImageService) LimiterStatus() limiter.Status {
	return m.Called().Get(0).(limiter.Status)
}

func setupImageRouter(t *testing.T, rateLimiter *middleware.RateLimiter) (*gin.Engine, *MockImageService) {
	t.Helper()

	validator := new(MockTokenValidator)
	validator.On("ValidateToken", testToken).Return(&types.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
		Email:            "cook@example.com",
	}, nil)
	validator.On("ValidateToken", mock.Anything).Return(nil, errors.New("invalid token"))

	svc := new(MockImageService)
	router := gin.New()
	NewImageHandler(svc, validator, rateLimiter).RegisterRoutes(router.Group("/api/v1"))
	return router, svc
}

func performRequest(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGenerateImageFromPrompt(t *testing.T) {
	router, svc := setupImageRouter(t, nil)
	image := &models.GeneratedImage{ID: uuid.New(), ImageURL: "https://cdn.example.com/a.png", Cached: true}
	svc.On("GenerateImageFromPrompt", mock.Anything, "user-1", "tacos al pastor", "1024x1792").Return(image, nil)

	w := performRequest(router, http.MethodPost, "/api/v1/images/generate", types.GenerateImageRequest{
		Prompt: "tacos al pastor",
		Size:   "1024x1792",
	})

	require.Equal(t, http.StatusOK, w.Code)
	var resp types.GenerateImageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, image.ID.String(), resp.ID)
	assert.Equal(t, image.ImageURL, resp.ImageURL)
	assert.True(t, resp.Cached)
	assert.Equal(t, "success", resp.Status)
	svc.AssertExpectations(t)
}

func TestGenerateImageFromPrompt_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		err    error
		status int
	}{
		{"missing prompt", map[string]string{"size": "1024x1024"}, nil, http.StatusBadRequest},
		{"blank prompt", types.GenerateImageRequest{Prompt: "  "}, service.ErrEmptyPrompt, http.StatusBadRequest},
		{"invalid size", types.GenerateImageRequest{Prompt: "soup", Size: "10x10"}, service.ErrInvalidSize, http.StatusBadRequest},
		{"gave up waiting", types.GenerateImageRequest{Prompt: "soup"}, context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"provider failure", types.GenerateImageRequest{Prompt: "soup"}, limiter.ErrGenerationFailed, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, svc := setupImageRouter(t, nil)
			if tt.err != nil {
				svc.On("GenerateImageFromPrompt", mock.Anything, "user-1", mock.Anything, mock.Anything).Return(nil, tt.err)
			}

			w := performRequest(router, http.MethodPost, "/api/v1/images/generate", tt.body)
			assert.Equal(t, tt.status, w.Code)
			if tt.err == nil {
				svc.AssertNotCalled(t, "GenerateImageFromPrompt", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestGenerateImage_RequiresAuth(t *testing.T) {
	router, svc := setupImageRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/images/generate", bytes.NewBufferString(`{"prompt":"soup"}`))
	req.Header.Set("Authorization", "Bearer stolen")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	svc.AssertNotCalled(t, "GenerateImageFromPrompt", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerateMealImage(t *testing.T) {
	router, svc := setupImageRouter(t, nil)
	image := &models.GeneratedImage{ID: uuid.New(), ImageURL: "https://cdn.example.com/meal.png"}
	svc.On("GenerateMealImage", mock.Anything, "user-1", mock.MatchedBy(func(m *types.Meal) bool {
		return m.Name == "Shakshuka" && m.MealType == "breakfast"
	})).Return(image, nil)

	w := performRequest(router, http.MethodPost, "/api/v1/images/generate-meal", types.Meal{
		Name:     "Shakshuka",
		Cuisine:  "North African",
		MealType: "breakfast",
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), image.ImageURL)
	svc.AssertExpectations(t)

	w = performRequest(router, http.MethodPost, "/api/v1/images/generate-meal", map[string]string{"cuisine": "Thai"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListImages(t *testing.T) {
	router, svc := setupImageRouter(t, nil)
	images := []*models.GeneratedImage{{ID: uuid.New(), UserID: "user-1", Prompt: "ramen"}}
	svc.On("ListImages", mock.Anything, "user-1", 5).Return(images, nil)
	svc.On("ListImages", mock.Anything, "user-1", 0).Return([]*models.GeneratedImage{}, nil)

	w := performRequest(router, http.MethodGet, "/api/v1/images?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Images []models.GeneratedImage `json:"images"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Images, 1)
	assert.Equal(t, "ramen", resp.Images[0].Prompt)

	w = performRequest(router, http.MethodGet, "/api/v1/images", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(router, http.MethodGet, "/api/v1/images?limit=lots", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetImage(t *testing.T) {
	router, svc := setupImageRouter(t, nil)
	found := &models.GeneratedImage{ID: uuid.New(), UserID: "user-1", ImageURL: "https://cdn.example.com/x.png"}
	missing := uuid.New()
	svc.On("GetImage", mock.Anything, "user-1", found.ID).Return(found, nil)
	svc.On("GetImage", mock.Anything, "user-1", missing).Return(nil, service.ErrImageNotFound)

	w := performRequest(router, http.MethodGet, "/api/v1/images/"+found.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), found.ImageURL)

	w = performRequest(router, http.MethodGet, "/api/v1/images/"+missing.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performRequest(router, http.MethodGet, "/api/v1/images/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLimiterStatus(t *testing.T) {
	router, svc := setupImageRouter(t, nil)
	svc.On("LimiterStatus").Return(limiter.Status{
		QueueLength:          3,
		IsProcessingActive:   true,
		RequestsInLastMinute: 50,
		Limits:               limiter.Limits{MaxPerMinute: 50, MaxBurst: 15},
	})

	w := performRequest(router, http.MethodGet, "/api/v1/images/limiter/status", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"queue_length": 3,
		"is_processing_active": true,
		"requests_in_last_minute": 50,
		"limits": {"max_per_minute": 50, "max_burst": 15}
	}`, w.Body.String())
}

func TestPerUserLimitOnlyAppliesToGeneration(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	router, svc := setupImageRouter(t, middleware.NewImageGenerationRateLimiter(client, 1, time.Hour))
	svc.On("GenerateImageFromPrompt", mock.Anything, "user-1", "pho", "").
		Return(&models.GeneratedImage{ID: uuid.New()}, nil)
	svc.On("ListImages", mock.Anything, "user-1", 0).Return([]*models.GeneratedImage{}, nil)

	w := performRequest(router, http.MethodPost, "/api/v1/images/generate", types.GenerateImageRequest{Prompt: "pho"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(router, http.MethodPost, "/api/v1/images/generate", types.GenerateImageRequest{Prompt: "pho"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = performRequest(router, http.MethodGet, "/api/v1/images", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(router, http.MethodGet, "/api/v1/images/quota", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var quota QuotaResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quota))
	assert.Equal(t, 0, quota.Remaining)
}

func TestQuota_DisabledWithoutRateLimiter(t *testing.T) {
	router, _ := setupImageRouter(t, nil)

	w := performRequest(router, http.MethodGet, "/api/v1/images/quota", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
