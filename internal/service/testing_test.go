package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chefscart/backend/internal/models"
)

// fakeImagesAPI serves the images endpoint and the generated image bytes.
type fakeImagesAPI struct {
	server   *httptest.Server
	calls    atomic.Int32
	mu       sync.Mutex
	prompts  []string
	statuses []int // status per call, 200 once exhausted
}

func newFakeImagesAPI(t *testing.T, statuses ...int) *fakeImagesAPI {
	api := &fakeImagesAPI{statuses: statuses}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/images/generations", api.generate)
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG fake"))
	})
	api.server = httptest.NewServer(mux)
	t.Cleanup(api.server.Close)
	return api
}

func (a *fakeImagesAPI) generate(w http.ResponseWriter, r *http.Request) {
	n := int(a.calls.Add(1))

	var req ImageGenerationRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	a.mu.Lock()
	a.prompts = append(a.prompts, req.Prompt)
	status := http.StatusOK
	if n <= len(a.statuses) {
		status = a.statuses[n-1]
	}
	a.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer sk-test" {
		status = http.StatusUnauthorized
	}
	if status != http.StatusOK {
		http.Error(w, `{"error":{"message":"nope"}}`, status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"created": time.Now().Unix(),
		"data":    []map[string]string{{"url": a.server.URL + "/files/image.png"}},
	})
}

func (a *fakeImagesAPI) endpoint() string {
	return a.server.URL + "/v1/images/generations"
}

func (a *fakeImagesAPI) client() *OpenAIImageClient {
	c := NewOpenAIImageClient("sk-test", a.endpoint())
	c.backoff = func(int) time.Duration { return time.Millisecond }
	return c
}

type fakeUploader struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeUploader) PutPNG(_ context.Context, key string, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	return "https://meal-images.s3.amazonaws.com/" + key, nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.GeneratedImage{}))
	return db
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}
