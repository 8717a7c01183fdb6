package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/chefscart/backend/internal/limiter"
	"github.com/chefscart/backend/internal/models"
	"github.com/chefscart/backend/internal/types"
)

// IImageService defines the interface for meal image operations
type IImageService interface {
	GenerateImageFromPrompt(ctx context.Context, userID, prompt, size string) (*models.GeneratedImage, error)
	GenerateMealImage(ctx context.Context, userID string, meal *types.Meal) (*models.GeneratedImage, error)
	ListImages(ctx context.Context, userID string, limit int) ([]*models.GeneratedImage, error)
	GetImage(ctx context.Context, userID string, id uuid.UUID) (*models.GeneratedImage, error)
	LimiterStatus() limiter.Status
}

// ImageQueue is the process-wide gate in front of the images API.
// *limiter.RequestLimiter[ImageRequest, string] implements it.
type ImageQueue interface {
	Submit(ctx context.Context, req ImageRequest) (string, error)
	Status() limiter.Status
}

// IImageCache defines the prompt cache operations
type IImageCache interface {
	Get(ctx context.Context, req ImageRequest) (string, bool, error)
	Set(ctx context.Context, req ImageRequest, url string) error
}

// IImageStore defines the image history operations
type IImageStore interface {
	Record(ctx context.Context, image *models.GeneratedImage) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.GeneratedImage, error)
	Get(ctx context.Context, id uuid.UUID) (*models.GeneratedImage, error)
}

// ImageUploader mirrors generated images to durable storage.
// *config.S3Config implements it.
type ImageUploader interface {
	PutPNG(ctx context.Context, key string, data []byte) (string, error)
}
