package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/chefscart/backend/internal/limiter"
	"github.com/chefscart/backend/internal/models"
	"github.com/chefscart/backend/internal/types"
)

const (
	DefaultImageSize = "1024x1024"
	maxPromptLength  = 900
)

var (
	// ErrEmptyPrompt is returned when there is nothing to draw
	ErrEmptyPrompt = errors.New("prompt must not be empty")
	// ErrInvalidSize is returned for sizes the images API does not offer
	ErrInvalidSize = errors.New("size must be one of: 1024x1024, 1024x1792, 1792x1024")
)

var validSizes = map[string]bool{
	"1024x1024": true,
	"1024x1792": true,
	"1792x1024": true,
}

// ImageServiceDeps are the collaborators of an ImageService. Only Queue is
// required.
type ImageServiceDeps struct {
	Queue    ImageQueue
	Uploader ImageUploader
	Cache    IImageCache
	Store    IImageStore
	// HTTPClient downloads provider images before mirroring them
	HTTPClient *http.Client
}

// ImageService handles meal image generation and storage
type ImageService struct {
	queue    ImageQueue
	uploader ImageUploader
	cache    IImageCache
	store    IImageStore
	client   *http.Client
}

// NewImageService creates a new ImageService instance
func NewImageService(deps ImageServiceDeps) *ImageService {
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ImageService{
		queue:    deps.Queue,
		uploader: deps.Uploader,
		cache:    deps.Cache,
		store:    deps.Store,
		client:   client,
	}
}

// GenerateMealImage generates a food photo for one meal of a plan
func (s *ImageService) GenerateMealImage(ctx context.Context, userID string, meal *types.Meal) (*models.GeneratedImage, error) {
	if meal == nil || strings.TrimSpace(meal.Name) == "" {
		return nil, ErrEmptyPrompt
	}

	prompt := buildMealImagePrompt(meal)
	log.Printf("[ImageService] Generating image for meal '%s'", meal.Name)

	image, err := s.GenerateImageFromPrompt(ctx, userID, prompt, DefaultImageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate meal image: %w", err)
	}
	return image, nil
}

// GenerateImageFromPrompt generates an image from a text prompt. Every call
// that reaches the provider goes through the shared request queue.
func (s *ImageService) GenerateImageFromPrompt(ctx context.Context, userID, prompt, size string) (*models.GeneratedImage, error) {
	req, err := normalizeImageRequest(prompt, size)
	if err != nil {
		return nil, err
	}

	image := &models.GeneratedImage{
		UserID: userID,
		Prompt: req.Prompt,
		Size:   req.Size,
	}

	if url, ok := s.cachedURL(ctx, req); ok {
		image.ImageURL = url
		image.Cached = true
		s.record(ctx, image)
		return image, nil
	}

	sourceURL, err := s.queue.Submit(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}
	image.SourceURL = sourceURL
	image.ImageURL = sourceURL

	if s.uploader != nil {
		mirrored, err := s.mirror(ctx, sourceURL)
		if err != nil {
			log.Printf("[ImageService] Failed to upload to S3, returning original URL: %v", err)
		} else {
			image.ImageURL = mirrored
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, req, image.ImageURL); err != nil {
			log.Printf("[ImageService] %v", err)
		}
	}
	s.record(ctx, image)

	return image, nil
}

// ListImages returns the caller's most recent images
func (s *ImageService) ListImages(ctx context.Context, userID string, limit int) ([]*models.GeneratedImage, error) {
	if s.store == nil {
		return []*models.GeneratedImage{}, nil
	}
	return s.store.ListByUser(ctx, userID, limit)
}

// GetImage returns one of the caller's images
func (s *ImageService) GetImage(ctx context.Context, userID string, id uuid.UUID) (*models.GeneratedImage, error) {
	if s.store == nil {
		return nil, ErrImageNotFound
	}
	image, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if image.UserID != userID {
		return nil, ErrImageNotFound
	}
	return image, nil
}

// LimiterStatus reports the state of the shared request queue
func (s *ImageService) LimiterStatus() limiter.Status {
	return s.queue.Status()
}

func (s *ImageService) cachedURL(ctx context.Context, req ImageRequest) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	url, ok, err := s.cache.Get(ctx, req)
	if err != nil {
		log.Printf("[ImageService] %v", err)
		return "", false
	}
	return url, ok
}

func (s *ImageService) record(ctx context.Context, image *models.GeneratedImage) {
	if s.store == nil {
		return
	}
	if err := s.store.Record(ctx, image); err != nil {
		log.Printf("[ImageService] %v", err)
	}
}

// mirror downloads a provider image, whose URL expires, and re-uploads it
func (s *ImageService) mirror(ctx context.Context, imageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download image, status: %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read image data: %w", err)
	}

	key := fmt.Sprintf("meal-images/%s.png", uuid.New().String())
	return s.uploader.PutPNG(ctx, key, imageData)
}

func normalizeImageRequest(prompt, size string) (ImageRequest, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ImageRequest{}, ErrEmptyPrompt
	}
	if utf8.RuneCountInString(prompt) > maxPromptLength {
		prompt = string([]rune(prompt)[:maxPromptLength])
	}

	if size == "" {
		size = DefaultImageSize
	}
	if !validSizes[size] {
		return ImageRequest{}, ErrInvalidSize
	}

	return ImageRequest{Prompt: prompt, Size: size}, nil
}

// buildMealImagePrompt creates a food photography prompt for a meal
func buildMealImagePrompt(meal *types.Meal) string {
	var b strings.Builder
	b.WriteString("A professional food photography shot of ")
	b.WriteString(strings.ToLower(strings.TrimSpace(meal.Name)))

	if meal.Description != "" {
		b.WriteString(", ")
		b.WriteString(strings.ToLower(strings.TrimSpace(meal.Description)))
	}

	if cuisine := strings.ToLower(strings.TrimSpace(meal.Cuisine)); cuisine != "" && cuisine != "unknown" {
		fmt.Fprintf(&b, ", %s style", cuisine)
	}

	switch strings.ToLower(meal.MealType) {
	case "breakfast":
		b.WriteString(", appetizing breakfast plate")
	case "lunch":
		b.WriteString(", fresh lunch served on a simple plate")
	case "dinner":
		b.WriteString(", elegantly presented dinner")
	case "snack":
		b.WriteString(", delicious snack")
	case "dessert":
		b.WriteString(", beautifully plated dessert")
	}

	b.WriteString(", natural lighting, shallow depth of field, home kitchen setting, high resolution, appetizing colors")
	return b.String()
}
