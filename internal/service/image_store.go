package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chefscart/backend/internal/models"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// ErrImageNotFound is returned when an image record does not exist
var ErrImageNotFound = errors.New("image not found")

// ImageStore persists the history of generated images
type ImageStore struct {
	db *gorm.DB
}

// NewImageStore creates a new ImageStore instance
func NewImageStore(db *gorm.DB) *ImageStore {
	return &ImageStore{db: db}
}

// Record saves a generated image
func (s *ImageStore) Record(ctx context.Context, image *models.GeneratedImage) error {
	if err := s.db.WithContext(ctx).Create(image).Error; err != nil {
		return fmt.Errorf("failed to record image: %w", err)
	}
	return nil
}

// ListByUser returns a user's images, newest first
func (s *ImageStore) ListByUser(ctx context.Context, userID string, limit int) ([]*models.GeneratedImage, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var images []*models.GeneratedImage
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	return images, nil
}

// Get returns a single image by ID
func (s *ImageStore) Get(ctx context.Context, id uuid.UUID) (*models.GeneratedImage, error) {
	var image models.GeneratedImage
	err := s.db.WithContext(ctx).First(&image, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrImageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	return &image, nil
}
