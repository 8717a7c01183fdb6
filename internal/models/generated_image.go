package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GeneratedImage records one image produced for a user
type GeneratedImage struct {
	ID        uuid.UUID `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UserID    string    `gorm:"size:64;index;not null" json:"user_id"`
	Prompt    string    `gorm:"type:text;not null" json:"prompt"`
	Size      string    `gorm:"size:16;not null" json:"size"`
	ImageURL  string    `gorm:"type:text;not null" json:"image_url"`
	// SourceURL is the provider URL before mirroring; it expires
	SourceURL string `gorm:"type:text" json:"source_url,omitempty"`
	Cached    bool   `gorm:"not null;default:false" json:"cached"`
}

// TableName returns the table name for the GeneratedImage model
func (GeneratedImage) TableName() string {
	return "generated_images"
}

// BeforeCreate assigns an ID when the caller did not
func (g *GeneratedImage) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}
