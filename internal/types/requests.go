package types

// GenerateImageRequest represents the request body for prompt-based image generation
type GenerateImageRequest struct {
	Prompt string `json:"prompt" binding:"required"`
	Size   string `json:"size,omitempty"` // Optional, defaults to 1024x1024
}

// GenerateImageResponse represents the response for any image generation
type GenerateImageResponse struct {
	ID       string `json:"id"`
	ImageURL string `json:"image_url"`
	Cached   bool   `json:"cached"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
}
