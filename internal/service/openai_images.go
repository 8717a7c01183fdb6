package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// ImageRequest is the payload queued for one DALL-E call
type ImageRequest struct {
	Prompt string
	Size   string
}

// ImageGenerationRequest represents a request to the DALL-E API
type ImageGenerationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	Quality        string `json:"quality"`
	ResponseFormat string `json:"response_format"`
}

// ImageGenerationResponse represents the response from DALL-E API
type ImageGenerationResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		URL           string `json:"url,omitempty"`
		RevisedPrompt string `json:"revised_prompt,omitempty"`
	} `json:"data"`
}

// APIError is a non-200 answer from the images API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Body)
}

// retryable reports whether another attempt could succeed. Client errors
// other than 429 (bad prompt, content policy) will not.
func (e *APIError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// OpenAIImageClient calls the OpenAI images endpoint. Its Generate method is
// the transport behind the image request limiter.
type OpenAIImageClient struct {
	apiKey      string
	apiURL      string
	client      *http.Client
	maxAttempts int
	backoff     func(attempt int) time.Duration
}

// NewOpenAIImageClient creates a client for the given endpoint
func NewOpenAIImageClient(apiKey, apiURL string) *OpenAIImageClient {
	return &OpenAIImageClient{
		apiKey: apiKey,
		apiURL: apiURL,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		maxAttempts: 3,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * time.Second
		},
	}
}

// Generate produces one image and returns the provider URL. Failed attempts
// are retried with a linear backoff before the error is returned.
func (c *OpenAIImageClient) Generate(ctx context.Context, req ImageRequest) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		imageURL, err := c.generateAttempt(ctx, req)
		if err == nil {
			if attempt > 1 {
				log.Printf("[OpenAIImageClient] Generated image on attempt %d", attempt)
			}
			return imageURL, nil
		}

		lastErr = err
		log.Printf("[OpenAIImageClient] Attempt %d/%d failed: %v", attempt, c.maxAttempts, err)

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return "", err
		}
		if attempt == c.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.backoff(attempt)):
		}
	}

	return "", fmt.Errorf("failed to generate image after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *OpenAIImageClient) generateAttempt(ctx context.Context, req ImageRequest) (string, error) {
	jsonData, err := json.Marshal(ImageGenerationRequest{
		Model:          "dall-e-3",
		Prompt:         req.Prompt,
		N:              1,
		Size:           req.Size,
		Quality:        "standard",
		ResponseFormat: "url",
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result ImageGenerationResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Data) == 0 {
		return "", fmt.Errorf("no image data in API response")
	}
	if result.Data[0].URL == "" {
		return "", fmt.Errorf("empty image URL in API response")
	}

	return result.Data[0].URL, nil
}
