package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chefscart/backend/internal/middleware"
	"github.com/chefscart/backend/internal/models"
	"github.com/chefscart/backend/internal/service"
	"github.com/chefscart/backend/internal/types"
)

// ImageHandler handles image generation requests
type ImageHandler struct {
	imageService service.IImageService
	validator    middleware.TokenValidator
	rateLimiter  *middleware.RateLimiter
}

// NewImageHandler creates a new image handler. rateLimiter may be nil.
func NewImageHandler(imageService service.IImageService, validator middleware.TokenValidator, rateLimiter *middleware.RateLimiter) *ImageHandler {
	return &ImageHandler{
		imageService: imageService,
		validator:    validator,
		rateLimiter:  rateLimiter,
	}
}

// QuotaResponse reports how many images the caller may still request
type QuotaResponse struct {
	Remaining int   `json:"remaining"`
	ResetAt   int64 `json:"reset_at"`
}

// GenerateImageFromPrompt generates an image from a text prompt
func (h *ImageHandler) GenerateImageFromPrompt(c *gin.Context) {
	var req types.GenerateImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, middleware.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
		return
	}

	image, err := h.imageService.GenerateImageFromPrompt(c.Request.Context(), middleware.UserID(c), req.Prompt, req.Size)
	if err != nil {
		h.generationError(c, err)
		return
	}

	c.JSON(http.StatusOK, generatedResponse(image))
}

// GenerateMealImage generates a photo for one meal of a plan
func (h *ImageHandler) GenerateMealImage(c *gin.Context) {
	var meal types.Meal
	if err := c.ShouldBindJSON(&meal); err != nil {
		c.JSON(http.StatusBadRequest, middleware.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
		return
	}

	image, err := h.imageService.GenerateMealImage(c.Request.Context(), middleware.UserID(c), &meal)
	if err != nil {
		h.generationError(c, err)
		return
	}

	c.JSON(http.StatusOK, generatedResponse(image))
}

// ListImages returns the caller's most recent images
func (h *ImageHandler) ListImages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, middleware.ErrorResponse{
				Error:   "Invalid limit",
				Message: "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	images, err := h.imageService.ListImages(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		log.Printf("[ImageHandler] list images for %s: %v", middleware.UserID(c), err)
		c.JSON(http.StatusInternalServerError, middleware.ErrorResponse{Error: "Failed to list images"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"images": images})
}

// GetImage returns one of the caller's images
func (h *ImageHandler) GetImage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, middleware.ErrorResponse{Error: "Invalid image ID"})
		return
	}

	image, err := h.imageService.GetImage(c.Request.Context(), middleware.UserID(c), id)
	if errors.Is(err, service.ErrImageNotFound) {
		c.JSON(http.StatusNotFound, middleware.ErrorResponse{Error: "Image not found"})
		return
	}
	if err != nil {
		log.Printf("[ImageHandler] get image %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, middleware.ErrorResponse{Error: "Failed to get image"})
		return
	}

	c.JSON(http.StatusOK, image)
}

// LimiterStatus reports the state of the shared generation queue
func (h *ImageHandler) LimiterStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.imageService.LimiterStatus())
}

// Quota reports the caller's remaining per-user budget
func (h *ImageHandler) Quota(c *gin.Context) {
	if h.rateLimiter == nil {
		c.JSON(http.StatusNotFound, middleware.ErrorResponse{Error: "Per-user limits are disabled"})
		return
	}

	remaining, reset, err := h.rateLimiter.GetRemainingRequests(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		log.Printf("[ImageHandler] quota for %s: %v", middleware.UserID(c), err)
		c.JSON(http.StatusServiceUnavailable, middleware.ErrorResponse{Error: "Quota unavailable"})
		return
	}

	c.JSON(http.StatusOK, QuotaResponse{Remaining: remaining, ResetAt: reset.Unix()})
}

func (h *ImageHandler) generationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyPrompt), errors.Is(err, service.ErrInvalidSize):
		c.JSON(http.StatusBadRequest, middleware.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, middleware.ErrorResponse{
			Error:   "Image generation timed out",
			Message: "The image was not ready in time, try again shortly",
		})
	default:
		log.Printf("[ImageHandler] generation failed for %s: %v", middleware.UserID(c), err)
		c.JSON(http.StatusInternalServerError, middleware.ErrorResponse{
			Error:   "Image generation failed",
			Message: err.Error(),
		})
	}
}

func generatedResponse(image *models.GeneratedImage) types.GenerateImageResponse {
	return types.GenerateImageResponse{
		ID:       image.ID.String(),
		ImageURL: image.ImageURL,
		Cached:   image.Cached,
		Status:   "success",
	}
}

// RegisterRoutes registers the image generation routes
func (h *ImageHandler) RegisterRoutes(router *gin.RouterGroup) {
	imageRoutes := router.Group("/images")
	imageRoutes.Use(middleware.AuthMiddleware(h.validator))

	imageRoutes.GET("", h.ListImages)
	imageRoutes.GET("/quota", h.Quota)
	imageRoutes.GET("/limiter/status", h.LimiterStatus)
	imageRoutes.GET("/:id", h.GetImage)

	generate := imageRoutes.Group("")
	// only generation spends the per-user budget
	if h.rateLimiter != nil {
		generate.Use(h.rateLimiter.RateLimitMiddleware())
	}
	generate.POST("/generate", h.GenerateImageFromPrompt)
	generate.POST("/generate-meal", h.GenerateMealImage)
}
