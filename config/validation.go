package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in one pass
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "\n")
}

// ValidateConfig checks cfg against the requirements of env
func ValidateConfig(cfg *Config, env Environment) error {
	var errs ValidationErrors

	if cfg.ServerPort == "" {
		errs = append(errs, ValidationError{"SERVER_PORT", "must be set"})
	}
	if cfg.JWTSecret == "" {
		errs = append(errs, ValidationError{"JWT_SECRET", "must be set"})
	}
	if cfg.OpenAIAPIKey == "" {
		errs = append(errs, ValidationError{"OPENAI_API_KEY", "OPENAI_API_KEY or OPENAI_API_KEY_FILE must be set"})
	}

	if cfg.ImageMaxPerMinute <= 0 {
		errs = append(errs, ValidationError{"IMAGE_MAX_PER_MINUTE", "must be positive"})
	}
	if cfg.ImageMaxBurst <= 0 {
		errs = append(errs, ValidationError{"IMAGE_MAX_BURST", "must be positive"})
	}
	if cfg.ImageDispatchTimeout < 0 {
		errs = append(errs, ValidationError{"IMAGE_DISPATCH_TIMEOUT", "must not be negative"})
	}
	if cfg.ImageInterRequestDelay < 0 {
		errs = append(errs, ValidationError{"IMAGE_INTER_REQUEST_DELAY", "must not be negative"})
	}
	if cfg.UserImageLimit <= 0 {
		errs = append(errs, ValidationError{"USER_IMAGE_LIMIT", "must be positive"})
	}
	if cfg.UserImageWindow <= 0 {
		errs = append(errs, ValidationError{"USER_IMAGE_WINDOW", "must be positive"})
	}

	// Outside development the credentials must be real
	if env == Production || env == CI {
		if cfg.DatabaseURL == "" && cfg.DBPassword == "" {
			errs = append(errs, ValidationError{"DB_PASSWORD", "DATABASE_URL or DB_PASSWORD is required"})
		}
		if cfg.RedisURL == "" && cfg.RedisPassword == "" {
			errs = append(errs, ValidationError{"REDIS_PASSWORD", "REDIS_URL or REDIS_PASSWORD is required"})
		}
	}
	if env == Production && cfg.S3BucketName == "" {
		errs = append(errs, ValidationError{"S3_BUCKET_NAME", "must be set in production"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
