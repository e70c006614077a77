package api

import (
	"fmt"

	"github.com/postforge/postforge/pkg/auth"
	"github.com/postforge/postforge/pkg/generator"
	"github.com/postforge/postforge/pkg/quota"
)

// Config holds configuration for the generation API handler
type Config struct {
	// Generator runs the generation pipeline (required)
	Generator *generator.Generator

	// Verifier resolves bearer tokens to user ids (optional)
	// If nil, every caller is anonymous
	Verifier auth.Verifier

	// AllowedOrigin is the CORS origin (default: "*")
	AllowedOrigin string

	// Logger is used for structured logging (default: NoopLogger)
	Logger quota.Logger
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Generator == nil {
		return fmt.Errorf("generator is required")
	}
	return nil
}

// NewHandler creates a new generation API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Set defaults
	if config.AllowedOrigin == "" {
		config.AllowedOrigin = "*"
	}
	if config.Logger == nil {
		config.Logger = &quota.NoopLogger{}
	}

	return &Handler{
		config: config,
	}, nil
}
