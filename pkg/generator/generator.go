// Package generator sequences a single post generation: input validation,
// quota check, upstream model call, response parsing, usage reporting.
// Failures are terminal for the invocation; retries are the caller's call.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/postforge/postforge/pkg/gemini"
	"github.com/postforge/postforge/pkg/quota"
)

const (
	minTopicLength = 3
	maxTopicLength = 500
)

// Upstream is the generative-language collaborator. *gemini.Client
// satisfies it; tests substitute fakes.
type Upstream interface {
	GenerateContent(ctx context.Context, system, user string) (string, error)
}

// Request is one generation request. Exactly one of SessionToken/UserID
// identifies the caller; UserID takes precedence.
type Request struct {
	Topic        string
	Tone         string
	SessionToken string
	UserID       string
}

// Result is a successful generation.
type Result struct {
	Content     string
	ImagePrompt string
	Usage       quota.Snapshot
}

// Config holds generator configuration.
type Config struct {
	// Enforcer is the quota authority (required).
	Enforcer *quota.Enforcer

	// Upstream is the generative-language client (required).
	Upstream Upstream

	// Logger is used for structured logging (default: NoopLogger).
	Logger quota.Logger

	// Metrics is used for tracking pipeline outcomes (default: NoopMetrics).
	Metrics quota.Metrics
}

// Generator orchestrates the generation pipeline.
type Generator struct {
	config Config
}

// New creates a generator.
func New(config Config) (*Generator, error) {
	if config.Enforcer == nil {
		return nil, fmt.Errorf("enforcer is required")
	}
	if config.Upstream == nil {
		return nil, fmt.Errorf("upstream is required")
	}
	if config.Logger == nil {
		config.Logger = &quota.NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &quota.NoopMetrics{}
	}

	return &Generator{config: config}, nil
}

// Enforcer exposes the quota authority for usage inspection surfaces.
func (g *Generator) Enforcer() *quota.Enforcer {
	return g.config.Enforcer
}

// Generate runs the full pipeline and returns the post draft together
// with the authoritative usage snapshot.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	res, err := g.generate(ctx, req)
	g.config.Metrics.RecordGeneration(outcome(err), time.Since(start))
	return res, err
}

func (g *Generator) generate(ctx context.Context, req Request) (*Result, error) {
	topic, err := validateTopic(req.Topic)
	if err != nil {
		return nil, err
	}
	tone := normalizeTone(req.Tone)

	snap, err := g.config.Enforcer.CheckAndIncrement(ctx, req.SessionToken, req.UserID)
	if err != nil {
		if errors.Is(err, quota.ErrInvalidIdentity) {
			return nil, fmt.Errorf("%w: invalid session ID format", ErrInvalidInput)
		}
		return nil, err
	}
	if !snap.CanGenerate {
		return nil, &QuotaExceededError{GenerationCount: snap.GenerationCount}
	}

	text, err := g.config.Upstream.GenerateContent(ctx, systemPrompt(tone), userPrompt(tone, topic))
	if err != nil {
		g.refund(ctx, req)
		g.config.Logger.Error("upstream call failed",
			quota.Field{Key: "tone", Value: tone},
			quota.Field{Key: "error", Value: err.Error()})
		return nil, err
	}

	draft, err := ParseDraft(text)
	if err != nil {
		g.refund(ctx, req)
		g.config.Logger.Error("failed to parse model response",
			quota.Field{Key: "error", Value: err.Error()})
		return nil, err
	}

	g.config.Logger.Info("post generated",
		quota.Field{Key: "tone", Value: tone},
		quota.Field{Key: "authenticated", Value: snap.Authenticated},
		quota.Field{Key: "count", Value: snap.GenerationCount})

	return &Result{
		Content:     draft.Content,
		ImagePrompt: draft.ImagePrompt,
		Usage:       *snap,
	}, nil
}

// refund returns the slot charged for a generation that produced no post.
// Best-effort: a refund failure only costs the caller a free slot.
func (g *Generator) refund(ctx context.Context, req Request) {
	if err := g.config.Enforcer.Refund(ctx, req.SessionToken, req.UserID); err != nil {
		g.config.Logger.Warn("usage refund failed",
			quota.Field{Key: "error", Value: err.Error()})
	}
}

func validateTopic(topic string) (string, error) {
	trimmed := strings.TrimSpace(topic)
	if trimmed == "" {
		return "", fmt.Errorf("%w: topic is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(trimmed) < minTopicLength {
		return "", fmt.Errorf("%w: topic must be at least %d characters", ErrInvalidInput, minTopicLength)
	}
	if utf8.RuneCountInString(trimmed) > maxTopicLength {
		return "", fmt.Errorf("%w: topic must be less than %d characters", ErrInvalidInput, maxTopicLength)
	}
	return trimmed, nil
}

// outcome buckets an error for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, gemini.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, gemini.ErrCreditsExhausted):
		return "credits_exhausted"
	case errors.Is(err, gemini.ErrEmptyResponse):
		return "empty_response"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	default:
		return "error"
	}
}
