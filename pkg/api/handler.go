// Package api exposes the generation pipeline over HTTP with the wire
// contract the web client expects: one POST endpoint for generation, one
// GET endpoint for usage inspection, CORS preflight on both.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/postforge/postforge/pkg/gemini"
	"github.com/postforge/postforge/pkg/generator"
	"github.com/postforge/postforge/pkg/quota"
)

const maxRequestBody = 1 << 20 // 1 MiB

// Handler provides the HTTP endpoints of the generation service
type Handler struct {
	config Config
}

// Generate handles OPTIONS (CORS preflight) and POST (generation).
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	h.writeCORS(w)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
		// fall through
	default:
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()

	var req GenerateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := h.resolveUser(r)

	result, err := h.config.Generator.Generate(ctx, generator.Request{
		Topic:        req.Topic,
		Tone:         req.Tone,
		SessionToken: req.SessionID,
		UserID:       userID,
	})
	if err != nil {
		h.writeGenerateError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, GenerateResponse{
		Post: Post{
			Content:     result.Content,
			ImagePrompt: result.ImagePrompt,
		},
		Usage: snapshotUsage(result.Usage),
	})
}

// Usage handles OPTIONS and GET for the read-only usage snapshot. The
// identity is the bearer token when present, otherwise the sessionId
// query parameter.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	h.writeCORS(w)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet:
		// fall through
	default:
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID := h.resolveUser(r)
	sessionToken := r.URL.Query().Get("sessionId")

	snap, err := h.config.Generator.Enforcer().Usage(r.Context(), sessionToken, userID)
	if err != nil {
		if errors.Is(err, quota.ErrInvalidIdentity) {
			h.writeError(w, http.StatusBadRequest, "Invalid session ID format")
			return
		}
		h.config.Logger.Error("usage lookup failed", quota.Field{Key: "error", Value: err.Error()})
		h.writeError(w, http.StatusInternalServerError, "Failed to check usage")
		return
	}

	h.writeJSON(w, http.StatusOK, UsageResponse{Usage: snapshotUsage(*snap)})
}

// resolveUser turns a bearer token into a user id. Verification failures
// degrade to anonymous: the session identity still meters the request.
func (h *Handler) resolveUser(r *http.Request) string {
	if h.config.Verifier == nil {
		return ""
	}

	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return ""
	}

	userID, err := h.config.Verifier.Verify(r.Context(), strings.TrimPrefix(authz, "Bearer "))
	if err != nil {
		h.config.Logger.Debug("token verification failed",
			quota.Field{Key: "error", Value: err.Error()})
		return ""
	}

	return userID
}

func (h *Handler) writeGenerateError(w http.ResponseWriter, err error) {
	var quotaErr *generator.QuotaExceededError
	switch {
	case errors.As(err, &quotaErr):
		maxFree := h.config.Generator.Enforcer().MaxFree()
		h.writeJSON(w, http.StatusForbidden, ErrorResponse{
			Error:           "Free limit reached",
			LimitReached:    true,
			GenerationCount: &quotaErr.GenerationCount,
			Message: fmt.Sprintf(
				"You've used all %d free generations. Sign in with Google for unlimited access!", maxFree),
		})

	case errors.Is(err, generator.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, gemini.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again in a moment.")

	case errors.Is(err, gemini.ErrCreditsExhausted):
		h.writeError(w, http.StatusPaymentRequired, "AI credits exhausted. Please add credits to continue.")

	default:
		// Upstream, parse, and storage failures all surface as a
		// generic 500; the detail goes to the log only.
		h.config.Logger.Error("generation failed", quota.Field{Key: "error", Value: err.Error()})
		h.writeError(w, http.StatusInternalServerError, "Failed to generate post")
	}
}

func (h *Handler) writeCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", h.config.AllowedOrigin)
	w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Response already sent; nothing left to do.
		_ = err
	}
}

func snapshotUsage(snap quota.Snapshot) Usage {
	return Usage{
		GenerationCount: snap.GenerationCount,
		Remaining:       snap.Remaining,
		IsAuthenticated: snap.Authenticated,
	}
}
