package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/postforge/postforge/pkg/api"
	"github.com/postforge/postforge/pkg/auth"
	"github.com/postforge/postforge/pkg/gemini"
	"github.com/postforge/postforge/pkg/generator"
	"github.com/postforge/postforge/pkg/quota"
	"github.com/postforge/postforge/storage/memory"
)

const testSession = "session_1700000000000_abcd1234efgh5"

type fakeUpstream struct {
	text string
	err  error
}

func (f *fakeUpstream) GenerateContent(context.Context, string, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func newTestHandler(t *testing.T, upstream generator.Upstream, verifier auth.Verifier) *api.Handler {
	t.Helper()

	enforcer, err := quota.NewEnforcer(memory.New(), quota.Config{MaxFree: 3})
	if err != nil {
		t.Fatalf("NewEnforcer failed: %v", err)
	}
	gen, err := generator.New(generator.Config{Enforcer: enforcer, Upstream: upstream})
	if err != nil {
		t.Fatalf("generator.New failed: %v", err)
	}
	handler, err := api.NewHandler(api.Config{Generator: gen, Verifier: verifier})
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}
	return handler
}

func postGenerate(handler *api.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	handler.Generate(w, req)
	return w
}

func TestNewHandler_Validation(t *testing.T) {
	if _, err := api.NewHandler(api.Config{}); err == nil {
		t.Error("Expected error for missing generator")
	}
}

func TestGenerate(t *testing.T) {
	upstream := &fakeUpstream{text: `{"post":{"content":"Hello #AI","imagePrompt":"a city skyline"}}`}
	handler := newTestHandler(t, upstream, nil)

	w := postGenerate(handler, `{"topic":"artificial intelligence","tone":"professional","sessionId":"`+testSession+`"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected CORS origin *, got %q", got)
	}

	var resp api.GenerateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Post.Content != "Hello #AI" {
		t.Errorf("Content = %q", resp.Post.Content)
	}
	if resp.Post.ImagePrompt != "a city skyline" {
		t.Errorf("ImagePrompt = %q", resp.Post.ImagePrompt)
	}
	if resp.Usage.GenerationCount != 1 || resp.Usage.Remaining != 2 || resp.Usage.IsAuthenticated {
		t.Errorf("Unexpected usage: %+v", resp.Usage)
	}
}

func TestGenerate_Preflight(t *testing.T) {
	handler := newTestHandler(t, &fakeUpstream{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/generate", nil)
	w := httptest.NewRecorder()
	handler.Generate(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "authorization") {
		t.Errorf("Expected allow-headers to include authorization, got %q", got)
	}
}

func TestGenerate_MethodNotAllowed(t *testing.T) {
	handler := newTestHandler(t, &fakeUpstream{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/generate", nil)
	w := httptest.NewRecorder()
	handler.Generate(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

func TestGenerate_InvalidBody(t *testing.T) {
	handler := newTestHandler(t, &fakeUpstream{}, nil)

	w := postGenerate(handler, "{not json", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestGenerate_InvalidInput(t *testing.T) {
	handler := newTestHandler(t, &fakeUpstream{text: `{"post":{"content":"ok"}}`}, nil)

	tests := []struct {
		name string
		body string
	}{
		{"short topic", `{"topic":"ab","sessionId":"` + testSession + `"}`},
		{"missing topic", `{"sessionId":"` + testSession + `"}`},
		{"bad session format", `{"topic":"a valid topic","sessionId":"nope"}`},
		{"missing session", `{"topic":"a valid topic"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postGenerate(handler, tt.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
			}
			var resp api.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to decode error body: %v", err)
			}
			if resp.Error == "" {
				t.Error("Expected error message in body")
			}
		})
	}
}

func TestGenerate_LimitReached(t *testing.T) {
	handler := newTestHandler(t, &fakeUpstream{text: `{"post":{"content":"ok"}}`}, nil)
	body := `{"topic":"a valid topic","sessionId":"` + testSession + `"}`

	for i := 0; i < 3; i++ {
		if w := postGenerate(handler, body, nil); w.Code != http.StatusOK {
			t.Fatalf("Generation %d: expected 200, got %d", i, w.Code)
		}
	}

	w := postGenerate(handler, body, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d: %s", w.Code, w.Body.String())
	}

	var resp api.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	if resp.Error != "Free limit reached" {
		t.Errorf("Error = %q", resp.Error)
	}
	if !resp.LimitReached {
		t.Error("Expected limitReached true")
	}
	if resp.GenerationCount == nil || *resp.GenerationCount != 3 {
		t.Errorf("Expected generationCount 3, got %v", resp.GenerationCount)
	}
	if !strings.Contains(resp.Message, "Sign in with Google") {
		t.Errorf("Unexpected message: %q", resp.Message)
	}
}

func TestGenerate_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"rate limited", gemini.ErrRateLimited, http.StatusTooManyRequests},
		{"credits exhausted", gemini.ErrCreditsExhausted, http.StatusPaymentRequired},
		{"upstream 500", &gemini.StatusError{StatusCode: 500, Body: "boom"}, http.StatusInternalServerError},
		{"empty response", gemini.ErrEmptyResponse, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestHandler(t, &fakeUpstream{err: tt.err}, nil)

			w := postGenerate(handler, `{"topic":"a valid topic","sessionId":"`+testSession+`"}`, nil)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}

			var resp api.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to decode error body: %v", err)
			}
			// Upstream internals never leak into the wire error
			if strings.Contains(resp.Error, "boom") {
				t.Errorf("Upstream detail leaked: %q", resp.Error)
			}
		})
	}
}

func TestGenerate_AuthenticatedBearer(t *testing.T) {
	verifier := auth.VerifierFunc(func(_ context.Context, token string) (string, error) {
		if token == "good-token" {
			return "user-42", nil
		}
		return "", auth.ErrInvalidToken
	})
	handler := newTestHandler(t, &fakeUpstream{text: `{"post":{"content":"ok"}}`}, verifier)

	// Authenticated: no session needed, unlimited
	for i := 1; i <= 5; i++ {
		w := postGenerate(handler, `{"topic":"a valid topic"}`, map[string]string{
			"Authorization": "Bearer good-token",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("Generation %d: expected 200, got %d: %s", i, w.Code, w.Body.String())
		}

		var resp api.GenerateResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if !resp.Usage.IsAuthenticated {
			t.Error("Expected authenticated usage")
		}
		if resp.Usage.Remaining != quota.Unlimited {
			t.Errorf("Expected remaining -1, got %d", resp.Usage.Remaining)
		}
	}
}

func TestGenerate_BearerDegradesToSession(t *testing.T) {
	verifier := auth.VerifierFunc(func(context.Context, string) (string, error) {
		return "", auth.ErrInvalidToken
	})
	handler := newTestHandler(t, &fakeUpstream{text: `{"post":{"content":"ok"}}`}, verifier)

	// A rejected bearer token falls back to the session identity
	w := postGenerate(handler, `{"topic":"a valid topic","sessionId":"`+testSession+`"}`, map[string]string{
		"Authorization": "Bearer expired-token",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp api.GenerateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Usage.IsAuthenticated {
		t.Error("Rejected bearer token must not authenticate")
	}
	if resp.Usage.GenerationCount != 1 {
		t.Errorf("Expected session to be metered, got count %d", resp.Usage.GenerationCount)
	}
}

func TestUsage(t *testing.T) {
	handler := newTestHandler(t, &fakeUpstream{text: `{"post":{"content":"ok"}}`}, nil)

	// Consume one slot first
	if w := postGenerate(handler, `{"topic":"a valid topic","sessionId":"`+testSession+`"}`, nil); w.Code != http.StatusOK {
		t.Fatalf("Generate failed: %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/usage?sessionId="+testSession, nil)
	w := httptest.NewRecorder()
	handler.Usage(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp api.UsageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Usage.GenerationCount != 1 || resp.Usage.Remaining != 2 {
		t.Errorf("Unexpected usage: %+v", resp.Usage)
	}

	// Usage is read-only: repeated calls do not consume
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.Usage(w, httptest.NewRequest(http.MethodGet, "/usage?sessionId="+testSession, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Usage failed: %d", w.Code)
		}
	}
	w = httptest.NewRecorder()
	handler.Usage(w, httptest.NewRequest(http.MethodGet, "/usage?sessionId="+testSession, nil))
	var again api.UsageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &again); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if again.Usage.GenerationCount != 1 {
		t.Errorf("Usage consumed quota: count %d", again.Usage.GenerationCount)
	}
}

func TestUsage_InvalidSession(t *testing.T) {
	handler := newTestHandler(t, &fakeUpstream{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/usage?sessionId=garbage", nil)
	w := httptest.NewRecorder()
	handler.Usage(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}

	var resp api.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	if resp.Error != "Invalid session ID format" {
		t.Errorf("Error = %q", resp.Error)
	}
}

func TestUsage_Preflight(t *testing.T) {
	handler := newTestHandler(t, &fakeUpstream{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/usage", nil)
	w := httptest.NewRecorder()
	handler.Usage(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}
}
