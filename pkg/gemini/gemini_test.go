package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func successBody(text string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{
				"role":  "model",
				"parts": []map[string]string{{"text": text}},
			}},
		},
	})
	return string(body)
}

func TestGenerateContent(t *testing.T) {
	var gotPath, gotKey string
	var gotReq generateRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(successBody("generated text")))
	}))
	defer server.Close()

	client := New("test-key", WithBaseURL(server.URL))
	text, err := client.GenerateContent(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("GenerateContent failed: %v", err)
	}
	if text != "generated text" {
		t.Errorf("Expected %q, got %q", "generated text", text)
	}

	if gotPath != "/models/gemini-2.5-flash:generateContent" {
		t.Errorf("Unexpected path %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("Expected api key header, got %q", gotKey)
	}
	if gotReq.SystemInstruction == nil || len(gotReq.SystemInstruction.Parts) != 1 ||
		gotReq.SystemInstruction.Parts[0].Text != "system prompt" {
		t.Errorf("System instruction not carried: %+v", gotReq.SystemInstruction)
	}
	if len(gotReq.Contents) != 1 || gotReq.Contents[0].Role != "user" ||
		gotReq.Contents[0].Parts[0].Text != "user prompt" {
		t.Errorf("User turn not carried: %+v", gotReq.Contents)
	}
}

func TestGenerateContent_CustomModel(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(successBody("ok")))
	}))
	defer server.Close()

	client := New("k", WithBaseURL(server.URL), WithModel("gemini-2.0-pro"))
	if _, err := client.GenerateContent(context.Background(), "s", "u"); err != nil {
		t.Fatalf("GenerateContent failed: %v", err)
	}
	if gotPath != "/models/gemini-2.0-pro:generateContent" {
		t.Errorf("Unexpected path %q", gotPath)
	}
}

func TestGenerateContent_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, ErrRateLimited},
		{"credits exhausted", http.StatusPaymentRequired, `{"error":"no credits"}`, ErrCreditsExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := New("k", WithBaseURL(server.URL))
			_, err := client.GenerateContent(context.Background(), "s", "u")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestGenerateContent_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"upstream broke"}`))
	}))
	defer server.Close()

	client := New("k", WithBaseURL(server.URL))
	_, err := client.GenerateContent(context.Background(), "s", "u")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", statusErr.StatusCode)
	}
	if statusErr.Body != `{"error":"upstream broke"}` {
		t.Errorf("Expected body carried, got %q", statusErr.Body)
	}
}

func TestGenerateContent_EmptyResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no candidates", `{"candidates":[]}`},
		{"no parts", `{"candidates":[{"content":{"parts":[]}}]}`},
		{"empty text", `{"candidates":[{"content":{"parts":[{"text":""}]}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := New("k", WithBaseURL(server.URL))
			_, err := client.GenerateContent(context.Background(), "s", "u")
			if !errors.Is(err, ErrEmptyResponse) {
				t.Errorf("Expected ErrEmptyResponse, got %v", err)
			}
		})
	}
}

func TestGenerateContent_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(successBody("ok")))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := New("k", WithBaseURL(server.URL))
	if _, err := client.GenerateContent(ctx, "s", "u"); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
