package api

// GenerateRequest is the POST /generate body.
type GenerateRequest struct {
	Topic     string `json:"topic"`
	Tone      string `json:"tone,omitempty"`
	SessionID string `json:"sessionId"`
}

// Post is the generated draft on the wire.
type Post struct {
	Content     string `json:"content"`
	ImagePrompt string `json:"imagePrompt"`
}

// Usage mirrors the authoritative snapshot on the wire.
// Remaining is -1 for authenticated (unlimited) identities.
type Usage struct {
	GenerationCount int  `json:"generationCount"`
	Remaining       int  `json:"remaining"`
	IsAuthenticated bool `json:"isAuthenticated"`
}

// GenerateResponse is the 200 body.
type GenerateResponse struct {
	Post  Post  `json:"post"`
	Usage Usage `json:"usage"`
}

// UsageResponse is the body of the read-only usage endpoint.
type UsageResponse struct {
	Usage Usage `json:"usage"`
}

// ErrorResponse is every non-2xx body. LimitReached and GenerationCount
// are only populated on quota-exhausted responses.
type ErrorResponse struct {
	Error           string `json:"error"`
	LimitReached    bool   `json:"limitReached,omitempty"`
	GenerationCount *int   `json:"generationCount,omitempty"`
	Message         string `json:"message,omitempty"`
}
