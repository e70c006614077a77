// Package history keeps the user's saved posts, persisted as one JSON
// blob through the session.Store abstraction.
package history

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/postforge/postforge/pkg/session"
)

// StoreKey is the store key holding the saved-post list.
const StoreKey = "postforge-history"

// SavedPost is one saved generation.
type SavedPost struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	ImagePrompt string    `json:"imagePrompt"`
	Topic       string    `json:"topic"`
	Tone        string    `json:"tone,omitempty"`
	SavedAt     time.Time `json:"savedAt"`
}

// History manages the saved-post list. Safe for concurrent use.
type History struct {
	mu    sync.Mutex
	store session.Store
}

// New creates a history backed by the given store.
func New(store session.Store) *History {
	return &History{store: store}
}

// List returns saved posts, newest first.
func (h *History) List() []SavedPost {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.load()
}

// Save stores a post with a fresh id and timestamp and returns it.
func (h *History) Save(post SavedPost) (SavedPost, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	post.ID = uuid.NewString()
	post.SavedAt = time.Now().UTC()

	posts := append([]SavedPost{post}, h.load()...)
	if err := h.persist(posts); err != nil {
		return SavedPost{}, err
	}

	return post, nil
}

// Remove deletes the post with the given id. Removing an unknown id is
// not an error.
func (h *History) Remove(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	posts := h.load()
	kept := posts[:0]
	for _, p := range posts {
		if p.ID != id {
			kept = append(kept, p)
		}
	}

	return h.persist(kept)
}

// Clear removes all saved posts.
func (h *History) Clear() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.store.Clear(StoreKey)
}

// load must be called with the mutex held.
func (h *History) load() []SavedPost {
	stored, ok := h.store.Get(StoreKey)
	if !ok {
		return nil
	}

	var posts []SavedPost
	if err := json.Unmarshal([]byte(stored), &posts); err != nil {
		// Corrupt list: better an empty history than a stuck client.
		return nil
	}

	return posts
}

// persist must be called with the mutex held.
func (h *History) persist(posts []SavedPost) error {
	data, err := json.Marshal(posts)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	return h.store.Set(StoreKey, string(data))
}
