package media

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Preview is a revocable handle to an image held for display.
type Preview struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	MIMEType  string    `json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`
}

// PreviewRegistry stores live previews by ID. URLs are the prefix plus the ID.
type PreviewRegistry struct {
	prefix string
	mu     sync.RWMutex
	items  map[string]*Image
}

// NewPreviewRegistry creates a registry whose preview URLs start with prefix.
func NewPreviewRegistry(prefix string) *PreviewRegistry {
	return &PreviewRegistry{
		prefix: prefix,
		items:  make(map[string]*Image),
	}
}

// Create registers img and returns its preview.
func (r *PreviewRegistry) Create(img *Image) *Preview {
	id := uuid.NewString()

	r.mu.Lock()
	r.items[id] = img
	r.mu.Unlock()

	return &Preview{
		ID:        id,
		URL:       r.prefix + id,
		MIMEType:  img.MIMEType,
		CreatedAt: time.Now(),
	}
}

// Get returns the image behind a live preview.
func (r *PreviewRegistry) Get(id string) (*Image, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	img, ok := r.items[id]
	return img, ok
}

// Revoke releases a preview. Revoking an unknown ID is a no-op.
func (r *PreviewRegistry) Revoke(id string) {
	r.mu.Lock()
	delete(r.items, id)
	r.mu.Unlock()
}

// Len returns the number of live previews.
func (r *PreviewRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
