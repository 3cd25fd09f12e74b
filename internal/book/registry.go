package book

import "sync"

// Registry owns the books for every subscribed feed asset. Books are created
// on first reference and live until an explicit Remove; a reconnect never
// discards accumulated state.
type Registry struct {
	mu    sync.RWMutex
	books map[string]*Book
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{books: make(map[string]*Book)}
}

// GetOrCreate returns the book for assetID, creating an empty one if needed.
// instrumentID may be empty; it is backfilled once a message carries it.
func (r *Registry) GetOrCreate(assetID, instrumentID string) *Book {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.books[assetID]
	if !ok {
		b = New(instrumentID, assetID)
		r.books[assetID] = b
	} else if instrumentID != "" {
		b.SetInstrumentID(instrumentID)
	}
	return b
}

// Get returns the book for assetID without creating one. Read paths that
// must not fabricate state go through here.
func (r *Registry) Get(assetID string) (*Book, bool) {
	r.mu.RLock()
	b, ok := r.books[assetID]
	r.mu.RUnlock()
	return b, ok
}

// Remove tears down the book for assetID on explicit unsubscribe.
func (r *Registry) Remove(assetID string) {
	r.mu.Lock()
	delete(r.books, assetID)
	r.mu.Unlock()
}

// Len returns the number of live books.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.books)
}
