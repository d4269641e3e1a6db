package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/redlinehq/redline/internal/domain"
	"github.com/redlinehq/redline/internal/domain/document"
)

// Documents is the in-memory document store. Put replaces any previous
// document with the same ID; Get returns deep copies.
type Documents struct {
	mu   sync.RWMutex
	docs map[string]*document.DocObj
}

// NewDocuments creates an empty document store.
func NewDocuments() *Documents {
	return &Documents{docs: make(map[string]*document.DocObj)}
}

// Put stores a document, replacing any existing one with the same ID.
func (s *Documents) Put(_ context.Context, doc *document.DocObj) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc.Clone()
	return nil
}

// Get retrieves a document by ID.
func (s *Documents) Get(_ context.Context, id string) (*document.DocObj, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
	}
	return doc.Clone(), nil
}

// Delete removes a document. Missing documents are not an error.
func (s *Documents) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}
