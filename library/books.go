package library

import (
	"maps"
	"slices"
)

// BookRegistry stores book metadata keyed by book ID, in creation order.
type BookRegistry struct {
	books map[ID]*Book
	order []ID
}

func NewBookRegistry() *BookRegistry {
	return &BookRegistry{books: make(map[ID]*Book)}
}

func (r *BookRegistry) Get(id ID) (*Book, bool) {
	b, ok := r.books[id]
	return b, ok
}

// GetOrCreate returns the existing book for nb.ID untouched, or registers a
// new one. The second result reports whether a book was created.
func (r *BookRegistry) GetOrCreate(nb NewBook) (*Book, bool) {
	if b, ok := r.books[nb.ID]; ok {
		return b, false
	}
	b := &Book{
		ID:         nb.ID,
		Title:      nb.Title,
		Authors:    slices.Clone(nb.Authors),
		Publishers: slices.Clone(nb.Publishers),
	}
	for k, v := range nb.Extra {
		if isCoreAttribute(k) {
			continue
		}
		if b.Extra == nil {
			b.Extra = make(map[string]string, len(nb.Extra))
		}
		b.Extra[k] = v
	}
	r.books[b.ID] = b
	r.order = append(r.order, b.ID)
	return b, true
}

// All returns every book in creation order.
func (r *BookRegistry) All() []*Book {
	out := make([]*Book, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.books[id])
	}
	return out
}

func (r *BookRegistry) Len() int { return len(r.books) }

// extraKeys is used for logging only.
func extraKeys(b *Book) []string {
	return slices.Sorted(maps.Keys(b.Extra))
}
