package library

import "slices"

// CopyRegistry owns the existence of copies. Rack placement on a Copy is
// written by the Library only.
type CopyRegistry struct {
	copies map[ID]*Copy
	order  []ID
}

func NewCopyRegistry() *CopyRegistry {
	return &CopyRegistry{copies: make(map[ID]*Copy)}
}

func (r *CopyRegistry) Get(id ID) (*Copy, bool) {
	c, ok := r.copies[id]
	return c, ok
}

// GetOrCreate returns the copy registered under id, creating an unplaced
// copy bound to book if none exists.
func (r *CopyRegistry) GetOrCreate(id ID, book *Book) (*Copy, bool) {
	if c, ok := r.copies[id]; ok {
		return c, false
	}
	c := &Copy{ID: id, Book: book}
	r.copies[id] = c
	r.order = append(r.order, id)
	return c, true
}

// Remove deletes the copy permanently and returns it.
func (r *CopyRegistry) Remove(id ID) (*Copy, bool) {
	c, ok := r.copies[id]
	if !ok {
		return nil, false
	}
	delete(r.copies, id)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	return c, true
}

// OfBook returns all copies of the book in registry order.
func (r *CopyRegistry) OfBook(bookID ID) []*Copy {
	var out []*Copy
	for _, id := range r.order {
		if c := r.copies[id]; c.Book.ID == bookID {
			out = append(out, c)
		}
	}
	return out
}

func (r *CopyRegistry) Len() int { return len(r.copies) }
