package library

import (
	"maps"
	"slices"
)

// ID identifies a book, copy or user. It is compared by equality only.
type ID string

// NoRack marks a copy that is not placed on any rack.
const NoRack = 0

// AttributeValue is either a scalar or a list, depending on the attribute.
type AttributeValue struct {
	Scalar string
	List   []string
	IsList bool
}

// Matches reports list membership for list values and equality for scalars.
func (v AttributeValue) Matches(target string) bool {
	if v.IsList {
		return slices.Contains(v.List, target)
	}
	return v.Scalar == target
}

// Book holds canonical metadata shared by all copies with the same ID.
type Book struct {
	ID         ID                `json:"id"`
	Title      string            `json:"title"`
	Authors    []string          `json:"authors"`
	Publishers []string          `json:"publishers"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// clone returns a copy that shares no slices or maps with b.
func (b *Book) clone() *Book {
	out := *b
	out.Authors = slices.Clone(b.Authors)
	out.Publishers = slices.Clone(b.Publishers)
	out.Extra = maps.Clone(b.Extra)
	return &out
}

// NewBook is the input of AddBook.
type NewBook struct {
	ID         ID
	Title      string
	Authors    []string
	Publishers []string
	Extra      map[string]string
}

// core attribute names; aliases keep the names older catalogues used.
var attributeAliases = map[string]string{
	"book_id":      "book_id",
	"id":           "book_id",
	"title":        "title",
	"authors":      "authors",
	"author_id":    "authors",
	"publishers":   "publishers",
	"publisher_id": "publishers",
}

func isCoreAttribute(name string) bool {
	_, ok := attributeAliases[name]
	return ok
}

// Attribute looks up a searchable attribute by name.
func (b *Book) Attribute(name string) (AttributeValue, bool) {
	switch attributeAliases[name] {
	case "book_id":
		return AttributeValue{Scalar: string(b.ID)}, true
	case "title":
		return AttributeValue{Scalar: b.Title}, true
	case "authors":
		return AttributeValue{List: b.Authors, IsList: true}, true
	case "publishers":
		return AttributeValue{List: b.Publishers, IsList: true}, true
	}
	v, ok := b.Extra[name]
	if !ok {
		return AttributeValue{}, false
	}
	return AttributeValue{Scalar: v}, true
}

// Copy is one physical copy of a book. A copy is either on a rack
// (Rack != NoRack) or borrowed (BorrowedBy != ""), never both.
type Copy struct {
	ID         ID     `json:"id"`
	Book       *Book  `json:"book"`
	Rack       int    `json:"rack"`
	BorrowedBy ID     `json:"borrowed_by,omitempty"`
	DueDate    string `json:"due_date,omitempty"`
}

// Shelved reports whether the copy currently sits on a rack.
func (c *Copy) Shelved() bool { return c.Rack != NoRack }

// Borrowed reports whether the copy is currently lent out.
func (c *Copy) Borrowed() bool { return c.BorrowedBy != "" }

func (c *Copy) clone() *Copy {
	out := *c
	if c.Book != nil {
		out.Book = c.Book.clone()
	}
	return &out
}

// User is a borrower. Limit is nil when the user relies on the default limit.
type User struct {
	ID       ID     `json:"id"`
	Name     string `json:"name,omitempty"`
	Limit    *int   `json:"limit,omitempty"`
	borrowed []*Copy
}

// BorrowedCount returns the number of copies the user currently holds.
func (u *User) BorrowedCount() int { return len(u.borrowed) }

func (u *User) clone() *User {
	out := *u
	if u.Limit != nil {
		n := *u.Limit
		out.Limit = &n
	}
	out.borrowed = make([]*Copy, len(u.borrowed))
	for i, c := range u.borrowed {
		out.borrowed[i] = c.clone()
	}
	return &out
}
