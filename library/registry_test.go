package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookAttributes(t *testing.T) {
	b := &Book{
		ID:         "b1",
		Title:      "Dune",
		Authors:    []string{"Frank Herbert", "Frank Herbert"},
		Publishers: []string{"Chilton"},
		Extra:      map[string]string{"color": "red"},
	}

	tests := []struct {
		name      string
		attribute string
		target    string
		found     bool
		matches   bool
	}{
		{"title equal", "title", "Dune", true, true},
		{"title is not substring match", "title", "Dun", true, false},
		{"author membership", "authors", "Frank Herbert", true, true},
		{"author alias", "author_id", "Frank Herbert", true, true},
		{"publisher alias", "publisher_id", "Chilton", true, true},
		{"book id", "book_id", "b1", true, true},
		{"extra attribute", "color", "red", true, true},
		{"extra attribute mismatch", "color", "blue", true, false},
		{"case sensitive", "color", "Red", true, false},
		{"unknown attribute", "genre", "scifi", false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, ok := b.Attribute(tc.attribute)
			assert.Equal(t, tc.found, ok)
			if ok {
				assert.Equal(t, tc.matches, v.Matches(tc.target))
			}
		})
	}
}

func TestBookRegistryIgnoresCoreNamesInExtra(t *testing.T) {
	r := NewBookRegistry()
	b, created := r.GetOrCreate(NewBook{ID: "b", Title: "Real", Extra: map[string]string{"title": "Fake", "genre": "poetry"}})
	require.True(t, created)
	assert.Equal(t, "Real", b.Title)
	assert.NotContains(t, b.Extra, "title")
	assert.Equal(t, "poetry", b.Extra["genre"])

	again, created := r.GetOrCreate(NewBook{ID: "b", Title: "Other"})
	assert.False(t, created)
	assert.Same(t, b, again)
	assert.Equal(t, 1, r.Len())
}

func TestBookRegistryCopiesInputSlices(t *testing.T) {
	authors := []string{"a"}
	r := NewBookRegistry()
	b, _ := r.GetOrCreate(NewBook{ID: "b", Authors: authors})
	authors[0] = "changed"
	assert.Equal(t, []string{"a"}, b.Authors)
}

func TestCopyRegistry(t *testing.T) {
	r := NewCopyRegistry()
	b1 := &Book{ID: "b1"}
	b2 := &Book{ID: "b2"}

	r.GetOrCreate("1", b1)
	r.GetOrCreate("2", b2)
	r.GetOrCreate("3", b1)
	_, created := r.GetOrCreate("1", b2)
	assert.False(t, created)

	of := r.OfBook("b1")
	require.Len(t, of, 2)
	assert.Equal(t, ID("1"), of[0].ID)
	assert.Equal(t, ID("3"), of[1].ID)

	c, ok := r.Remove("1")
	require.True(t, ok)
	assert.Equal(t, ID("1"), c.ID)
	_, ok = r.Remove("1")
	assert.False(t, ok)
	assert.Equal(t, 2, r.Len())
	assert.Len(t, r.OfBook("b1"), 1)
}

func TestUserRegistryLimits(t *testing.T) {
	r := NewUserRegistry(DefaultBorrowLimit)
	u := r.GetOrCreate("u")
	assert.Equal(t, DefaultBorrowLimit, r.Limit(u))
	assert.Same(t, u, r.GetOrCreate("u"))

	require.NoError(t, r.SetDefaultLimit(2))
	assert.Equal(t, 2, r.Limit(u))

	_, err := r.SetLimit("u", 7)
	require.NoError(t, err)
	require.NoError(t, r.SetDefaultLimit(1))
	assert.Equal(t, 7, r.Limit(u))

	assert.ErrorIs(t, r.SetDefaultLimit(-1), ErrValidation)
	assert.Equal(t, 1, r.DefaultLimit())

	holder := r.GetOrCreate("holder")
	r.lend(holder, &Copy{ID: "c1"}, "d")
	_, err = r.SetLimit("holder", 0)
	assert.ErrorIs(t, err, ErrLimitBelowHeld)
	assert.Nil(t, holder.Limit)
	assert.ErrorIs(t, r.SetDefaultLimit(0), ErrLimitBelowHeld)
	assert.Equal(t, 1, r.DefaultLimit())
}

func TestUserRegistryLendRelease(t *testing.T) {
	r := NewUserRegistry(1)
	u := r.GetOrCreate("u")
	c := &Copy{ID: "1", Book: &Book{ID: "b"}}

	assert.True(t, r.CanBorrow(u))
	r.lend(u, c, "2024-01-01")
	assert.False(t, r.CanBorrow(u))
	assert.Equal(t, ID("u"), c.BorrowedBy)

	require.NoError(t, r.release(c))
	assert.Equal(t, 0, u.BorrowedCount())
	assert.False(t, c.Borrowed())
	assert.Empty(t, c.DueDate)

	c.BorrowedBy = "ghost"
	assert.ErrorIs(t, r.release(c), ErrInternal)
}
