package library

import (
	"cmp"
	"fmt"
	"slices"
)

// DefaultBorrowLimit applies to users without an override.
const DefaultBorrowLimit = 5

// UserRegistry stores users and the process-wide default borrow limit.
// The effective limit of a user is resolved when read, so changing the
// default affects every user without an override.
type UserRegistry struct {
	users        map[ID]*User
	defaultLimit int
}

func NewUserRegistry(defaultLimit int) *UserRegistry {
	return &UserRegistry{users: make(map[ID]*User), defaultLimit: defaultLimit}
}

func (r *UserRegistry) Get(id ID) (*User, bool) {
	u, ok := r.users[id]
	return u, ok
}

func (r *UserRegistry) GetOrCreate(id ID) *User {
	if u, ok := r.users[id]; ok {
		return u
	}
	u := &User{ID: id}
	r.users[id] = u
	return u
}

// Limit returns the user's override if set, else the current default.
func (r *UserRegistry) Limit(u *User) int {
	if u.Limit != nil {
		return *u.Limit
	}
	return r.defaultLimit
}

func (r *UserRegistry) DefaultLimit() int { return r.defaultLimit }

// CanBorrow reports whether the user is below their effective limit.
func (r *UserRegistry) CanBorrow(u *User) bool {
	return len(u.borrowed) < r.Limit(u)
}

// SetLimit installs a per-user override. Negative values and values below
// the number of copies the user already holds are rejected and leave the
// user unchanged.
func (r *UserRegistry) SetLimit(id ID, n int) (*User, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: maximum number of books allowed must be non-negative, got %d", ErrValidation, n)
	}
	if u, ok := r.users[id]; ok && len(u.borrowed) > n {
		return nil, fmt.Errorf("%w: user %s holds %d, limit %d", ErrLimitBelowHeld, id, len(u.borrowed), n)
	}
	u := r.GetOrCreate(id)
	u.Limit = &n
	return u, nil
}

// SetDefaultLimit changes the limit of every user without an override. It
// fails if any such user already holds more than n copies.
func (r *UserRegistry) SetDefaultLimit(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: maximum number of books allowed must be non-negative, got %d", ErrValidation, n)
	}
	var over []ID
	for id, u := range r.users {
		if u.Limit == nil && len(u.borrowed) > n {
			over = append(over, id)
		}
	}
	if len(over) > 0 {
		slices.Sort(over)
		return fmt.Errorf("%w: users %v hold more than %d", ErrLimitBelowHeld, over, n)
	}
	r.defaultLimit = n
	return nil
}

// lend records c as held by u. The caller has already detached c from its rack.
func (r *UserRegistry) lend(u *User, c *Copy, due string) {
	c.BorrowedBy = u.ID
	c.DueDate = due
	u.borrowed = append(u.borrowed, c)
}

// release detaches c from its borrower and clears the loan fields.
func (r *UserRegistry) release(c *Copy) error {
	u, ok := r.users[c.BorrowedBy]
	if !ok {
		return fmt.Errorf("%w: copy %s borrowed by unknown user %s", ErrInternal, c.ID, c.BorrowedBy)
	}
	i := slices.Index(u.borrowed, c)
	if i < 0 {
		return fmt.Errorf("%w: copy %s missing from borrowed set of %s", ErrInternal, c.ID, u.ID)
	}
	u.borrowed = slices.Delete(u.borrowed, i, i+1)
	c.BorrowedBy = ""
	c.DueDate = ""
	return nil
}

// Borrowed returns the copies held by u sorted by copy ID.
func (r *UserRegistry) Borrowed(u *User) []*Copy {
	out := slices.Clone(u.borrowed)
	slices.SortFunc(out, func(a, b *Copy) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
