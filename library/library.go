package library

import (
	"cmp"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"
)

// DefaultRackCapacity is the per-rack maximum used when Create is given none.
const DefaultRackCapacity = 1

// Library owns the racks and is the only writer of copy placement. It
// composes the book, copy and user registries.
//
// All methods take one lock: a rack's member list and the Rack field of
// the copies on it always change together.
type Library struct {
	mu sync.Mutex

	id              string
	capacity        int
	defaultCapacity int
	racks           [][]*Copy // racks[i] is rack number i+1

	books  *BookRegistry
	copies *CopyRegistry
	users  *UserRegistry

	journal Journal
	log     *slog.Logger
}

// Option configures a Library.
type Option func(*Library)

func WithLogger(l *slog.Logger) Option { return func(lib *Library) { lib.log = l } }

// WithJournal records every state change in j.
func WithJournal(j Journal) Option { return func(lib *Library) { lib.journal = j } }

func WithDefaultBorrowLimit(n int) Option {
	return func(lib *Library) { lib.users.defaultLimit = n }
}

// WithRackCapacity sets the capacity Create uses when no per-call value is given.
func WithRackCapacity(n int) Option {
	return func(lib *Library) { lib.defaultCapacity = n }
}

// New returns an empty library with no racks. Call Create before shelving.
func New(opts ...Option) *Library {
	lib := &Library{
		defaultCapacity: DefaultRackCapacity,
		books:           NewBookRegistry(),
		copies:          NewCopyRegistry(),
		users:           NewUserRegistry(DefaultBorrowLimit),
		journal:         nopJournal{},
		log:             slog.Default(),
	}
	for _, opt := range opts {
		opt(lib)
	}
	return lib
}

type createConfig struct {
	capacity  int
	libraryID string
}

// CreateOption configures a single Create call.
type CreateOption func(*createConfig)

func WithMaxCopiesPerRack(n int) CreateOption { return func(c *createConfig) { c.capacity = n } }

func WithLibraryID(id string) CreateOption { return func(c *createConfig) { c.libraryID = id } }

// Create installs rackCount empty racks numbered 1..rackCount and returns the
// rack count. Copies shelved in a previous rack set are removed from the
// copy registry first; borrowed copies stay borrowed and are placed into
// the new racks when returned.
func (l *Library) Create(rackCount int, opts ...CreateOption) (int, error) {
	cfg := createConfig{capacity: l.defaultCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	if rackCount < 1 {
		return 0, fmt.Errorf("%w: rack count must be positive, got %d", ErrValidation, rackCount)
	}
	if cfg.capacity < 1 {
		return 0, fmt.Errorf("%w: max copies per rack must be positive, got %d", ErrValidation, cfg.capacity)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	detached := 0
	for _, rack := range l.racks {
		for _, c := range rack {
			l.copies.Remove(c.ID)
			c.Rack = NoRack
			detached++
		}
	}

	l.racks = make([][]*Copy, rackCount)
	l.capacity = cfg.capacity
	l.id = cfg.libraryID

	l.log.Info("library created", "racks", rackCount, "capacity", cfg.capacity, "library_id", cfg.libraryID, "detached", detached)
	l.record(Event{Kind: EventLibraryCreated, Rack: rackCount, Detail: map[string]any{
		"capacity":   cfg.capacity,
		"library_id": cfg.libraryID,
		"detached":   detached,
	}})
	return rackCount, nil
}

// AddBook resolves or creates the book and shelves each copy on the lowest
// numbered rack with room. The result is parallel to copyIDs; NoRack marks a
// copy that was not placed. Once the racks are full the remaining copies are
// not attempted.
func (l *Library) AddBook(nb NewBook, copyIDs []ID) ([]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireRacks(); err != nil {
		return nil, err
	}

	book, created := l.books.GetOrCreate(nb)
	if created {
		l.log.Debug("book registered", "book_id", book.ID, "title", book.Title, "extra", extraKeys(book))
	}

	racks := make([]int, len(copyIDs))
	for i, copyID := range copyIDs {
		rack := l.firstFreeRack()
		if rack == NoRack {
			l.log.Info("racks exhausted while adding copies", "book_id", book.ID, "unplaced", len(copyIDs)-i)
			break
		}
		c, _ := l.copies.GetOrCreate(copyID, book)
		if c.Book != book || c.Shelved() || c.Borrowed() {
			l.log.Info("copy already tracked, not placed", "copy_id", copyID, "book_id", c.Book.ID)
			continue
		}
		l.shelve(c, rack)
		racks[i] = rack
		l.record(Event{Kind: EventCopyAdded, CopyID: c.ID, BookID: book.ID, Rack: rack})
	}
	return racks, nil
}

// RemoveCopy deletes a shelved copy and returns it with its former rack.
// Borrowed copies are not on a rack and are reported as not found.
func (l *Library) RemoveCopy(copyID ID) (*Copy, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireRacks(); err != nil {
		return nil, NoRack, err
	}

	c, rack := l.findShelved(func(c *Copy) bool { return c.ID == copyID })
	if c == nil {
		return nil, NoRack, fmt.Errorf("%w: invalid book copy id %s", ErrNotFound, copyID)
	}
	if err := l.unshelve(c); err != nil {
		return nil, NoRack, err
	}
	l.copies.Remove(c.ID)
	l.record(Event{Kind: EventCopyRemoved, CopyID: c.ID, BookID: c.Book.ID, Rack: rack})

	out := c.clone()
	out.Rack = rack
	return out, rack, nil
}

// BorrowBook lends the first shelved copy of the book, scanning racks in
// ascending order, and returns the rack it was taken from.
func (l *Library) BorrowBook(bookID, userID ID, due string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireRacks(); err != nil {
		return NoRack, err
	}

	user := l.users.GetOrCreate(userID)
	if !l.users.CanBorrow(user) {
		l.log.Info("borrow rejected", "user_id", userID, "book_id", bookID, "reason", "over limit")
		return NoRack, fmt.Errorf("%w: user %s holds %d of %d", ErrOverLimit, userID, user.BorrowedCount(), l.users.Limit(user))
	}
	if _, ok := l.books.Get(bookID); !ok {
		return NoRack, fmt.Errorf("%w: invalid book id %s", ErrNotFound, bookID)
	}
	c, _ := l.findShelved(func(c *Copy) bool { return c.Book.ID == bookID })
	if c == nil {
		return NoRack, fmt.Errorf("%w: no shelved copy of book %s", ErrUnavailable, bookID)
	}
	return l.lend(c, user, due)
}

// BorrowCopy lends a specific shelved copy. Unknown and already borrowed
// copies are both reported as not found.
func (l *Library) BorrowCopy(copyID, userID ID, due string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireRacks(); err != nil {
		return NoRack, err
	}

	user := l.users.GetOrCreate(userID)
	if !l.users.CanBorrow(user) {
		l.log.Info("borrow rejected", "user_id", userID, "copy_id", copyID, "reason", "over limit")
		return NoRack, fmt.Errorf("%w: user %s holds %d of %d", ErrOverLimit, userID, user.BorrowedCount(), l.users.Limit(user))
	}
	c, _ := l.findShelved(func(c *Copy) bool { return c.ID == copyID })
	if c == nil {
		return NoRack, fmt.Errorf("%w: invalid book copy id %s", ErrNotFound, copyID)
	}
	return l.lend(c, user, due)
}

// ReturnCopy takes a borrowed copy back and shelves it on the first rack
// with room. If every rack is full the copy stays with its borrower.
func (l *Library) ReturnCopy(copyID ID) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireRacks(); err != nil {
		return NoRack, err
	}

	c, ok := l.copies.Get(copyID)
	if !ok {
		return NoRack, fmt.Errorf("%w: invalid book copy id %s", ErrNotFound, copyID)
	}
	if !c.Borrowed() {
		return NoRack, fmt.Errorf("return %s: %w", copyID, ErrNotBorrowed)
	}
	rack := l.firstFreeRack()
	if rack == NoRack {
		l.log.Info("return rejected", "copy_id", copyID, "reason", "no rack available")
		return NoRack, fmt.Errorf("%w: cannot return book copy %s", ErrCapacityExhausted, copyID)
	}

	userID := c.BorrowedBy
	if err := l.users.release(c); err != nil {
		l.log.Error("return failed", "copy_id", copyID, "error", err)
		return NoRack, err
	}
	l.shelve(c, rack)
	l.log.Debug("copy returned", "copy_id", copyID, "user_id", userID, "rack", rack)
	l.record(Event{Kind: EventCopyReturned, CopyID: c.ID, BookID: c.Book.ID, UserID: userID, Rack: rack})
	return rack, nil
}

// Borrowed lists the copies held by the user, sorted by copy ID. Unknown
// users hold nothing and are not created.
func (l *Library) Borrowed(userID ID) []*Copy {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.users.Get(userID)
	if !ok {
		return []*Copy{}
	}
	return snapshot(l.users.Borrowed(u))
}

// Search returns every copy, shelved or borrowed, of each book whose
// attribute matches value. Results are ordered by rack with borrowed
// copies last.
func (l *Library) Search(attribute, value string) []*Copy {
	l.mu.Lock()
	defer l.mu.Unlock()

	var found []*Copy
	for _, b := range l.books.All() {
		v, ok := b.Attribute(attribute)
		if !ok || !v.Matches(value) {
			continue
		}
		found = append(found, l.copies.OfBook(b.ID)...)
	}
	slices.SortStableFunc(found, func(a, b *Copy) int {
		return cmp.Compare(rackSortKey(a), rackSortKey(b))
	})
	return snapshot(found)
}

// SetUserLimit overrides the borrow limit of one user.
func (l *Library) SetUserLimit(userID ID, n int) (*User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, err := l.users.SetLimit(userID, n)
	if err != nil {
		return nil, err
	}
	l.record(Event{Kind: EventLimitChanged, UserID: userID, Detail: map[string]any{"limit": n}})
	return u.clone(), nil
}

// SetDefaultLimit changes the limit for every user without an override.
func (l *Library) SetDefaultLimit(n int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.users.SetDefaultLimit(n); err != nil {
		return 0, err
	}
	l.record(Event{Kind: EventLimitChanged, Detail: map[string]any{"default_limit": n}})
	return n, nil
}

// ------------------ Read helpers ------------------

func (l *Library) ID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.id
}

func (l *Library) Racks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.racks)
}

func (l *Library) Capacity() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capacity
}

// RackContents returns the copies on rack in shelving order.
func (l *Library) RackContents(rack int) []*Copy {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rack < 1 || rack > len(l.racks) {
		return nil
	}
	return snapshot(l.racks[rack-1])
}

func (l *Library) Copy(id ID) (*Copy, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.copies.Get(id)
	if !ok {
		return nil, false
	}
	return c.clone(), true
}

func (l *Library) Book(id ID) (*Book, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.books.Get(id)
	if !ok {
		return nil, false
	}
	return b.clone(), true
}

func (l *Library) User(id ID) (*User, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users.Get(id)
	if !ok {
		return nil, false
	}
	return u.clone(), true
}

// EffectiveLimit resolves the limit of u against the current default.
func (l *Library) EffectiveLimit(u *User) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.users.Limit(u)
}

// ------------------ Placement ------------------

func (l *Library) requireRacks() error {
	if l.racks == nil {
		return ErrNotCreated
	}
	return nil
}

func (l *Library) firstFreeRack() int {
	for i, rack := range l.racks {
		if len(rack) < l.capacity {
			return i + 1
		}
	}
	return NoRack
}

func (l *Library) shelve(c *Copy, rack int) {
	l.racks[rack-1] = append(l.racks[rack-1], c)
	c.Rack = rack
	l.log.Debug("copy shelved", "copy_id", c.ID, "rack", rack)
}

func (l *Library) unshelve(c *Copy) error {
	if c.Rack < 1 || c.Rack > len(l.racks) {
		return fmt.Errorf("%w: copy %s claims rack %d", ErrInternal, c.ID, c.Rack)
	}
	rack := l.racks[c.Rack-1]
	i := slices.Index(rack, c)
	if i < 0 {
		l.log.Error("copy missing from its rack", "copy_id", c.ID, "rack", c.Rack)
		return fmt.Errorf("%w: copy %s not on rack %d", ErrInternal, c.ID, c.Rack)
	}
	l.racks[c.Rack-1] = slices.Delete(rack, i, i+1)
	c.Rack = NoRack
	return nil
}

// findShelved scans racks in ascending order, then shelving order within a rack.
func (l *Library) findShelved(match func(*Copy) bool) (*Copy, int) {
	for i, rack := range l.racks {
		for _, c := range rack {
			if match(c) {
				return c, i + 1
			}
		}
	}
	return nil, NoRack
}

func (l *Library) lend(c *Copy, u *User, due string) (int, error) {
	rack := c.Rack
	if err := l.unshelve(c); err != nil {
		return NoRack, err
	}
	l.users.lend(u, c, due)
	l.log.Debug("copy borrowed", "copy_id", c.ID, "user_id", u.ID, "rack", rack, "due", due)
	l.record(Event{Kind: EventCopyBorrowed, CopyID: c.ID, BookID: c.Book.ID, UserID: u.ID, Rack: rack, DueDate: due})
	return rack, nil
}

func (l *Library) record(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if err := l.journal.Record(e); err != nil {
		l.log.Warn("journal write failed", "kind", e.Kind, "error", err)
	}
}

func rackSortKey(c *Copy) int {
	if c.Rack == NoRack {
		return math.MaxInt
	}
	return c.Rack
}

func snapshot(in []*Copy) []*Copy {
	out := make([]*Copy, len(in))
	for i, c := range in {
		out[i] = c.clone()
	}
	return out
}
