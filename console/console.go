// Package console reads one whitespace-separated command per line and runs
// it against a library, printing results in the classic text format.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"library-racks/library"
)

// Defaults for borrow_book_copy when user or due date are omitted.
const (
	DefaultUserID  = "user1"
	DefaultDueDate = "2020-12-31"
)

// HistoryReader is implemented by journals that can replay a copy's events.
type HistoryReader interface {
	History(copyID library.ID) ([]library.Event, error)
}

type Console struct {
	lib     *library.Library
	out     io.Writer
	history HistoryReader
	log     *slog.Logger
}

type Option func(*Console)

// WithHistory enables the history command.
func WithHistory(h HistoryReader) Option { return func(c *Console) { c.history = h } }

func WithLogger(l *slog.Logger) Option { return func(c *Console) { c.log = l } }

func New(lib *library.Library, out io.Writer, opts ...Option) *Console {
	c := &Console{lib: lib, out: out, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes lines from r until EOF or exit. prompt, when non-nil, is
// called before each line is read.
func (c *Console) Run(r io.Reader, prompt func()) error {
	sc := bufio.NewScanner(r)
	for {
		if prompt != nil {
			prompt()
		}
		if !sc.Scan() {
			return sc.Err()
		}
		if c.Execute(sc.Text()) {
			return nil
		}
	}
}

// Execute runs a single command line and reports whether it was exit.
// Failures, including panics, are printed and never escape.
func (c *Console) Execute(line string) (exit bool) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("command panicked", "command", args[0], "panic", r)
			c.printf("Error: %v\n", r)
			exit = false
		}
	}()

	switch args[0] {
	case "exit":
		return true
	case "create_library":
		c.handleCreateLibrary(args)
	case "add_book":
		c.handleAddBook(args)
	case "remove_book_copy":
		c.handleRemoveBookCopy(args)
	case "borrow_book":
		c.handleBorrowBook(args)
	case "borrow_book_copy":
		c.handleBorrowBookCopy(args)
	case "return_book_copy":
		c.handleReturnBookCopy(args)
	case "print_borrowed":
		c.handlePrintBorrowed(args)
	case "search":
		c.handleSearch(args)
	case "set_user_limit":
		c.handleSetUserLimit(args)
	case "set_default_limit":
		c.handleSetDefaultLimit(args)
	case "history":
		c.handleHistory(args)
	default:
		c.println("Invalid command was passed")
	}
	return false
}

func (c *Console) handleCreateLibrary(args []string) {
	if len(args) < 2 {
		c.invalidArguments(args, 1)
		return
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		c.printf("Invalid rack count: %s\n", args[1])
		return
	}

	var opts []library.CreateOption
	for _, kv := range c.keyValues(args[2:]) {
		switch kv.key {
		case "max_books_per_rack":
			capacity, err := strconv.Atoi(kv.value)
			if err != nil {
				c.printf("Invalid max_books_per_rack: %s\n", kv.value)
				return
			}
			opts = append(opts, library.WithMaxCopiesPerRack(capacity))
		case "library_id":
			opts = append(opts, library.WithLibraryID(kv.value))
		default:
			c.printf("Unknown library option: %s\n", kv.key)
		}
	}

	racks, err := c.lib.Create(n, opts...)
	if err != nil {
		c.log.Info("create library failed", "error", err)
		c.println("Error Creating Library")
		return
	}
	c.printf("Created library with %d racks\n", racks)
}

func (c *Console) handleAddBook(args []string) {
	if len(args) < 6 {
		c.invalidArguments(args, 5)
		return
	}
	nb := library.NewBook{
		ID:         library.ID(args[1]),
		Title:      args[2],
		Authors:    splitList(args[3]),
		Publishers: splitList(args[4]),
	}
	for _, kv := range c.keyValues(args[6:]) {
		if nb.Extra == nil {
			nb.Extra = make(map[string]string)
		}
		nb.Extra[kv.key] = kv.value
	}

	// Copies tracked before this call are skipped by AddBook, which reports
	// them the same way as copies left over after rack exhaustion.
	var copyIDs []library.ID
	var tracked []bool
	for _, id := range splitList(args[5]) {
		cid := library.ID(id)
		_, ok := c.lib.Copy(cid)
		copyIDs = append(copyIDs, cid)
		tracked = append(tracked, ok)
	}

	racks, err := c.lib.AddBook(nb, copyIDs)
	if err != nil {
		c.log.Info("add book failed", "book_id", nb.ID, "error", err)
		c.println("Error Adding Books")
		return
	}

	var placed []string
	var placedIDs, duplicates []library.ID
	missing := false
	for i, r := range racks {
		id := copyIDs[i]
		switch {
		case r != library.NoRack:
			placed = append(placed, strconv.Itoa(r))
			placedIDs = append(placedIDs, id)
		case tracked[i] || slices.Contains(placedIDs, id):
			if !slices.Contains(duplicates, id) {
				duplicates = append(duplicates, id)
			}
		default:
			missing = true
		}
	}
	if len(placed) > 0 {
		c.printf("Added Book to racks: %s\n", strings.Join(placed, ", "))
	}
	for _, id := range duplicates {
		c.printf("Book copy %s already exists\n", id)
	}
	if missing {
		c.println("Rack not available")
	}
}

func (c *Console) handleRemoveBookCopy(args []string) {
	if len(args) != 2 {
		c.invalidArguments(args, 1)
		return
	}
	cp, rack, err := c.lib.RemoveCopy(library.ID(args[1]))
	if err != nil {
		c.printError(err)
		return
	}
	c.printf("Removed book copy: %s from rack: %d\n", cp.ID, rack)
}

func (c *Console) handleBorrowBook(args []string) {
	if len(args) != 4 {
		c.invalidArguments(args, 3)
		return
	}
	rack, err := c.lib.BorrowBook(library.ID(args[1]), library.ID(args[2]), args[3])
	if err != nil {
		if errors.Is(err, library.ErrNotFound) {
			c.println("Invalid Book ID")
			return
		}
		c.printError(err)
		return
	}
	c.printf("Borrowed Book from rack: %d\n", rack)
}

func (c *Console) handleBorrowBookCopy(args []string) {
	if len(args) < 2 {
		c.invalidArguments(args, 1)
		return
	}
	userID, due := DefaultUserID, DefaultDueDate
	if len(args) > 2 {
		userID = args[2]
	}
	if len(args) > 3 {
		due = args[3]
	}
	rack, err := c.lib.BorrowCopy(library.ID(args[1]), library.ID(userID), due)
	if err != nil {
		c.printError(err)
		return
	}
	c.printf("Borrowed Book Copy from rack: %d\n", rack)
}

func (c *Console) handleReturnBookCopy(args []string) {
	if len(args) != 2 {
		c.invalidArguments(args, 1)
		return
	}
	rack, err := c.lib.ReturnCopy(library.ID(args[1]))
	if err != nil {
		if errors.Is(err, library.ErrCapacityExhausted) {
			c.printf("Rack not available for book copy %s, copy remains borrowed\n", args[1])
			return
		}
		c.printError(err)
		return
	}
	c.printf("Returned book copy %s and added to rack: %d\n", args[1], rack)
}

func (c *Console) handlePrintBorrowed(args []string) {
	if len(args) != 2 {
		c.invalidArguments(args, 1)
		return
	}
	for _, cp := range c.lib.Borrowed(library.ID(args[1])) {
		c.printf("Book Copy: %s %s\n", cp.ID, cp.DueDate)
	}
}

func (c *Console) handleSearch(args []string) {
	if len(args) != 3 {
		c.invalidArguments(args, 2)
		return
	}
	for _, cp := range c.lib.Search(args[1], args[2]) {
		c.println(FormatSearchRow(cp))
	}
}

func (c *Console) handleSetUserLimit(args []string) {
	if len(args) != 3 {
		c.invalidArguments(args, 2)
		return
	}
	n, err := strconv.Atoi(args[2])
	if err != nil {
		c.printf("Invalid limit: %s\n", args[2])
		return
	}
	if _, err := c.lib.SetUserLimit(library.ID(args[1]), n); err != nil {
		c.printError(err)
		return
	}
	c.printf("Maximum books allowed for user %s set to %d\n", args[1], n)
}

func (c *Console) handleSetDefaultLimit(args []string) {
	if len(args) != 2 {
		c.invalidArguments(args, 1)
		return
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		c.printf("Invalid limit: %s\n", args[1])
		return
	}
	if _, err := c.lib.SetDefaultLimit(n); err != nil {
		c.printError(err)
		return
	}
	c.printf("Default maximum books allowed set to %d\n", n)
}

func (c *Console) handleHistory(args []string) {
	if len(args) != 2 {
		c.invalidArguments(args, 1)
		return
	}
	if c.history == nil {
		c.println("Journal not enabled")
		return
	}
	events, err := c.history.History(library.ID(args[1]))
	if err != nil {
		c.printf("Error reading journal: %v\n", err)
		return
	}
	if len(events) == 0 {
		c.printf("No history for book copy %s\n", args[1])
		return
	}
	for _, e := range events {
		c.println(FormatEvent(e))
	}
}

// ------------------ Formatting ------------------

// FormatSearchRow renders a copy the way search prints it. Borrowed copies
// show rack -1 followed by borrower and due date.
func FormatSearchRow(cp *library.Copy) string {
	rack, borrower, due := cp.Rack, "", ""
	if cp.Borrowed() {
		rack, borrower, due = -1, string(cp.BorrowedBy), cp.DueDate
	}
	return fmt.Sprintf("Book Copy: %s %s %s %s %s %d %s %s",
		cp.ID, cp.Book.ID, cp.Book.Title,
		strings.Join(cp.Book.Authors, ", "), strings.Join(cp.Book.Publishers, ", "),
		rack, borrower, due)
}

func FormatEvent(e library.Event) string {
	session := e.Session
	if len(session) > 8 {
		session = session[:8]
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %-20s %s", e.At.Local().Format("2006-01-02 15:04:05"), e.Kind, session)
	if e.Rack != library.NoRack {
		fmt.Fprintf(&sb, " rack=%d", e.Rack)
	}
	if e.UserID != "" {
		fmt.Fprintf(&sb, " user=%s", e.UserID)
	}
	if e.DueDate != "" {
		fmt.Fprintf(&sb, " due=%s", e.DueDate)
	}
	return sb.String()
}

func (c *Console) printError(err error) {
	switch {
	case errors.Is(err, library.ErrOverLimit):
		c.println("Overlimit")
	case errors.Is(err, library.ErrNotFound):
		c.println("Invalid Book Copy ID")
	case errors.Is(err, library.ErrUnavailable):
		c.println("Not available")
	case errors.Is(err, library.ErrNotBorrowed):
		c.println("Copy not borrowed")
	case errors.Is(err, library.ErrLimitBelowHeld):
		c.println("Maximum number of books allowed cannot be lower than books already borrowed")
	case errors.Is(err, library.ErrValidation):
		c.println("Maximum number of books allowed must be non-negative")
	default:
		c.log.Warn("command failed", "error", err)
		c.printf("Error: %v\n", err)
	}
}

func (c *Console) invalidArguments(args []string, expected int) {
	c.printf("Invalid number of arguments were passed to the command. %d arguments were passed and it was expected to be %d arguments.\n",
		len(args)-1, expected)
}

type keyValue struct {
	key, value string
}

// keyValues parses key:value tokens in order. Malformed pairs are reported
// and skipped.
func (c *Console) keyValues(tokens []string) []keyValue {
	var kvs []keyValue
	for _, pair := range tokens {
		key, value, ok := strings.Cut(pair, ":")
		if !ok {
			c.printf("Invalid key-value pair: %s. Must contain a colon (':') to separate key and value.\n", pair)
			continue
		}
		if key == "" || value == "" {
			c.printf("Invalid key-value pair: %s. Both key and value must have a value.\n", pair)
			continue
		}
		kvs = append(kvs, keyValue{key: key, value: value})
	}
	return kvs
}

func splitList(s string) []string { return strings.Split(s, ",") }

func (c *Console) printf(format string, a ...any) { fmt.Fprintf(c.out, format, a...) }

func (c *Console) println(a ...any) { fmt.Fprintln(c.out, a...) }
