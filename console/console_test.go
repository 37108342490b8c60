package console

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-racks/library"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newConsole(t *testing.T, opts ...Option) (*Console, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	lib := library.New(library.WithLogger(quietLogger()))
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return New(lib, &out, opts...), &out
}

// run feeds script through Run and returns the printed lines.
func run(t *testing.T, c *Console, out *bytes.Buffer, script string) []string {
	t.Helper()
	out.Reset()
	require.NoError(t, c.Run(strings.NewReader(script), nil))
	text := strings.TrimRight(out.String(), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func TestCirculationScript(t *testing.T) {
	c, out := newConsole(t)
	got := run(t, c, out, `
create_library 10
add_book book1 book1_title author1,author2 publisher1 book_copy1,book_copy2,book_copy3
add_book book2 book2_title author2,author3 publisher2,publisher3 book_copy4,book_copy5,book_copy6,book_copy7
remove_book_copy book_copy6
remove_book_copy book_copy13
borrow_book book1 user1 2020-12-31
borrow_book book3 user1 2020-12-31
borrow_book_copy book_copy4 user1 2020-12-31
borrow_book_copy book_copy4 user2 2020-12-31
print_borrowed user1
return_book_copy book_copy1
return_book_copy book_copy1
search book_id book1
search authors author2
exit
add_book never_run t a p c
`)

	want := []string{
		"Created library with 10 racks",
		"Added Book to racks: 1, 2, 3",
		"Added Book to racks: 4, 5, 6, 7",
		"Removed book copy: book_copy6 from rack: 6",
		"Invalid Book Copy ID",
		"Borrowed Book from rack: 1",
		"Invalid Book ID",
		"Borrowed Book Copy from rack: 4",
		"Invalid Book Copy ID",
		"Book Copy: book_copy1 2020-12-31",
		"Book Copy: book_copy4 2020-12-31",
		"Returned book copy book_copy1 and added to rack: 1",
		"Copy not borrowed",
		"Book Copy: book_copy1 book1 book1_title author1, author2 publisher1 1  ",
		"Book Copy: book_copy2 book1 book1_title author1, author2 publisher1 2  ",
		"Book Copy: book_copy3 book1 book1_title author1, author2 publisher1 3  ",
		"Book Copy: book_copy1 book1 book1_title author1, author2 publisher1 1  ",
		"Book Copy: book_copy2 book1 book1_title author1, author2 publisher1 2  ",
		"Book Copy: book_copy3 book1 book1_title author1, author2 publisher1 3  ",
		"Book Copy: book_copy5 book2 book2_title author2, author3 publisher2, publisher3 5  ",
		"Book Copy: book_copy7 book2 book2_title author2, author3 publisher2, publisher3 7  ",
		"Book Copy: book_copy4 book2 book2_title author2, author3 publisher2, publisher3 -1 user1 2020-12-31",
	}
	assert.Equal(t, want, got)
}

func TestAddBookRackExhaustion(t *testing.T) {
	c, out := newConsole(t)
	got := run(t, c, out, "create_library 2\nadd_book b t a p 1,2,3\n")
	assert.Equal(t, []string{
		"Created library with 2 racks",
		"Added Book to racks: 1, 2",
		"Rack not available",
	}, got)
}

func TestAddBookExtraAttributes(t *testing.T) {
	c, out := newConsole(t)
	got := run(t, c, out, `create_library 5
add_book b1 t a p 1,2 color:red nocolon :empty genre:
search color red
`)
	assert.Equal(t, []string{
		"Created library with 5 racks",
		"Invalid key-value pair: nocolon. Must contain a colon (':') to separate key and value.",
		"Invalid key-value pair: :empty. Both key and value must have a value.",
		"Invalid key-value pair: genre:. Both key and value must have a value.",
		"Added Book to racks: 1, 2",
		"Book Copy: 1 b1 t a p 1  ",
		"Book Copy: 2 b1 t a p 2  ",
	}, got)
}

func TestAddBookReportsExistingCopies(t *testing.T) {
	c, out := newConsole(t)
	got := run(t, c, out, `create_library 4
add_book b t a p 1,2
add_book b t a p 2,3,3
borrow_book_copy 1 u d
add_book c t a p 1,4,5
add_book c t a p 6
`)
	assert.Equal(t, []string{
		"Created library with 4 racks",
		"Added Book to racks: 1, 2",
		"Added Book to racks: 3",
		"Book copy 2 already exists",
		"Book copy 3 already exists",
		"Borrowed Book Copy from rack: 1",
		"Added Book to racks: 1, 4",
		"Book copy 1 already exists",
		"Rack not available",
	}, got)
}

func TestCreateLibraryOptionsInTokenOrder(t *testing.T) {
	c, out := newConsole(t)
	for i := 0; i < 5; i++ {
		got := run(t, c, out, "create_library 2 zeta:1 alpha:2 library_id:x mid:3\n")
		assert.Equal(t, []string{
			"Unknown library option: zeta",
			"Unknown library option: alpha",
			"Unknown library option: mid",
			"Created library with 2 racks",
		}, got)
	}
}

func TestCreateLibraryOptions(t *testing.T) {
	c, out := newConsole(t)
	got := run(t, c, out, "create_library 2 max_books_per_rack:2 library_id:main\nadd_book b t a p 1,2,3\n")
	assert.Equal(t, []string{
		"Created library with 2 racks",
		"Added Book to racks: 1, 1, 2",
	}, got)
	assert.Equal(t, "main", c.lib.ID())

	got = run(t, c, out, "create_library 0\ncreate_library x\ncreate_library\n")
	assert.Equal(t, []string{
		"Error Creating Library",
		"Invalid rack count: x",
		"Invalid number of arguments were passed to the command. 0 arguments were passed and it was expected to be 1 arguments.",
	}, got)
}

func TestArgumentCountMessages(t *testing.T) {
	c, out := newConsole(t)
	got := run(t, c, out, "add_book b t a p\nborrow_book b u\nsearch title\nreturn_book_copy\nfrobnicate\n")
	assert.Equal(t, []string{
		"Invalid number of arguments were passed to the command. 4 arguments were passed and it was expected to be 5 arguments.",
		"Invalid number of arguments were passed to the command. 2 arguments were passed and it was expected to be 3 arguments.",
		"Invalid number of arguments were passed to the command. 1 arguments were passed and it was expected to be 2 arguments.",
		"Invalid number of arguments were passed to the command. 0 arguments were passed and it was expected to be 1 arguments.",
		"Invalid command was passed",
	}, got)
}

func TestBorrowBookCopyDefaults(t *testing.T) {
	c, out := newConsole(t)
	got := run(t, c, out, "create_library 1\nadd_book b t a p 1\nborrow_book_copy 1\nprint_borrowed user1\n")
	assert.Equal(t, []string{
		"Created library with 1 racks",
		"Added Book to racks: 1",
		"Borrowed Book Copy from rack: 1",
		"Book Copy: 1 2020-12-31",
	}, got)
}

func TestLimitCommands(t *testing.T) {
	c, out := newConsole(t)
	got := run(t, c, out, `create_library 5
add_book b t a p 1,2,3
set_user_limit u2 2
borrow_book b u2 d
borrow_book b u2 d
borrow_book b u2 d
set_user_limit u2 -1
set_default_limit 0
borrow_book b u3 d
set_default_limit x
`)
	assert.Equal(t, []string{
		"Created library with 5 racks",
		"Added Book to racks: 1, 2, 3",
		"Maximum books allowed for user u2 set to 2",
		"Borrowed Book from rack: 1",
		"Borrowed Book from rack: 2",
		"Overlimit",
		"Maximum number of books allowed must be non-negative",
		"Default maximum books allowed set to 0",
		"Overlimit",
		"Invalid limit: x",
	}, got)
}

func TestLimitBelowBorrowedCount(t *testing.T) {
	c, out := newConsole(t)
	got := run(t, c, out, `create_library 3
add_book b t a p 1,2
borrow_book b u d
borrow_book b u d
set_user_limit u 1
set_default_limit 1
set_user_limit u 2
`)
	assert.Equal(t, []string{
		"Created library with 3 racks",
		"Added Book to racks: 1, 2",
		"Borrowed Book from rack: 1",
		"Borrowed Book from rack: 2",
		"Maximum number of books allowed cannot be lower than books already borrowed",
		"Maximum number of books allowed cannot be lower than books already borrowed",
		"Maximum books allowed for user u set to 2",
	}, got)
}

func TestReturnWithFullRacks(t *testing.T) {
	c, out := newConsole(t)
	got := run(t, c, out, "create_library 1\nadd_book b t a p 1\nborrow_book_copy 1 u d\nadd_book b t a p 2\nreturn_book_copy 1\nprint_borrowed u\n")
	assert.Equal(t, []string{
		"Created library with 1 racks",
		"Added Book to racks: 1",
		"Borrowed Book Copy from rack: 1",
		"Added Book to racks: 1",
		"Rack not available for book copy 1, copy remains borrowed",
		"Book Copy: 1 d",
	}, got)
}

func TestCommandsBeforeCreate(t *testing.T) {
	c, out := newConsole(t)
	got := run(t, c, out, "add_book b t a p 1\nborrow_book_copy 1\n")
	assert.Equal(t, []string{
		"Error Adding Books",
		"Error: invalid state: library has not been created",
	}, got)
}

type fakeHistory struct {
	events []library.Event
	err    error
}

func (f fakeHistory) History(library.ID) ([]library.Event, error) { return f.events, f.err }

func TestHistoryCommand(t *testing.T) {
	c, out := newConsole(t)
	assert.Equal(t, []string{"Journal not enabled"}, run(t, c, out, "history 1\n"))

	at := time.Date(2024, 5, 10, 9, 30, 0, 0, time.Local)
	c, out = newConsole(t, WithHistory(fakeHistory{events: []library.Event{
		{Session: "0123456789abcdef", Kind: library.EventCopyBorrowed, CopyID: "1", UserID: "u", Rack: 3, DueDate: "2024-06-01", At: at},
	}}))
	got := run(t, c, out, "history 1\n")
	require.Len(t, got, 1)
	assert.Equal(t, "2024-05-10 09:30:00 copy_borrowed        01234567 rack=3 user=u due=2024-06-01", got[0])

	c, out = newConsole(t, WithHistory(fakeHistory{}))
	assert.Equal(t, []string{"No history for book copy 9"}, run(t, c, out, "history 9\n"))

	c, out = newConsole(t, WithHistory(fakeHistory{err: errors.New("disk gone")}))
	assert.Equal(t, []string{"Error reading journal: disk gone"}, run(t, c, out, "history 9\n"))
}

type panicHistory struct{}

func (panicHistory) History(library.ID) ([]library.Event, error) { panic("boom") }

func TestPanicIsReportedAndLoopContinues(t *testing.T) {
	c, out := newConsole(t, WithHistory(panicHistory{}))
	got := run(t, c, out, "history 1\ncreate_library 1\n")
	assert.Equal(t, []string{"Error: boom", "Created library with 1 racks"}, got)
}

func TestBlankLinesIgnored(t *testing.T) {
	c, out := newConsole(t)
	assert.Nil(t, run(t, c, out, "\n   \n\t\n"))
}

func TestRunPrompts(t *testing.T) {
	c, out := newConsole(t)
	prompts := 0
	require.NoError(t, c.Run(strings.NewReader("create_library 1\nexit\n"), func() { prompts++ }))
	assert.Equal(t, 2, prompts)
	assert.Equal(t, "Created library with 1 racks\n", out.String())
}
