package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"library-racks/library"
)

func main() {
	if err := newImportCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newImportCmd() *cobra.Command {
	var (
		racks       int
		capacity    int
		journalPath string
	)
	cmd := &cobra.Command{
		Use:   "import_books <catalogue.csv>",
		Short: "Shelve a CSV catalogue into a fresh library and print where every copy landed",
		Long: `Each CSV row is: book_id,title,authors,publishers,copy_ids[,key:value...]
Authors, publishers and copy ids are separated by ';' inside their column.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			opts := []library.Option{library.WithLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil)))}
			if journalPath != "" {
				j, err := library.OpenJournal(journalPath)
				if err != nil {
					return err
				}
				defer j.Close()
				opts = append(opts, library.WithJournal(j))
			}
			lib := library.New(opts...)
			if _, err := lib.Create(racks, library.WithMaxCopiesPerRack(capacity)); err != nil {
				return err
			}
			return importCatalogue(lib, f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&racks, "racks", 10, "number of racks to create")
	cmd.Flags().IntVar(&capacity, "capacity", library.DefaultRackCapacity, "copies per rack")
	cmd.Flags().StringVar(&journalPath, "journal", "", "SQLite journal to record placements in")
	return cmd
}

// catalogueRow is one parsed CSV line.
type catalogueRow struct {
	book    library.NewBook
	copyIDs []library.ID
}

func parseRow(rec []string) (catalogueRow, error) {
	if len(rec) < 5 {
		return catalogueRow{}, fmt.Errorf("want at least 5 columns, got %d", len(rec))
	}
	row := catalogueRow{book: library.NewBook{
		ID:         library.ID(strings.TrimSpace(rec[0])),
		Title:      strings.TrimSpace(rec[1]),
		Authors:    splitColumn(rec[2]),
		Publishers: splitColumn(rec[3]),
	}}
	if row.book.ID == "" {
		return catalogueRow{}, errors.New("empty book id")
	}
	for _, id := range splitColumn(rec[4]) {
		row.copyIDs = append(row.copyIDs, library.ID(id))
	}
	for _, pair := range rec[5:] {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || k == "" || v == "" {
			return catalogueRow{}, fmt.Errorf("invalid key-value pair %q", pair)
		}
		if row.book.Extra == nil {
			row.book.Extra = make(map[string]string)
		}
		row.book.Extra[k] = v
	}
	return row, nil
}

func importCatalogue(lib *library.Library, r io.Reader, out io.Writer) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'

	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "Book", "Title", "Copy", "Rack")
	fmt.Fprintln(out, strings.Repeat("-", 70))

	placed, unplaced, rowErrors := 0, 0, 0
	for record := 1; ; record++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read catalogue: %w", err)
		}
		row, err := parseRow(rec)
		if err != nil {
			fmt.Fprintf(out, "Warning: record %d skipped: %v\n", record, err)
			rowErrors++
			continue
		}
		racks, err := lib.AddBook(row.book, row.copyIDs)
		if err != nil {
			return fmt.Errorf("record %d: %w", record, err)
		}
		book, _ := lib.Book(row.book.ID)
		for i, id := range row.copyIDs {
			rack := "not available"
			if racks[i] != library.NoRack {
				rack = fmt.Sprint(racks[i])
				placed++
			} else {
				unplaced++
			}
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", book.ID, truncateString(book.Title, 40), id, rack)
		}
	}

	fmt.Fprintf(out, "\nImport complete!\n")
	fmt.Fprintf(out, "Copies shelved: %d\n", placed)
	fmt.Fprintf(out, "Copies without rack: %d\n", unplaced)
	fmt.Fprintf(out, "Rows skipped: %d\n", rowErrors)

	fmt.Fprintln(out, "\nRack occupancy:")
	for n := 1; n <= lib.Racks(); n++ {
		fmt.Fprintf(out, "  rack %-3d %d/%d\n", n, len(lib.RackContents(n)), lib.Capacity())
	}
	return nil
}

func splitColumn(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// truncateString shortens s to maxLen runes, marking the cut with "...".
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
