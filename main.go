package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"library-racks/config"
	"library-racks/console"
	"library-racks/library"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		envFile      string
		rackCapacity int
		borrowLimit  int
		journalPath  string
		logLevel     string
	)

	cmd := &cobra.Command{
		Use:          "library",
		Short:        "Rack allocation and lending for a physical library",
		Long:         "Reads one command per line from stdin (create_library, add_book, borrow_book, ...) until exit or EOF.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("rack-capacity") {
				cfg.RackCapacity = rackCapacity
			}
			if flags.Changed("borrow-limit") {
				cfg.DefaultBorrowLimit = borrowLimit
			}
			if flags.Changed("journal") {
				cfg.JournalPath = journalPath
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&envFile, "env-file", ".env", "optional dotenv file with LIBRARY_* settings")
	f.IntVar(&rackCapacity, "rack-capacity", library.DefaultRackCapacity, "copies per rack when create_library gives none")
	f.IntVar(&borrowLimit, "borrow-limit", library.DefaultBorrowLimit, "default number of copies a user may hold")
	f.StringVar(&journalPath, "journal", "", "SQLite file recording circulation history (disabled when empty)")
	f.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	return cmd
}

func run(cfg config.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	opts := []library.Option{
		library.WithLogger(logger),
		library.WithRackCapacity(cfg.RackCapacity),
		library.WithDefaultBorrowLimit(cfg.DefaultBorrowLimit),
	}
	var consoleOpts []console.Option
	if cfg.JournalPath != "" {
		journal, err := library.OpenJournal(cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer journal.Close()
		logger.Info("journal opened", "path", cfg.JournalPath, "session", journal.Session())
		opts = append(opts, library.WithJournal(journal))
		consoleOpts = append(consoleOpts, console.WithHistory(journal))
	}

	lib := library.New(opts...)
	con := console.New(lib, os.Stdout, append(consoleOpts, console.WithLogger(logger))...)

	var prompt func()
	if term.IsTerminal(int(os.Stdin.Fd())) {
		printBanner()
		prompt = func() { fmt.Print("> ") }
	}
	return con.Run(os.Stdin, prompt)
}

func printBanner() {
	fmt.Println("Library rack manager")
	fmt.Println("Available commands:")
	fmt.Println("  Setup: create_library <racks> [max_books_per_rack:N] [library_id:X]")
	fmt.Println("  Books: add_book <id> <title> <authors,..> <publishers,..> <copy_ids,..> [key:value ...], remove_book_copy <copy_id>")
	fmt.Println("  Circulation: borrow_book <book_id> <user_id> <due>, borrow_book_copy <copy_id> [user_id] [due], return_book_copy <copy_id>")
	fmt.Println("  Queries: print_borrowed <user_id>, search <attribute> <value>, history <copy_id>")
	fmt.Println("  Limits: set_user_limit <user_id> <n>, set_default_limit <n>")
	fmt.Println("  System: exit")
}
