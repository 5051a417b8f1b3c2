package main

import (
	"chat-router/domain/event"
	"chat-router/infrastructure/storage"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
)

type Config struct {
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/journal"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,default=./data/index"`
}

func main() {
	limit := flag.Int("limit", 50, "Number of journal entries to show")
	query := flag.String("search", "", "Full-text search on event messages, types and levels")
	flag.Parse()

	// 1. Load config
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// 2. Open Badger in Read-Only mode
	// BypassLockGuard allows opening while the router holds the lock
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	logger := slog.New(slog.DiscardHandler)
	journal := storage.NewReadOnlyJournal(db, config.BlugeFilepath, logger)

	var events []event.Event
	if *query != "" {
		events, err = journal.Search(context.Background(), *query, *limit)
	} else {
		events, err = journal.List(*limit)
	}
	if err != nil {
		log.Fatalf("Failed to read journal: %v", err)
	}
	render(os.Stdout, events)
}

func render(out io.Writer, events []event.Event) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Time", "Level", "Type", "Message", "Details"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, evt := range events {
		table.Append([]string{
			evt.At.Local().Format(time.DateTime),
			levelColor(evt.Level).Render(string(evt.Level)),
			string(evt.Type),
			evt.Message,
			details(evt.Details),
		})
	}
	table.Render()
	_, _ = fmt.Fprintf(out, "%d entries\n", len(events))
}

func levelColor(level event.Level) color.Style {
	switch level {
	case event.LevelError:
		return color.New(color.FgRed)
	case event.LevelWarn:
		return color.New(color.FgYellow)
	case event.LevelDebug:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgGreen)
	}
}

func details(d map[string]any) string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, d[k]))
	}
	return strings.Join(parts, " ")
}
