package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"
)

// gormDB creates a temporary SQLite database for testing purposes.
func gormDB(t testing.TB) *gorm.DB {
	t.Helper()
	tmpdir := t.TempDir()
	dbfile := filepath.Join(tmpdir, fmt.Sprintf("%s.sqlite3", t.Name()))

	db, err := CreateDB(context.Background(), "sqlite", dbfile)
	if err != nil {
		t.Fatalf("error creating db: %v", err)
	}
	t.Cleanup(
		func() {
			sqlDB, _ := db.DB()
			if sqlDB != nil {
				_ = sqlDB.Close()
			}
		},
	)
	return db
}

// testStore returns a QuoteStore backed by a temporary SQLite database.
func testStore(t testing.TB) QuoteStore {
	t.Helper()
	store, err := NewQuoteStore(gormDB(t), slog.Default().With("test", t.Name()))
	if err != nil {
		t.Fatalf("error creating store: %v", err)
	}
	return store
}

// insertQuote saves a quote and fails the test on error.
func insertQuote(t testing.TB, store QuoteStore, quote *Quote) *Quote {
	t.Helper()
	if quote.ShortID == "" {
		shortID, err := NewShortID(DefaultShortIDLength)
		if err != nil {
			t.Fatalf("error generating short id: %v", err)
		}
		quote.ShortID = shortID
	}
	if quote.GuildID == "" {
		quote.GuildID = "100"
	}
	if quote.ChannelID == "" {
		quote.ChannelID = "101"
	}
	if quote.AddedBy == "" {
		quote.AddedBy = "200"
	}
	if quote.AddedAt.IsZero() {
		quote.AddedAt = time.Now().UTC()
	}
	if err := store.Insert(context.Background(), quote); err != nil {
		t.Fatalf("error inserting quote: %v", err)
	}
	return quote
}
