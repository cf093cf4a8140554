package fusion

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteStoreInsertAndGet(t *testing.T) {
	t.Parallel()
	store := testStore(t)
	ctx := context.Background()

	quote := insertQuote(
		t, store, &Quote{
			Person:  "Bryan Sray",
			Message: "it compiles, ship it",
			Tags:    TagList{"engineering"},
			GuildID: "100",
			AddedBy: "200",
		},
	)

	assert.Equal(t, "bryan-sray", quote.PersonKey)
	assert.False(t, quote.AddedAt.IsZero())

	got, err := store.GetByShortID(ctx, quote.ShortID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, quote.ShortID, got.ShortID)
	assert.Equal(t, "Bryan Sray", got.Person)
	assert.Equal(t, "it compiles, ship it", got.Message)
	assert.Equal(t, TagList{"engineering"}, got.Tags)
	assert.False(t, got.Deleted())

	// lookups normalize case and padding
	got, err = store.GetByShortID(ctx, "  "+strings.ToLower(quote.ShortID)+" ")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, quote.ShortID, got.ShortID)
}

func TestQuoteStoreGetAbsent(t *testing.T) {
	t.Parallel()
	store := testStore(t)

	got, err := store.GetByShortID(context.Background(), "ZZZZZZZZ")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = store.GetByShortID(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQuoteStoreInsertValidation(t *testing.T) {
	t.Parallel()
	store := testStore(t)
	ctx := context.Background()

	valid := Quote{
		ShortID:   "ABCD2345",
		Person:    "someone",
		Message:   "hello",
		GuildID:   "100",
		ChannelID: "101",
		AddedBy:   "200",
	}

	for name, mutate := range map[string]func(*Quote){
		"missing person":     func(q *Quote) { q.Person = "" },
		"missing message":    func(q *Quote) { q.Message = "" },
		"missing guild":      func(q *Quote) { q.GuildID = "" },
		"missing channel":    func(q *Quote) { q.ChannelID = "" },
		"missing added by":   func(q *Quote) { q.AddedBy = "" },
		"bad alphabet":       func(q *Quote) { q.ShortID = "BAD-ID!!" },
		"short id too short": func(q *Quote) { q.ShortID = "ABCD" },
	} {
		quote := valid
		mutate(&quote)
		err := store.Insert(ctx, &quote)
		assert.True(t, errors.Is(err, ErrInvalidArgument), name)
	}

	err := store.Insert(ctx, nil)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	// nothing persisted on any of the rejected inserts
	got, err := store.GetByShortID(ctx, valid.ShortID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQuoteStoreShortIDConflict(t *testing.T) {
	t.Parallel()
	store := testStore(t)
	ctx := context.Background()

	first := insertQuote(
		t, store, &Quote{Person: "a", Message: "first"},
	)

	second := Quote{
		ShortID:   first.ShortID,
		Person:    "b",
		Message:   "second",
		GuildID:   "100",
		ChannelID: "101",
		AddedBy:   "200",
	}
	err := store.Insert(ctx, &second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShortIDConflict))

	// lowercased input normalizes to the same identifier
	second.ShortID = strings.ToLower(first.ShortID)
	err = store.Insert(ctx, &second)
	assert.True(t, errors.Is(err, ErrShortIDConflict))
}

func TestQuoteStoreSoftDeleteAndRestore(t *testing.T) {
	t.Parallel()
	db := gormDB(t)
	store, err := NewQuoteStore(db, slog.Default())
	require.NoError(t, err)
	ctx := context.Background()

	quote := insertQuote(t, store, &Quote{Person: "a", Message: "deletable"})

	deleted, err := store.SoftDelete(ctx, quote.ShortID, "moderator-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	// deleted quotes are indistinguishable from absent ones
	got, err := store.GetByShortID(ctx, quote.ShortID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// the row itself keeps the deletion audit trail
	var row Quote
	require.NoError(
		t,
		db.Where("short_id = ?", quote.ShortID).First(&row).Error,
	)
	assert.True(t, row.Deleted())
	deletion := row.Deletion()
	require.NotNil(t, deletion)
	assert.Equal(t, "moderator-1", deletion.By)
	assert.WithinDuration(t, time.Now().UTC(), deletion.At, time.Minute)

	// deleting an already-deleted quote is not a transition
	deleted, err = store.SoftDelete(ctx, quote.ShortID, "moderator-2")
	require.NoError(t, err)
	assert.False(t, deleted)

	// fuzzy lookups skip deleted quotes
	matches, err := store.GetFuzzyByShortIDPrefix(ctx, quote.ShortID[:4])
	require.NoError(t, err)
	assert.Empty(t, matches)

	restored, err := store.Restore(ctx, quote.ShortID, "moderator-1")
	require.NoError(t, err)
	assert.True(t, restored)

	got, err = store.GetByShortID(ctx, quote.ShortID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Deleted())
	assert.Nil(t, got.Deletion())
	assert.Nil(t, got.DeletedBy)

	// restoring an active quote is not a transition
	restored, err = store.Restore(ctx, quote.ShortID, "moderator-1")
	require.NoError(t, err)
	assert.False(t, restored)

	// absent IDs are a no-op for both transitions
	deleted, err = store.SoftDelete(ctx, "ZZZZZZZZ", "moderator-1")
	require.NoError(t, err)
	assert.False(t, deleted)
	restored, err = store.Restore(ctx, "ZZZZZZZZ", "moderator-1")
	require.NoError(t, err)
	assert.False(t, restored)
}

func TestQuoteStoreFuzzyPrefix(t *testing.T) {
	t.Parallel()
	store := testStore(t)
	ctx := context.Background()

	for _, shortID := range []string{"AAAB2222", "AAAC2222", "AAAA2222", "BBBB2222"} {
		insertQuote(
			t,
			store,
			&Quote{ShortID: shortID, Person: "a", Message: "msg " + shortID},
		)
	}

	matches, err := store.GetFuzzyByShortIDPrefix(ctx, "aaa")
	require.NoError(t, err)
	require.Len(t, matches, 3)
	// ordered ascending by short id, deterministically
	assert.Equal(t, "AAAA2222", matches[0].ShortID)
	assert.Equal(t, "AAAB2222", matches[1].ShortID)
	assert.Equal(t, "AAAC2222", matches[2].ShortID)

	matches, err = store.GetFuzzyByShortIDPrefix(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = store.GetFuzzyByShortIDPrefix(ctx, "ZZZ")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestQuoteStoreSearch(t *testing.T) {
	t.Parallel()
	store := testStore(t)
	ctx := context.Background()

	insertQuote(
		t, store,
		&Quote{Person: "a", Message: "The Quick Brown Fox", Tags: TagList{"animals"}},
	)
	insertQuote(
		t, store,
		&Quote{Person: "b", Message: "something else entirely", Tags: TagList{"foxhunt"}},
	)
	deleted := insertQuote(
		t, store, &Quote{Person: "c", Message: "quick but deleted"},
	)
	_, err := store.SoftDelete(ctx, deleted.ShortID, "mod")
	require.NoError(t, err)

	// case-insensitive match on message text
	results, err := store.Search(ctx, "qUiCk", 25)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "The Quick Brown Fox", results[0].Message)

	// matches tags as well as message text
	results, err = store.Search(ctx, "foxhunt", 25)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Person)

	// blank queries return nothing
	results, err = store.Search(ctx, "   ", 25)
	require.NoError(t, err)
	assert.Empty(t, results)

	// LIKE metacharacters match literally
	results, err = store.Search(ctx, "100%", 25)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQuoteStoreSearchLimitClamped(t *testing.T) {
	t.Parallel()
	store := testStore(t)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		insertQuote(t, store, &Quote{Person: "a", Message: "common phrase"})
	}

	results, err := store.Search(ctx, "common", 100)
	require.NoError(t, err)
	assert.Len(t, results, SearchLimitMax)

	results, err = store.Search(ctx, "common", 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = store.Search(ctx, "common", -5)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestQuoteStoreIncrementUses(t *testing.T) {
	t.Parallel()
	store := testStore(t)
	ctx := context.Background()

	quote := insertQuote(t, store, &Quote{Person: "a", Message: "counted"})

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.IncrementUses(ctx, quote.ShortID))
		}()
	}
	wg.Wait()

	got, err := store.GetByShortID(ctx, quote.ShortID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(n), got.Uses)

	// missing and blank IDs are a no-op
	assert.NoError(t, store.IncrementUses(ctx, "ZZZZZZZZ"))
	assert.NoError(t, store.IncrementUses(ctx, ""))
}

func TestQuoteStoreIncrementLikes(t *testing.T) {
	t.Parallel()
	store := testStore(t)
	ctx := context.Background()

	quote := insertQuote(t, store, &Quote{Person: "a", Message: "likeable"})

	likes, err := store.IncrementLikes(ctx, quote.ShortID)
	require.NoError(t, err)
	require.NotNil(t, likes)
	assert.Equal(t, int64(1), *likes)

	likes, err = store.IncrementLikes(ctx, quote.ShortID)
	require.NoError(t, err)
	require.NotNil(t, likes)
	assert.Equal(t, int64(2), *likes)

	likes, err = store.IncrementLikes(ctx, "ZZZZZZZZ")
	require.NoError(t, err)
	assert.Nil(t, likes)

	// counters still move on soft-deleted quotes
	_, err = store.SoftDelete(ctx, quote.ShortID, "mod")
	require.NoError(t, err)
	likes, err = store.IncrementLikes(ctx, quote.ShortID)
	require.NoError(t, err)
	require.NotNil(t, likes)
	assert.Equal(t, int64(3), *likes)
}

func TestQuoteStoreIncrementLikesConcurrent(t *testing.T) {
	t.Parallel()
	store := testStore(t)
	ctx := context.Background()

	quote := insertQuote(t, store, &Quote{Person: "a", Message: "well liked"})

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			likes, err := store.IncrementLikes(ctx, quote.ShortID)
			assert.NoError(t, err)
			assert.NotNil(t, likes)
		}()
	}
	wg.Wait()

	got, err := store.GetByShortID(ctx, quote.ShortID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(n), got.Likes)
}

func TestQuoteStoreFindByPersonKey(t *testing.T) {
	t.Parallel()
	store := testStore(t)
	ctx := context.Background()

	older := insertQuote(
		t, store, &Quote{
			Person:  "Bryan Sray",
			Message: "older",
			AddedAt: time.Now().UTC().Add(-time.Hour),
		},
	)
	newer := insertQuote(
		t, store, &Quote{Person: "bryan sray", Message: "newer"},
	)
	insertQuote(t, store, &Quote{Person: "someone else", Message: "unrelated"})
	deleted := insertQuote(
		t, store, &Quote{Person: "Bryan Sray", Message: "deleted"},
	)
	_, err := store.SoftDelete(ctx, deleted.ShortID, "mod")
	require.NoError(t, err)

	// un-normalized input resolves to the same grouping key
	quotes, err := store.FindByPersonKey(ctx, "  Bryan Sray!  ")
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, older.ShortID, quotes[0].ShortID)
	assert.Equal(t, newer.ShortID, quotes[1].ShortID)

	quotes, err = store.FindByPersonKey(ctx, "nobody-here")
	require.NoError(t, err)
	assert.Empty(t, quotes)
}
