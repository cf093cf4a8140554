package fusion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

var (
	// ErrInvalidArgument indicates a caller-supplied value that can
	// never succeed (blank required field, invalid identifier, bad
	// region).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrShortIDConflict indicates an insert lost the uniqueness race
	// on the short identifier. Callers regenerate and retry.
	ErrShortIDConflict = errors.New("short id already exists")

	// ErrStoreUnavailable indicates the backing database rejected or
	// failed the operation for reasons unrelated to the arguments.
	ErrStoreUnavailable = errors.New("quote store unavailable")
)

const (
	// dbOperationTimeout caps any single store operation that isn't
	// already bounded by the caller's context deadline.
	dbOperationTimeout = 15 * time.Second

	searchLimitMin = 1

	// SearchLimitMax is the hard ceiling a single search can return.
	SearchLimitMax = 25
)

// QuoteStore is the persistence surface for quotes. All operations
// normalize their inputs, so callers may pass short IDs and person
// keys in any case or padding. Lookups that find nothing return zero
// values with a nil error; errors are reserved for the store itself
// failing.
type QuoteStore interface {
	// Insert persists a new quote. It validates required fields,
	// normalizes the short ID, derives PersonKey from Person and
	// stamps AddedAt. Returns ErrShortIDConflict when the short ID is
	// already taken.
	Insert(ctx context.Context, quote *Quote) error

	// GetByShortID returns the active quote with the exact short ID,
	// or (nil, nil) when absent. Soft-deleted quotes are invisible
	// here; absence and deletion are indistinguishable to callers.
	GetByShortID(ctx context.Context, shortID string) (*Quote, error)

	// GetFuzzyByShortIDPrefix returns all non-deleted quotes whose
	// short ID starts with the given prefix, ordered by short ID
	// ascending. An empty prefix returns no results.
	GetFuzzyByShortIDPrefix(ctx context.Context, prefix string) ([]Quote, error)

	// Search returns non-deleted quotes whose message or tags contain
	// the query, case-insensitively. The limit is clamped to
	// [1, SearchLimitMax]; a blank query returns no results.
	Search(ctx context.Context, query string, limit int) ([]Quote, error)

	// IncrementUses atomically bumps the use counter. Missing quotes
	// are a no-op. Deleted quotes still count.
	IncrementUses(ctx context.Context, shortID string) error

	// IncrementLikes atomically bumps the like counter and returns
	// the new total, or (nil, nil) when the quote doesn't exist.
	IncrementLikes(ctx context.Context, shortID string) (*int64, error)

	// SoftDelete marks an active quote deleted, recording when and by
	// whom. Returns true only when a live quote transitioned state.
	SoftDelete(ctx context.Context, shortID string, deletedBy string) (bool, error)

	// Restore clears the deletion state of a soft-deleted quote. The
	// actor is logged but not persisted. Returns true only when a
	// deleted quote transitioned state.
	Restore(ctx context.Context, shortID string, restoredBy string) (bool, error)

	// FindByPersonKey returns all non-deleted quotes grouped under
	// the normalized person key, ordered by AddedAt ascending.
	FindByPersonKey(ctx context.Context, personKey string) ([]Quote, error)
}

// quoteStore is the gorm-backed QuoteStore.
type quoteStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewQuoteStore returns a QuoteStore backed by the given database
// handle.
func NewQuoteStore(db *gorm.DB, logger *slog.Logger) (QuoteStore, error) {
	if db == nil {
		return nil, errors.New("nil database handle")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &quoteStore{
		db:     db,
		logger: logger.With(loggerNameKey, "quote_store"),
	}, nil
}

func (s *quoteStore) Insert(ctx context.Context, quote *Quote) error {
	if quote == nil {
		return fmt.Errorf("%w: nil quote", ErrInvalidArgument)
	}
	quote.ShortID = NormalizeShortID(quote.ShortID)
	quote.Person = strings.TrimSpace(quote.Person)
	quote.Message = strings.TrimSpace(quote.Message)
	if err := quote.validate(); err != nil {
		return err
	}
	quote.PersonKey = NormalizePersonKey(quote.Person)
	if quote.AddedAt.IsZero() {
		quote.AddedAt = time.Now().UTC()
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).Create(quote).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", ErrShortIDConflict, quote.ShortID)
		}
		return s.storeErr("insert", quote.ShortID, err)
	}
	s.logger.InfoContext(ctx, "inserted quote", "quote", quote)
	return nil
}

func (s *quoteStore) GetByShortID(ctx context.Context, shortID string) (*Quote, error) {
	shortID = NormalizeShortID(shortID)
	if shortID == "" {
		return nil, nil
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var quote Quote
	err := s.db.WithContext(ctx).
		Where("short_id = ? AND deleted_at IS NULL", shortID).
		First(&quote).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, s.storeErr("get", shortID, err)
	}
	return &quote, nil
}

func (s *quoteStore) GetFuzzyByShortIDPrefix(
	ctx context.Context,
	prefix string,
) ([]Quote, error) {
	prefix = NormalizeShortID(prefix)
	if prefix == "" {
		return nil, nil
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var quotes []Quote
	err := s.db.WithContext(ctx).
		Where("short_id LIKE ? ESCAPE '\\' AND deleted_at IS NULL", escapeLike(prefix)+"%").
		Order("short_id ASC").
		Find(&quotes).Error
	if err != nil {
		return nil, s.storeErr("fuzzy", prefix, err)
	}
	return quotes, nil
}

func (s *quoteStore) Search(ctx context.Context, query string, limit int) ([]Quote, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit < searchLimitMin {
		limit = searchLimitMin
	} else if limit > SearchLimitMax {
		limit = SearchLimitMax
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	var quotes []Quote
	err := s.db.WithContext(ctx).
		Where(
			"deleted_at IS NULL AND (LOWER(message) LIKE ? ESCAPE '\\' OR LOWER(tags) LIKE ? ESCAPE '\\')",
			pattern,
			pattern,
		).
		Order("added_at ASC").
		Limit(limit).
		Find(&quotes).Error
	if err != nil {
		return nil, s.storeErr("search", query, err)
	}
	return quotes, nil
}

func (s *quoteStore) IncrementUses(ctx context.Context, shortID string) error {
	shortID = NormalizeShortID(shortID)
	if shortID == "" {
		return nil
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).Model(&Quote{}).
		Where("short_id = ?", shortID).
		UpdateColumn("uses", gorm.Expr("uses + 1")).Error
	if err != nil {
		return s.storeErr("increment_uses", shortID, err)
	}
	return nil
}

func (s *quoteStore) IncrementLikes(
	ctx context.Context,
	shortID string,
) (*int64, error) {
	shortID = NormalizeShortID(shortID)
	if shortID == "" {
		return nil, nil
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var likes []int64
	err := s.db.WithContext(ctx).Raw(
		"UPDATE quotes SET likes = likes + 1 WHERE short_id = ? RETURNING likes",
		shortID,
	).Scan(&likes).Error
	if err != nil {
		return nil, s.storeErr("increment_likes", shortID, err)
	}
	if len(likes) == 0 {
		return nil, nil
	}
	return &likes[0], nil
}

func (s *quoteStore) SoftDelete(
	ctx context.Context,
	shortID string,
	deletedBy string,
) (bool, error) {
	shortID = NormalizeShortID(shortID)
	if shortID == "" {
		return false, nil
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	tx := s.db.WithContext(ctx).Model(&Quote{}).
		Where("short_id = ? AND deleted_at IS NULL", shortID).
		Updates(map[string]any{
			"deleted_at": &now,
			"deleted_by": strings.TrimSpace(deletedBy),
		})
	if tx.Error != nil {
		return false, s.storeErr("soft_delete", shortID, tx.Error)
	}
	deleted := tx.RowsAffected > 0
	if deleted {
		s.logger.InfoContext(
			ctx,
			"soft-deleted quote",
			"short_id", shortID,
			"deleted_by", deletedBy,
		)
	}
	return deleted, nil
}

func (s *quoteStore) Restore(
	ctx context.Context,
	shortID string,
	restoredBy string,
) (bool, error) {
	shortID = NormalizeShortID(shortID)
	if shortID == "" {
		return false, nil
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	tx := s.db.WithContext(ctx).Model(&Quote{}).
		Where("short_id = ? AND deleted_at IS NOT NULL", shortID).
		Updates(map[string]any{
			"deleted_at": nil,
			"deleted_by": nil,
		})
	if tx.Error != nil {
		return false, s.storeErr("restore", shortID, tx.Error)
	}
	restored := tx.RowsAffected > 0
	if restored {
		s.logger.InfoContext(
			ctx,
			"restored quote",
			"short_id", shortID,
			"restored_by", strings.TrimSpace(restoredBy),
		)
	}
	return restored, nil
}

func (s *quoteStore) FindByPersonKey(
	ctx context.Context,
	personKey string,
) ([]Quote, error) {
	personKey = NormalizePersonKey(personKey)

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var quotes []Quote
	err := s.db.WithContext(ctx).
		Where("person_key = ? AND deleted_at IS NULL", personKey).
		Order("added_at ASC").
		Find(&quotes).Error
	if err != nil {
		return nil, s.storeErr("find_by_person", personKey, err)
	}
	return quotes, nil
}

func (s *quoteStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, dbOperationTimeout)
}

func (s *quoteStore) storeErr(op string, key string, err error) error {
	s.logger.Error(
		"store operation failed",
		"op", op,
		"key", key,
		tint.Err(err),
	)
	return fmt.Errorf("%w: %s %s: %w", ErrStoreUnavailable, op, key, err)
}

// escapeLike escapes LIKE metacharacters so user input matches
// literally. Backslash is the escape character on both sqlite and
// postgres.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}
