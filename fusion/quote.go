package fusion

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Quote is a single stored quote attributed to a person, addressed by
// a short collision-resistant identifier. DeletedAt/DeletedBy move in
// lockstep: both nil while the quote is active, both set once it has
// been soft-deleted.
type Quote struct {
	ID      uint   `json:"-" gorm:"primarykey"`
	ShortID string `json:"short_id" gorm:"uniqueIndex;size:32"`

	// Person is the attribution as entered; PersonKey is its
	// normalized grouping key and is always derived, never supplied.
	Person    string `json:"person"`
	PersonKey string `json:"person_key" gorm:"index"`

	// PersonUserID is set when the attribution resolved to a Discord
	// user mention.
	PersonUserID *string `json:"person_user_id,omitempty"`

	Message        string            `json:"message"`
	Tags           TagList           `json:"tags"`
	MentionedUsers MentionedUserList `json:"mentioned_users"`
	Nsfw           bool              `json:"nsfw"`

	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`

	AddedBy string    `json:"added_by"`
	AddedAt time.Time `json:"added_at"`

	Uses  int64 `json:"uses"`
	Likes int64 `json:"likes"`

	DeletedAt *time.Time `json:"deleted_at,omitempty" gorm:"index"`
	DeletedBy *string    `json:"deleted_by,omitempty"`
}

func (Quote) TableName() string {
	return "quotes"
}

// Deleted reports whether the quote has been soft-deleted.
func (q Quote) Deleted() bool {
	return q.DeletedAt != nil
}

// QuoteDeletion describes the audit state of a soft-deleted quote.
type QuoteDeletion struct {
	At time.Time
	By string
}

// Deletion returns the deletion audit record, or nil for an active
// quote. DeletedBy may lag DeletedAt on rows written before the audit
// column existed, so By can be empty.
func (q Quote) Deletion() *QuoteDeletion {
	if q.DeletedAt == nil {
		return nil
	}
	d := &QuoteDeletion{At: *q.DeletedAt}
	if q.DeletedBy != nil {
		d.By = *q.DeletedBy
	}
	return d
}

func (q Quote) validate() error {
	if strings.TrimSpace(q.ShortID) == "" {
		return fmt.Errorf("%w: short id is required", ErrInvalidArgument)
	}
	if len(q.ShortID) != DefaultShortIDLength {
		return fmt.Errorf(
			"%w: short id %q must be %d characters",
			ErrInvalidArgument,
			q.ShortID,
			DefaultShortIDLength,
		)
	}
	for _, c := range q.ShortID {
		if !strings.ContainsRune(shortIDAlphabet, c) {
			return fmt.Errorf(
				"%w: short id %q contains characters outside the identifier alphabet",
				ErrInvalidArgument,
				q.ShortID,
			)
		}
	}
	if strings.TrimSpace(q.Person) == "" {
		return fmt.Errorf("%w: person is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(q.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(q.GuildID) == "" {
		return fmt.Errorf("%w: guild id is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(q.ChannelID) == "" {
		return fmt.Errorf("%w: channel id is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(q.AddedBy) == "" {
		return fmt.Errorf("%w: added by is required", ErrInvalidArgument)
	}
	return nil
}

// LogValue implements [slog.LogValuer]. Message content is omitted so
// quote text never lands in logs.
func (q Quote) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("short_id", q.ShortID),
		slog.String("person_key", q.PersonKey),
		slog.String("guild_id", q.GuildID),
		slog.Bool("nsfw", q.Nsfw),
		slog.Int64("uses", q.Uses),
		slog.Int64("likes", q.Likes),
		slog.Bool("deleted", q.Deleted()),
	}
	return slog.GroupValue(attrs...)
}

// TagList stores quote tags as a JSON array in a single text column.
type TagList []string

func (t TagList) Value() (driver.Value, error) {
	if len(t) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (t *TagList) Scan(value any) error {
	if value == nil {
		*t = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported tag column type %T", value)
	}
	if len(data) == 0 {
		*t = nil
		return nil
	}
	return json.Unmarshal(data, t)
}

func (TagList) GormDataType() string {
	return "string"
}

// MentionedUser records a Discord user referenced in a quote's
// message at the time the quote was added.
type MentionedUser struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// MentionedUserList stores mentioned users as a JSON array in a
// single text column.
type MentionedUserList []MentionedUser

func (m MentionedUserList) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (m *MentionedUserList) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported mentioned user column type %T", value)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}

func (MentionedUserList) GormDataType() string {
	return "string"
}
