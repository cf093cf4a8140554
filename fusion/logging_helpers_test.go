package fusion

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithLogger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, ok := ContextLogger(ctx)
	assert.False(t, ok)

	logger := slog.Default().With("test", t.Name())
	ctx = WithLogger(ctx, logger)
	found, ok := ContextLogger(ctx)
	require.True(t, ok)
	assert.Equal(t, logger, found)

	// nil falls back to the default logger instead of storing nil
	ctx = WithLogger(context.Background(), nil)
	found, ok = ContextLogger(ctx)
	require.True(t, ok)
	assert.NotNil(t, found)
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exact", truncate("exact", 5))
	assert.Equal(t, "trunc", truncate("truncated", 5))
	// counts runes, not bytes
	assert.Equal(t, "héll", truncate("héllo", 4))
}

func TestDiscordgoLoggerFunc(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	handler := slog.NewTextHandler(
		&buf,
		&slog.HandlerOptions{Level: slog.LevelDebug},
	)
	logFn := discordgoLoggerFunc(context.Background(), handler)

	logFn(discordgo.LogWarning, 0, "gateway %s\n", "reconnect")
	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "gateway reconnect")

	// unknown discordgo levels land at info
	buf.Reset()
	logFn(42, 0, "unmapped level")
	assert.Contains(t, buf.String(), "level=INFO")
}

func TestStructToSlogValueRedactsSecrets(t *testing.T) {
	t.Parallel()
	config := DefaultConfig()
	config.Discord.Token = "super-secret-token"
	config.Warcraft.ClientSecret = "also-secret"

	attrs := map[string]slog.Value{}
	flattenGroup(structToSlogValue(config), "", attrs)

	for key, value := range attrs {
		assert.NotContains(t, value.String(), "super-secret-token", key)
		assert.NotContains(t, value.String(), "also-secret", key)
	}
	assert.Equal(t, "[redacted]", attrs["discord.token"].String())
}

// flattenGroup recursively collects group attrs into dotted keys.
func flattenGroup(v slog.Value, prefix string, out map[string]slog.Value) {
	if v.Kind() != slog.KindGroup {
		out[prefix] = v
		return
	}
	for _, attr := range v.Group() {
		key := attr.Key
		if prefix != "" {
			key = prefix + "." + key
		}
		flattenGroup(attr.Value, key, out)
	}
}
