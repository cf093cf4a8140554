package cmd

import (
	"log/slog"
	"testing"

	"github.com/bryansray/fusion/fusion"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unmarshalConfig runs the same viper unmarshal the root command's
// PersistentPreRun does.
func unmarshalConfig(t *testing.T) *fusion.Config {
	t.Helper()
	config := fusion.DefaultConfig()
	err := viper.Unmarshal(
		config,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				LevelToStringHookFunc(),
			),
		),
	)
	require.NoError(t, err)
	return config
}

func TestGetLogLevel(t *testing.T) {
	for input, expected := range map[string]slog.Level{
		"DEBUG": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"ERROR": slog.LevelError,
	} {
		level, err := getLogLevel(input)
		require.NoError(t, err, input)
		assert.Equal(t, expected, level)
	}

	_, err := getLogLevel("LOUD")
	assert.Error(t, err)
}

func TestLevelStringToLevelVar(t *testing.T) {
	level, err := levelStringToLevelVar("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level.Level())

	_, err = levelStringToLevelVar("LOUD")
	assert.Error(t, err)
}

func TestInitConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	initConfig()
	config := unmarshalConfig(t)

	assert.Equal(t, fusion.DefaultDatabase, config.Database)
	assert.Equal(t, fusion.DefaultDatabaseType, config.DatabaseType)
	assert.Equal(t, fusion.DefaultStartupTimeout, config.StartupTimeout)
	assert.Equal(t, fusion.DefaultShutdownTimeout, config.ShutdownTimeout)
	assert.Equal(t, fusion.DefaultLogLevel, config.LogLevel.Level())

	require.NotNil(t, config.Discord)
	assert.Empty(t, config.Discord.Token)
	assert.Equal(t, fusion.DefaultDiscordCustomStatus, config.Discord.CustomStatus)
	assert.Equal(
		t,
		fusion.DefaultDiscordStartupMessage,
		config.Discord.StartupMessage,
	)
	assert.Equal(t, fusion.DefaultDiscordLogLevel, config.Discord.LogLevel.Level())

	require.NotNil(t, config.Warcraft)
	assert.Equal(t, fusion.DefaultWarcraftRegion, config.Warcraft.Region)
	assert.False(t, config.Warcraft.Enabled())

	require.NotNil(t, config.RaiderIO)
	assert.Equal(t, fusion.DefaultRaiderIOBaseURL, config.RaiderIO.BaseURL)
	assert.Equal(t, fusion.DefaultRaiderIOFields, config.RaiderIO.DefaultFields)

	require.NotNil(t, config.API)
	assert.True(t, config.API.Enabled)
	assert.Equal(t, fusion.DefaultAPIListen, config.API.Listen)
	assert.Equal(t, fusion.DefaultReadTimeout, config.API.ReadTimeout)
	assert.Equal(t, fusion.DefaultCORSAllowMethods, config.API.CORS.AllowMethods)
	assert.Empty(t, config.API.CORS.AllowOrigins)
}

func TestInitConfigEnvOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("FUSION_DATABASE", "/tmp/other.sqlite3")
	t.Setenv("FUSION_LOG_LEVEL", "DEBUG")
	t.Setenv("FUSION_DISCORD_TOKEN", "bot-token")
	t.Setenv("FUSION_DISCORD_APPLICATION_ID", "app-123")
	t.Setenv("FUSION_WARCRAFT_CLIENT_ID", "blizz-id")
	t.Setenv("FUSION_WARCRAFT_CLIENT_SECRET", "blizz-secret")
	t.Setenv("FUSION_API_LISTEN", "127.0.0.1:9999")

	initConfig()
	config := unmarshalConfig(t)

	assert.Equal(t, "/tmp/other.sqlite3", config.Database)
	assert.Equal(t, slog.LevelDebug, config.LogLevel.Level())
	assert.Equal(t, "bot-token", config.Discord.Token)
	assert.Equal(t, "app-123", config.Discord.ApplicationID)
	assert.True(t, config.Warcraft.Enabled())
	assert.Equal(t, "127.0.0.1:9999", config.API.Listen)
}

func TestInitConfigEnvPrefixOverride(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv(fusion.EnvvarSetEnvPrefix, "QUOTEBOT")
	t.Setenv("QUOTEBOT_DATABASE", "/tmp/prefixed.sqlite3")
	t.Setenv("FUSION_DATABASE", "/tmp/ignored.sqlite3")

	initConfig()
	config := unmarshalConfig(t)

	assert.Equal(t, "/tmp/prefixed.sqlite3", config.Database)
}
