package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/bryansray/fusion/fusion"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = fusion.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "fusion [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("database", fusion.DefaultDatabase)
	viper.SetDefault("database_type", fusion.DefaultDatabaseType)
	viper.SetDefault(
		"database_slow_threshold",
		fusion.DefaultDatabaseSlowThreshold,
	)
	viper.SetDefault(
		"database_log_level",
		fusion.DefaultDatabaseLogLevel.String(),
	)

	viper.SetDefault("log_level", fusion.DefaultLogLevel.String())
	viper.SetDefault("startup_timeout", fusion.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", fusion.DefaultShutdownTimeout)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault("discord.notification_channel_id", "")
	viper.SetDefault(
		"discord.log_level",
		fusion.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		fusion.DefaultDiscordgoLogLevel.String(),
	)
	viper.SetDefault(
		"discord.gateway_intents",
		fusion.DefaultDiscordGatewayIntent,
	)
	viper.SetDefault("discord.startup_message", fusion.DefaultDiscordStartupMessage)
	viper.SetDefault("discord.custom_status", fusion.DefaultDiscordCustomStatus)

	// Warcraft config
	viper.SetDefault("warcraft.region", fusion.DefaultWarcraftRegion)
	viper.SetDefault("warcraft.locale", fusion.DefaultWarcraftLocale)
	viper.SetDefault("warcraft.client_id", "")
	viper.SetDefault("warcraft.client_secret", "")
	viper.SetDefault(
		"warcraft.max_requests_per_second",
		fusion.DefaultWarcraftMaxRequestsPerSecond,
	)
	viper.SetDefault(
		"warcraft.log_level",
		fusion.DefaultWarcraftLogLevel.String(),
	)

	// Raider.IO config
	viper.SetDefault("raiderio.region", fusion.DefaultRaiderIORegion)
	viper.SetDefault("raiderio.base_url", fusion.DefaultRaiderIOBaseURL)
	viper.SetDefault("raiderio.default_fields", fusion.DefaultRaiderIOFields)
	viper.SetDefault("raiderio.api_key", "")
	viper.SetDefault(
		"raiderio.log_level",
		fusion.DefaultRaiderIOLogLevel.String(),
	)

	// API config
	viper.SetDefault("api.enabled", fusion.DefaultAPIEnabled)
	viper.SetDefault("api.listen", fusion.DefaultAPIListen)
	viper.SetDefault("api.log_level", fusion.DefaultAPILogLevel.String())
	viper.SetDefault("api.read_timeout", fusion.DefaultReadTimeout)
	viper.SetDefault(
		"api.read_header_timeout",
		fusion.DefaultReadHeaderTimeout,
	)
	viper.SetDefault("api.write_timeout", fusion.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", fusion.DefaultIdleTimeout)

	// API: CORS config
	viper.SetDefault(
		"api.cors.allow_headers",
		fusion.DefaultCORSAllowHeaders,
	)
	viper.SetDefault(
		"api.cors.allow_methods",
		fusion.DefaultCORSAllowMethods,
	)
	viper.SetDefault(
		"api.cors.expose_headers",
		fusion.DefaultCORSExposeHeaders,
	)
	viper.SetDefault(
		"api.cors.allow_origins",
		[]string{},
	)
	viper.SetDefault("api.cors.max_age", fusion.DefaultCORSMaxAge)
	viper.SetDefault(
		"api.cors.allow_credentials",
		fusion.DefaultAPICORSAllowCredentials,
	)

	envPrefix := os.Getenv(fusion.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = fusion.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	// Convert values to correct types
	viper.Set(
		"api.cors.allow_headers",
		viper.GetStringSlice("api.cors.allow_headers"),
	)
	viper.Set(
		"api.cors.allow_origins",
		viper.GetStringSlice("api.cors.allow_origins"),
	)
	viper.Set(
		"api.cors.allow_methods",
		viper.GetStringSlice("api.cors.allow_methods"),
	)
	viper.Set(
		"api.cors.expose_headers",
		viper.GetStringSlice("api.cors.expose_headers"),
	)

	for _, key := range []string{
		"log_level",
		"database_log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"warcraft.log_level",
		"raiderio.log_level",
		"api.log_level",
	} {
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

//nolint:gochecknoinits
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}
