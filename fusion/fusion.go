package fusion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

// Build metadata, set via -ldflags at build time.
var (
	Version   = "dev"
	CommitSHA = ""
	BuildTime = ""
)

// Fusion wires the quote store, Discord bot, game API clients and the
// HTTP API together and owns their lifecycle.
type Fusion struct {
	config     *Config
	logger     *slog.Logger
	logHandler slog.Handler

	db    *gorm.DB
	store QuoteStore

	discord   *Discord
	directory UserDirectory
	warcraft  *WarcraftClient
	raiderio  *RaiderIOClient
	api       *API

	startedAt time.Time
	runMu     sync.Mutex

	// signalReady is closed once startup has finished
	signalReady chan struct{}
}

// New assembles a Fusion instance from the given config. The database
// isn't opened and the gateway isn't connected until Run.
func New(config *Config) (*Fusion, error) {
	if config == nil {
		return nil, errors.New("nil config")
	}

	logHandler := tint.NewHandler(
		os.Stdout,
		&tint.Options{
			Level:     config.LogLevel,
			AddSource: true,
		},
	)
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	f := &Fusion{
		config:      config,
		logger:      logger,
		logHandler:  logHandler,
		signalReady: make(chan struct{}),
	}

	var errs []error

	discord, err := newDiscord(config.Discord)
	errs = append(errs, err)
	if discord != nil {
		discord.logger = slog.New(
			tint.NewHandler(
				os.Stdout,
				&tint.Options{
					Level:     config.Discord.LogLevel,
					AddSource: true,
				},
			),
		).With(loggerNameKey, "discord")
		discord.f = f
		f.discord = discord
	}

	if config.Warcraft.Enabled() {
		warcraft, warErr := NewWarcraftClient(
			config.Warcraft,
			config.HTTPClient,
			logger,
		)
		errs = append(errs, warErr)
		f.warcraft = warcraft
	}

	if config.RaiderIO != nil {
		raiderio, rioErr := NewRaiderIOClient(
			config.RaiderIO,
			config.HTTPClient,
			logger,
		)
		errs = append(errs, rioErr)
		f.raiderio = raiderio
	}

	api, apiErr := newAPI(f, config.API)
	errs = append(errs, apiErr)
	f.api = api

	return f, errors.Join(errs...)
}

func (f *Fusion) ValidateConfig() error {
	return structValidator.Struct(f.config)
}

// ready reports whether startup has completed, meaning the store is
// open and the gateway is connected.
func (f *Fusion) ready() bool {
	select {
	case <-f.signalReady:
		return true
	default:
		return false
	}
}

// RegisterSlashCommands registers the bot's slash commands with the
// Discord API via bulk overwrite.
func (f *Fusion) RegisterSlashCommands(options ...discordgo.RequestOption) (
	[]*discordgo.ApplicationCommand,
	error,
) {
	return f.discord.registerCommands(options...)
}

// RegisterCommandsOnly creates a REST-only session and registers the
// bot's slash commands without connecting to the gateway, so command
// registration can run as a one-shot deploy step.
func (f *Fusion) RegisterCommandsOnly(ctx context.Context) (
	[]*discordgo.ApplicationCommand,
	error,
) {
	if err := f.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	session, err := f.discord.newSession()
	if err != nil {
		return nil, err
	}
	f.discord.session = session
	return f.RegisterSlashCommands(
		discordgo.WithContext(ctx),
		discordgo.WithRetryOnRatelimit(false),
	)
}

// Run opens the database, starts the HTTP API, connects to the Discord
// gateway and blocks until the context is canceled.
func (f *Fusion) Run(ctx context.Context) error {
	f.runMu.Lock()
	defer f.runMu.Unlock()

	f.startedAt = time.Now()

	if err := f.ValidateConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	startupCtx, startupCancel := context.WithTimeout(ctx, f.config.StartupTimeout)
	defer startupCancel()

	discordgo.Logger = discordgoLoggerFunc(ctx, f.logHandler)

	db, err := CreateDB(startupCtx, f.config.DatabaseType, f.config.Database)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	f.db = db

	store, err := NewQuoteStore(db, f.logger)
	if err != nil {
		return err
	}
	f.store = store

	session, err := f.discord.newSession()
	if err != nil {
		return err
	}
	f.discord.session = session
	f.directory = sessionDirectory{
		session: session,
		logger:  f.discord.logger,
	}

	apiErrCh := make(chan error, 1)
	if f.config.API.Enabled {
		go func() {
			apiErrCh <- f.api.Serve(ctx)
		}()
	}

	if _, err = session.GatewayBot(
		discordgo.WithContext(startupCtx),
		discordgo.WithRetryOnRatelimit(false),
	); err != nil {
		return fmt.Errorf("error reaching discord gateway: %w", err)
	}

	f.discord.discordgoRemoveHandlerFuncs = []func(){
		session.AddHandler(f.discord.handlerReady()),
		session.AddHandler(f.discord.handlerConnect()),
		session.AddHandler(f.discord.handlerDisconnect()),
		session.AddHandler(f.onInteractionCreate(ctx)),
	}

	if err = session.Open(); err != nil {
		return fmt.Errorf("error opening discord session: %w", err)
	}

	if _, err = f.RegisterSlashCommands(
		discordgo.WithContext(startupCtx),
		discordgo.WithRetryOnRatelimit(false),
	); err != nil {
		_ = session.Close()
		return fmt.Errorf("error registering slash commands: %w", err)
	}

	if f.config.Discord.CustomStatus != "" {
		if statusErr := f.discord.updateCustomStatus(
			f.config.Discord.CustomStatus,
		); statusErr != nil {
			f.logger.Warn("unable to set custom status", tint.Err(statusErr))
		}
	}

	f.logger.Info("startup complete", "config", f.config)
	close(f.signalReady)

	select {
	case <-ctx.Done():
	case err = <-apiErrCh:
		if err != nil {
			f.logger.Error("api server failed", tint.Err(err))
		}
	}

	return f.shutdown(session)
}

func (f *Fusion) shutdown(session DiscordSessionHandler) error {
	f.logger.Info("shutting down")
	for _, removeHandler := range f.discord.discordgoRemoveHandlerFuncs {
		removeHandler()
	}
	f.discord.discordgoRemoveHandlerFuncs = nil

	var errs []error
	if err := session.Close(); err != nil {
		f.logger.Error("error closing discord session", tint.Err(err))
		errs = append(errs, err)
	}

	if f.db != nil {
		if sqlDB, err := f.db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}

// onInteractionCreate returns the gateway handler that dispatches
// incoming interactions. Each interaction runs in its own goroutine so
// a slow handler can't stall the gateway event loop.
func (f *Fusion) onInteractionCreate(ctx context.Context) func(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	return func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		logger := f.discord.logger.With(interactionLogAttrs(*i)...)
		handler := GatewayHandler{
			session:     f.discord.session,
			interaction: i,
			logger:      logger,
		}
		go f.handleInteraction(WithLogger(ctx, logger), handler)
	}
}

// handleInteraction processes a single incoming Discord interaction:
// slash commands are acknowledged with a deferred response and then
// edited, component presses are answered directly.
func (f *Fusion) handleInteraction(
	ctx context.Context,
	handler InteractionHandler,
) {
	defer f.handleRecover(handler)

	i := handler.GetInteraction()
	logger := handler.Logger()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		subcommand := ""
		if len(data.Options) == 1 &&
			data.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
			subcommand = data.Options[0].Name
		}
		logger.Info(
			"received command",
			"command", data.Name,
			"subcommand", subcommand,
		)

		if err := handler.Respond(
			ctx,
			f.discord.ackResponse(data.Name, subcommand),
		); err != nil {
			return
		}
		options := discordInteractionOptions(i)

		switch data.Name {
		case DiscordSlashCommandQuote:
			switch subcommand {
			case quoteSubcommandAdd:
				f.handleQuoteAdd(ctx, handler, options)
			case quoteSubcommandFind:
				f.handleQuoteFind(ctx, handler, options)
			case quoteSubcommandSearch:
				f.handleQuoteSearch(ctx, handler, options)
			case quoteSubcommandDelete:
				f.handleQuoteDelete(ctx, handler, options)
			case quoteSubcommandRestore:
				f.handleQuoteRestore(ctx, handler, options)
			default:
				logger.Warn("unknown quote subcommand", "subcommand", subcommand)
			}
		case DiscordSlashCommandWarcraft:
			f.handleWarcraftCharacter(ctx, handler, options)
		case DiscordSlashCommandRaiderIO:
			switch subcommand {
			case guildSubcommand:
				f.handleRaiderIOGuild(ctx, handler, options)
			default:
				f.handleRaiderIOCharacter(ctx, handler, options)
			}
		case DiscordSlashCommandPing:
			f.handlePing(ctx, handler)
		default:
			logger.Warn("unknown command", "command", data.Name)
		}
	case discordgo.InteractionMessageComponent:
		customID := i.MessageComponentData().CustomID
		action, shortID, found := strings.Cut(customID, ":")
		if !found {
			logger.Warn("malformed component custom id", "custom_id", customID)
			return
		}
		f.handleQuoteComponent(ctx, handler, action, shortID)
	default:
		logger.Warn("unhandled interaction type", "type", i.Type.String())
	}
}

func (f *Fusion) handleRecover(handler InteractionHandler) {
	if rc := recover(); rc != nil {
		handler.Logger().Error(
			"panic handling interaction",
			"panic", rc,
			"stack", string(debug.Stack()),
		)
	}
}
