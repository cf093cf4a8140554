package fusion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	quoteSubcommandAdd     = "add"
	quoteSubcommandFind    = "find"
	quoteSubcommandSearch  = "search"
	quoteSubcommandDelete  = "delete"
	quoteSubcommandRestore = "restore"

	quoteOptionPerson = "person"
	quoteOptionQuote  = "quote"
	quoteOptionTags   = "tags"
	quoteOptionNsfw   = "nsfw"
	quoteOptionID     = "id"
	quoteOptionQuery  = "query"
	quoteOptionLimit  = "limit"

	// quoteSearchDisplayLimit caps how many results /quote search
	// shows in a single response
	quoteSearchDisplayLimit = 10

	// shortIDInsertAttempts is how many times an insert is retried
	// with a fresh identifier after a short ID collision
	shortIDInsertAttempts = 5

	quoteSearchSnippetLength = 120

	customIDFormat     = "%s:%s"
	customIDQuoteShare = "quote-share"
	customIDQuoteCopy  = "quote-copy"
	customIDQuoteLike  = "quote-like"

	embedColorDefault = 0x3498DB
	embedColorNSFW    = 0x992D22
)

var mentionPattern = regexp.MustCompile(`<@!?(\d+)>`)

// InteractionHandler abstracts responding to a Discord interaction, so
// command handlers can be tested without a gateway connection.
type InteractionHandler interface {
	// Respond sends an initial response to a Discord interaction.
	Respond(ctx context.Context, i *discordgo.InteractionResponse) error

	// Edit modifies an existing interaction response.
	Edit(
		ctx context.Context,
		e *discordgo.WebhookEdit,
		opts ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// GetInteraction returns the original InteractionCreate event.
	GetInteraction() *discordgo.InteractionCreate

	// Logger returns the logger associated with this handler.
	Logger() *slog.Logger
}

// GatewayHandler implements [InteractionHandler] for interactions
// received via the discord websocket gateway.
type GatewayHandler struct {
	session     DiscordSessionHandler
	interaction *discordgo.InteractionCreate
	logger      *slog.Logger
}

func (w GatewayHandler) Respond(
	ctx context.Context,
	response *discordgo.InteractionResponse,
) error {
	err := w.session.InteractionRespond(w.interaction.Interaction, response)
	if err != nil {
		w.logger.ErrorContext(ctx, "error responding to interaction", tint.Err(err))
	}
	return err
}

func (w GatewayHandler) Edit(
	ctx context.Context,
	wh *discordgo.WebhookEdit,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	msg, err := w.session.InteractionResponseEdit(
		w.interaction.Interaction,
		wh,
		opts...,
	)
	if err != nil {
		w.logger.ErrorContext(ctx, "error editing interaction response", tint.Err(err))
	}
	return msg, err
}

func (w GatewayHandler) GetInteraction() *discordgo.InteractionCreate {
	return w.interaction
}

func (w GatewayHandler) Logger() *slog.Logger {
	return w.logger
}

// UserDisplay is the resolved identity of a mentioned Discord user.
type UserDisplay struct {
	ID          string
	Username    string
	DisplayName string
}

// UserDirectory resolves user IDs to display identities. Gateway state
// tracking is disabled, so the default implementation hits the REST
// API; tests substitute a fixture.
type UserDirectory interface {
	Lookup(guildID string, userID string) (UserDisplay, bool)
}

type sessionDirectory struct {
	session DiscordSessionHandler
	logger  *slog.Logger
}

func (d sessionDirectory) Lookup(guildID string, userID string) (UserDisplay, bool) {
	if guildID != "" {
		member, err := d.session.GuildMember(guildID, userID)
		if err == nil && member != nil && member.User != nil {
			return guildMemberDisplay(member), true
		}
	}
	user, err := d.session.User(userID)
	if err != nil || user == nil {
		d.logger.Warn(
			"unable to resolve mentioned user",
			"user_id", userID,
			"guild_id", guildID,
			tint.Err(err),
		)
		return UserDisplay{}, false
	}
	return userDisplay(user), true
}

// guildMemberDisplay prefers the member's guild nickname over their
// account-level names.
func guildMemberDisplay(m *discordgo.Member) UserDisplay {
	display := m.Nick
	if display == "" {
		display = userDisplay(m.User).DisplayName
	}
	return UserDisplay{
		ID:          m.User.ID,
		Username:    m.User.Username,
		DisplayName: display,
	}
}

func userDisplay(u *discordgo.User) UserDisplay {
	display := u.GlobalName
	if display == "" {
		display = u.Username
	}
	return UserDisplay{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: display,
	}
}

// QuoteAddRequest carries the raw option values from /quote add.
type QuoteAddRequest struct {
	Person string
	Quote  string
	Tags   string
	Nsfw   bool
}

// GetTags splits the raw comma-separated tag input into trimmed,
// lowercased, de-duplicated tags. Empty entries are dropped.
func (r QuoteAddRequest) GetTags() []string {
	if strings.TrimSpace(r.Tags) == "" {
		return nil
	}
	seen := map[string]bool{}
	var tags []string
	for _, raw := range strings.Split(r.Tags, ",") {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

// resolvePerson interprets the person option. A bare user mention
// resolves to that user's display name with the user ID recorded; any
// other input is kept verbatim as a free-form attribution.
func resolvePerson(
	directory UserDirectory,
	guildID string,
	input string,
) (person string, personUserID *string) {
	input = strings.TrimSpace(input)
	match := mentionPattern.FindStringSubmatch(input)
	if match == nil || match[0] != input {
		return input, nil
	}
	userID := match[1]
	display, ok := directory.Lookup(guildID, userID)
	if !ok {
		return input, &userID
	}
	return display.DisplayName, &userID
}

// resolveMentionedUsers extracts every user mention from the message
// text, de-duplicated in first-appearance order.
func resolveMentionedUsers(
	directory UserDirectory,
	guildID string,
	message string,
) MentionedUserList {
	matches := mentionPattern.FindAllStringSubmatch(message, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := map[string]bool{}
	var mentioned MentionedUserList
	for _, match := range matches {
		userID := match[1]
		if seen[userID] {
			continue
		}
		seen[userID] = true
		entry := MentionedUser{UserID: userID}
		if display, ok := directory.Lookup(guildID, userID); ok {
			entry.DisplayName = display.DisplayName
		}
		mentioned = append(mentioned, entry)
	}
	return mentioned
}

func (f *Fusion) handleQuoteAdd(
	ctx context.Context,
	handler InteractionHandler,
	options map[string]*discordgo.ApplicationCommandInteractionDataOption,
) {
	i := handler.GetInteraction()
	logger := handler.Logger()

	req := QuoteAddRequest{}
	if opt, ok := options[quoteOptionPerson]; ok {
		req.Person = opt.StringValue()
	}
	if opt, ok := options[quoteOptionQuote]; ok {
		req.Quote = opt.StringValue()
	}
	if opt, ok := options[quoteOptionTags]; ok {
		req.Tags = opt.StringValue()
	}
	if opt, ok := options[quoteOptionNsfw]; ok {
		req.Nsfw = opt.BoolValue()
	}

	person, personUserID := resolvePerson(f.directory, i.GuildID, req.Person)
	mentioned := resolveMentionedUsers(f.directory, i.GuildID, req.Quote)

	user := getDiscordUser(i)
	quote := &Quote{
		Person:         person,
		PersonUserID:   personUserID,
		Message:        strings.TrimSpace(req.Quote),
		Tags:           req.GetTags(),
		MentionedUsers: mentioned,
		Nsfw:           req.Nsfw,
		GuildID:        i.GuildID,
		ChannelID:      i.ChannelID,
		AddedAt:        time.Now().UTC(),
	}
	if user != nil {
		quote.AddedBy = user.ID
	}

	var insertErr error
	for attempt := 0; attempt < shortIDInsertAttempts; attempt++ {
		shortID, err := NewShortID(DefaultShortIDLength)
		if err != nil {
			insertErr = err
			break
		}
		quote.ShortID = shortID
		insertErr = f.store.Insert(ctx, quote)
		if insertErr == nil || !errors.Is(insertErr, ErrShortIDConflict) {
			break
		}
		logger.Warn("short id collision, retrying", "short_id", shortID)
	}

	if insertErr != nil {
		logger.Error("error adding quote", tint.Err(insertErr))
		f.editText(ctx, handler, quoteErrorMessage(insertErr))
		return
	}

	content := fmt.Sprintf(
		"Saved quote `%s` for **%s**.",
		quote.ShortID,
		quote.Person,
	)
	if len(quote.Tags) > 0 {
		content = fmt.Sprintf(
			"%s Tags: %s",
			content,
			strings.Join(quote.Tags, ", "),
		)
	}
	f.editText(ctx, handler, content)
}

func (f *Fusion) handleQuoteFind(
	ctx context.Context,
	handler InteractionHandler,
	options map[string]*discordgo.ApplicationCommandInteractionDataOption,
) {
	logger := handler.Logger()

	var shortID string
	if opt, ok := options[quoteOptionID]; ok {
		shortID = opt.StringValue()
	}

	quote, err := f.store.GetByShortID(ctx, shortID)
	if err != nil {
		logger.Error("error finding quote", tint.Err(err))
		f.editText(ctx, handler, quoteErrorMessage(err))
		return
	}

	var closestMatch bool
	if quote == nil {
		matches, fuzzyErr := f.store.GetFuzzyByShortIDPrefix(ctx, shortID)
		if fuzzyErr != nil {
			logger.Error("error finding quote", tint.Err(fuzzyErr))
			f.editText(ctx, handler, quoteErrorMessage(fuzzyErr))
			return
		}
		if len(matches) == 0 {
			f.editText(
				ctx,
				handler,
				fmt.Sprintf("No quote found matching `%s`.", NormalizeShortID(shortID)),
			)
			return
		}
		quote = &matches[0]
		closestMatch = true
	}

	if err = f.store.IncrementUses(ctx, quote.ShortID); err != nil {
		logger.Warn("error incrementing uses", tint.Err(err))
	} else {
		quote.Uses++
	}

	var content *string
	if closestMatch {
		msg := fmt.Sprintf(
			"No exact match for `%s`, here's the closest match:",
			NormalizeShortID(shortID),
		)
		content = &msg
	}
	embeds := []*discordgo.MessageEmbed{buildQuoteEmbed(quote)}
	components := buildQuoteComponents(quote)
	if _, err = handler.Edit(
		ctx,
		&discordgo.WebhookEdit{
			Content:    content,
			Embeds:     &embeds,
			Components: &components,
		},
	); err != nil {
		logger.Error("error sending quote", tint.Err(err))
	}
}

func (f *Fusion) handleQuoteSearch(
	ctx context.Context,
	handler InteractionHandler,
	options map[string]*discordgo.ApplicationCommandInteractionDataOption,
) {
	logger := handler.Logger()

	var query string
	if opt, ok := options[quoteOptionQuery]; ok {
		query = opt.StringValue()
	}
	limit := quoteSearchDisplayLimit
	if opt, ok := options[quoteOptionLimit]; ok {
		limit = int(opt.IntValue())
	}
	if limit < 1 {
		limit = 1
	} else if limit > quoteSearchDisplayLimit {
		limit = quoteSearchDisplayLimit
	}

	quotes, err := f.store.Search(ctx, query, limit)
	if err != nil {
		logger.Error("error searching quotes", tint.Err(err))
		f.editText(ctx, handler, quoteErrorMessage(err))
		return
	}
	if len(quotes) == 0 {
		f.editText(ctx, handler, fmt.Sprintf("No quotes found for %q.", query))
		return
	}

	lines := make([]string, 0, len(quotes)+1)
	lines = append(
		lines,
		fmt.Sprintf("Found %d quote(s) for %q:", len(quotes), query),
	)
	for idx := range quotes {
		q := quotes[idx]
		if useErr := f.store.IncrementUses(ctx, q.ShortID); useErr != nil {
			logger.Warn(
				"error incrementing uses",
				"short_id", q.ShortID,
				tint.Err(useErr),
			)
		}
		lines = append(
			lines,
			fmt.Sprintf(
				"`%s` **%s**: %s",
				q.ShortID,
				q.Person,
				truncate(q.Message, quoteSearchSnippetLength),
			),
		)
	}
	f.editText(ctx, handler, strings.Join(lines, "\n"))
}

func (f *Fusion) handleQuoteDelete(
	ctx context.Context,
	handler InteractionHandler,
	options map[string]*discordgo.ApplicationCommandInteractionDataOption,
) {
	i := handler.GetInteraction()
	logger := handler.Logger()

	if !hasModerationPermission(i) {
		f.editText(ctx, handler, "You don't have permission to remove quotes.")
		return
	}

	var shortID string
	if opt, ok := options[quoteOptionID]; ok {
		shortID = opt.StringValue()
	}
	var deletedBy string
	if user := getDiscordUser(i); user != nil {
		deletedBy = user.ID
	}

	deleted, err := f.store.SoftDelete(ctx, shortID, deletedBy)
	if err != nil {
		logger.Error("error deleting quote", tint.Err(err))
		f.editText(ctx, handler, quoteErrorMessage(err))
		return
	}
	shortID = NormalizeShortID(shortID)
	if !deleted {
		f.editText(
			ctx,
			handler,
			fmt.Sprintf("No active quote found with ID `%s`.", shortID),
		)
		return
	}
	f.editText(ctx, handler, fmt.Sprintf("Quote `%s` has been removed.", shortID))
}

func (f *Fusion) handleQuoteRestore(
	ctx context.Context,
	handler InteractionHandler,
	options map[string]*discordgo.ApplicationCommandInteractionDataOption,
) {
	i := handler.GetInteraction()
	logger := handler.Logger()

	if !hasModerationPermission(i) {
		f.editText(ctx, handler, "You don't have permission to restore quotes.")
		return
	}

	var shortID string
	if opt, ok := options[quoteOptionID]; ok {
		shortID = opt.StringValue()
	}
	var restoredBy string
	if user := getDiscordUser(i); user != nil {
		restoredBy = user.ID
	}

	restored, err := f.store.Restore(ctx, shortID, restoredBy)
	if err != nil {
		logger.Error("error restoring quote", tint.Err(err))
		f.editText(ctx, handler, quoteErrorMessage(err))
		return
	}
	shortID = NormalizeShortID(shortID)
	if !restored {
		f.editText(
			ctx,
			handler,
			fmt.Sprintf("No removed quote found with ID `%s`.", shortID),
		)
		return
	}
	f.editText(ctx, handler, fmt.Sprintf("Quote `%s` has been restored.", shortID))
}

// handleQuoteComponent dispatches quote button presses
// (share/copy/like) by the custom ID prefix.
func (f *Fusion) handleQuoteComponent(
	ctx context.Context,
	handler InteractionHandler,
	action string,
	shortID string,
) {
	logger := handler.Logger()

	switch action {
	case customIDQuoteCopy:
		f.respondText(
			ctx,
			handler,
			fmt.Sprintf("`%s`", NormalizeShortID(shortID)),
			true,
		)
	case customIDQuoteLike:
		likes, err := f.store.IncrementLikes(ctx, shortID)
		if err != nil {
			logger.Error("error liking quote", tint.Err(err))
			f.respondText(ctx, handler, quoteErrorMessage(err), true)
			return
		}
		if likes == nil {
			f.respondText(
				ctx,
				handler,
				fmt.Sprintf(
					"Quote `%s` no longer exists.",
					NormalizeShortID(shortID),
				),
				true,
			)
			return
		}
		f.respondText(
			ctx,
			handler,
			fmt.Sprintf(
				"Quote `%s` now has %d like(s).",
				NormalizeShortID(shortID),
				*likes,
			),
			true,
		)
	case customIDQuoteShare:
		quote, err := f.store.GetByShortID(ctx, shortID)
		if err != nil {
			logger.Error("error sharing quote", tint.Err(err))
			f.respondText(ctx, handler, quoteErrorMessage(err), true)
			return
		}
		if quote == nil {
			f.respondText(
				ctx,
				handler,
				fmt.Sprintf(
					"Quote `%s` no longer exists.",
					NormalizeShortID(shortID),
				),
				true,
			)
			return
		}
		if err = f.store.IncrementUses(ctx, quote.ShortID); err != nil {
			logger.Warn("error incrementing uses", tint.Err(err))
		} else {
			quote.Uses++
		}
		if err = handler.Respond(
			ctx,
			&discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{
					Embeds: []*discordgo.MessageEmbed{buildQuoteEmbed(quote)},
				},
			},
		); err != nil {
			logger.Error("error sharing quote", tint.Err(err))
		}
	default:
		logger.Warn("unknown quote component", "action", action)
	}
}

// buildQuoteEmbed renders a quote as a Discord embed. NSFW quotes use
// a dark red accent so they stand out before anyone reads them.
func buildQuoteEmbed(q *Quote) *discordgo.MessageEmbed {
	color := embedColorDefault
	if q.Nsfw {
		color = embedColorNSFW
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Short Id", Value: fmt.Sprintf("`%s`", q.ShortID), Inline: true},
	}
	if q.Nsfw {
		fields = append(
			fields,
			&discordgo.MessageEmbedField{Name: "NSFW", Value: "Yes", Inline: true},
		)
	}
	if len(q.Tags) > 0 {
		fields = append(
			fields,
			&discordgo.MessageEmbedField{
				Name:   "Tags",
				Value:  strings.Join(q.Tags, ", "),
				Inline: true,
			},
		)
	}
	if len(q.MentionedUsers) > 0 {
		names := make([]string, 0, len(q.MentionedUsers))
		for _, m := range q.MentionedUsers {
			if m.DisplayName != "" {
				names = append(names, m.DisplayName)
			} else {
				names = append(names, fmt.Sprintf("<@%s>", m.UserID))
			}
		}
		fields = append(
			fields,
			&discordgo.MessageEmbedField{
				Name:   "Mentions",
				Value:  strings.Join(names, ", "),
				Inline: true,
			},
		)
	}
	fields = append(
		fields,
		&discordgo.MessageEmbedField{
			Name:   "Stats",
			Value:  fmt.Sprintf("%d use(s), %d like(s)", q.Uses, q.Likes),
			Inline: true,
		},
	)
	embed := &discordgo.MessageEmbed{
		Title:       q.Person,
		Description: q.Message,
		Color:       color,
		Fields:      fields,
		Timestamp:   q.AddedAt.Format(time.RFC3339),
	}
	if q.AddedBy != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Added by %s", q.AddedBy),
		}
	}
	return embed
}

func buildQuoteComponents(q *Quote) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Share",
					Style:    discordgo.PrimaryButton,
					CustomID: fmt.Sprintf(customIDFormat, customIDQuoteShare, q.ShortID),
				},
				discordgo.Button{
					Label:    "Copy ID",
					Style:    discordgo.SecondaryButton,
					CustomID: fmt.Sprintf(customIDFormat, customIDQuoteCopy, q.ShortID),
				},
				discordgo.Button{
					Label:    "Like",
					Style:    discordgo.SuccessButton,
					CustomID: fmt.Sprintf(customIDFormat, customIDQuoteLike, q.ShortID),
				},
			},
		},
	}
}

// quoteErrorMessage maps store errors to the short user-facing text
// shown in the interaction response.
func quoteErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return fmt.Sprintf("That doesn't look right: %s", err.Error())
	case errors.Is(err, ErrShortIDConflict):
		return "Couldn't generate a unique ID for that quote, try again."
	default:
		return "Sorry, something went wrong!"
	}
}

// editText replaces the deferred interaction response with plain text.
func (f *Fusion) editText(
	ctx context.Context,
	handler InteractionHandler,
	content string,
) {
	if _, err := handler.Edit(
		ctx,
		&discordgo.WebhookEdit{Content: &content},
	); err != nil {
		handler.Logger().Error("error editing response", tint.Err(err))
	}
}

// respondText sends an immediate text response to an interaction.
func (f *Fusion) respondText(
	ctx context.Context,
	handler InteractionHandler,
	content string,
	ephemeral bool,
) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := handler.Respond(
		ctx,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: content,
				Flags:   flags,
			},
		},
	); err != nil {
		handler.Logger().Error("error responding to interaction", tint.Err(err))
	}
}
