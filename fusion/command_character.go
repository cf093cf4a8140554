package fusion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	characterSubcommand   = "character"
	guildSubcommand       = "guild"
	characterOptionRealm  = "realm"
	characterOptionServer = "server"
	characterOptionName   = "character"
	guildOptionName       = "guild"
)

// classColors maps class names to their standard Warcraft UI colors.
var classColors = map[string]int{
	"death knight": 0xC41E3A,
	"demon hunter": 0xA330C9,
	"druid":        0xFF7C0A,
	"evoker":       0x33937F,
	"hunter":       0xAAD372,
	"mage":         0x3FC7EB,
	"monk":         0x00FF98,
	"paladin":      0xF48CBA,
	"priest":       0xFFFFFF,
	"rogue":        0xFFF468,
	"shaman":       0x0070DD,
	"warlock":      0x8788EE,
	"warrior":      0xC69B6D,
}

func classColor(class string) int {
	if color, ok := classColors[strings.ToLower(strings.TrimSpace(class))]; ok {
		return color
	}
	return embedColorDefault
}

func (f *Fusion) handleWarcraftCharacter(
	ctx context.Context,
	handler InteractionHandler,
	options map[string]*discordgo.ApplicationCommandInteractionDataOption,
) {
	logger := handler.Logger()

	var realm, character string
	if opt, ok := options[characterOptionRealm]; ok {
		realm = opt.StringValue()
	}
	if opt, ok := options[characterOptionName]; ok {
		character = opt.StringValue()
	}

	region := ""
	if f.config.Warcraft != nil {
		region = f.config.Warcraft.Region
	}
	if region == "" {
		region = DefaultWarcraftRegion
	}

	profile, err := f.warcraft.GetCharacter(ctx, region, realm, character)
	if err != nil {
		if errors.Is(err, ErrInvalidArgument) {
			f.editText(ctx, handler, fmt.Sprintf("That doesn't look right: %s", err.Error()))
			return
		}
		logger.Error("error looking up character", tint.Err(err))
		f.editText(ctx, handler, "Sorry, something went wrong!")
		return
	}
	if profile == nil {
		f.editText(
			ctx,
			handler,
			fmt.Sprintf("No character named **%s** found on **%s**.", character, realm),
		)
		return
	}

	embed := buildWarcraftCharacterEmbed(profile)
	embeds := []*discordgo.MessageEmbed{embed}
	if _, err = handler.Edit(
		ctx,
		&discordgo.WebhookEdit{Embeds: &embeds},
	); err != nil {
		logger.Error("error sending character profile", tint.Err(err))
	}
}

func buildWarcraftCharacterEmbed(p *CharacterProfile) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Level", Value: fmt.Sprintf("%d", p.Level), Inline: true},
		{Name: "Class", Value: p.CharacterClass.Name, Inline: true},
	}
	if p.ActiveSpec.Name != "" {
		fields = append(
			fields,
			&discordgo.MessageEmbedField{
				Name: "Spec", Value: p.ActiveSpec.Name, Inline: true,
			},
		)
	}
	fields = append(
		fields,
		&discordgo.MessageEmbedField{
			Name:   "Item Level",
			Value:  fmt.Sprintf("%d equipped / %d overall", p.EquippedItemLevel, p.AverageItemLevel),
			Inline: true,
		},
	)
	if p.Faction.Name != "" {
		fields = append(
			fields,
			&discordgo.MessageEmbedField{
				Name: "Faction", Value: p.Faction.Name, Inline: true,
			},
		)
	}
	if p.Guild != nil && p.Guild.Name != "" {
		fields = append(
			fields,
			&discordgo.MessageEmbedField{
				Name: "Guild", Value: p.Guild.Name, Inline: true,
			},
		)
	}
	fields = append(
		fields,
		&discordgo.MessageEmbedField{
			Name:   "Achievement Points",
			Value:  fmt.Sprintf("%d", p.AchievementPoints),
			Inline: true,
		},
	)

	embed := &discordgo.MessageEmbed{
		Title:  fmt.Sprintf("%s - %s", p.Name, p.Realm.Name),
		Color:  classColor(p.CharacterClass.Name),
		Fields: fields,
	}
	if p.LastLoginUnixMs > 0 {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf(
				"Last seen %s",
				time.UnixMilli(p.LastLoginUnixMs).UTC().Format(time.RFC1123),
			),
		}
	}
	return embed
}

func (f *Fusion) handleRaiderIOCharacter(
	ctx context.Context,
	handler InteractionHandler,
	options map[string]*discordgo.ApplicationCommandInteractionDataOption,
) {
	logger := handler.Logger()

	var server, character string
	if opt, ok := options[characterOptionServer]; ok {
		server = opt.StringValue()
	}
	if opt, ok := options[characterOptionName]; ok {
		character = opt.StringValue()
	}

	profile, err := f.raiderio.GetCharacter(ctx, "", server, character)
	if err != nil {
		if errors.Is(err, ErrInvalidArgument) {
			f.editText(ctx, handler, fmt.Sprintf("That doesn't look right: %s", err.Error()))
			return
		}
		logger.Error("error looking up raiderio character", tint.Err(err))
		f.editText(ctx, handler, "Sorry, something went wrong!")
		return
	}
	if profile == nil {
		f.editText(
			ctx,
			handler,
			fmt.Sprintf("No character named **%s** found on **%s**.", character, server),
		)
		return
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Class", Value: profile.Class, Inline: true},
	}
	if profile.ActiveSpecName != "" {
		fields = append(
			fields,
			&discordgo.MessageEmbedField{
				Name: "Spec", Value: profile.ActiveSpecName, Inline: true,
			},
		)
	}
	if score, ok := profile.CurrentScore(); ok {
		fields = append(
			fields,
			&discordgo.MessageEmbedField{
				Name:   "Mythic+ Score",
				Value:  fmt.Sprintf("%.1f", score),
				Inline: true,
			},
		)
	}
	if profile.Gear != nil {
		fields = append(
			fields,
			&discordgo.MessageEmbedField{
				Name:   "Item Level",
				Value:  fmt.Sprintf("%.0f equipped", profile.Gear.ItemLevelEquipped),
				Inline: true,
			},
		)
	}

	embed := &discordgo.MessageEmbed{
		Title:  fmt.Sprintf("%s - %s", profile.Name, profile.Realm),
		URL:    profile.ProfileURL,
		Color:  classColor(profile.Class),
		Fields: fields,
	}
	if profile.ThumbnailURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: profile.ThumbnailURL}
	}

	embeds := []*discordgo.MessageEmbed{embed}
	if _, err = handler.Edit(
		ctx,
		&discordgo.WebhookEdit{Embeds: &embeds},
	); err != nil {
		logger.Error("error sending raiderio profile", tint.Err(err))
	}
}

func (f *Fusion) handleRaiderIOGuild(
	ctx context.Context,
	handler InteractionHandler,
	options map[string]*discordgo.ApplicationCommandInteractionDataOption,
) {
	logger := handler.Logger()

	var realm, guild string
	if opt, ok := options[characterOptionRealm]; ok {
		realm = opt.StringValue()
	}
	if opt, ok := options[guildOptionName]; ok {
		guild = opt.StringValue()
	}

	profile, err := f.raiderio.GetGuild(ctx, "", realm, guild)
	if err != nil {
		if errors.Is(err, ErrInvalidArgument) {
			f.editText(ctx, handler, fmt.Sprintf("That doesn't look right: %s", err.Error()))
			return
		}
		logger.Error("error looking up guild", tint.Err(err))
		f.editText(ctx, handler, "Sorry, something went wrong!")
		return
	}
	if profile == nil {
		f.editText(
			ctx,
			handler,
			fmt.Sprintf("No guild named **%s** found on **%s**.", guild, realm),
		)
		return
	}

	var fields []*discordgo.MessageEmbedField
	for raid, progress := range profile.RaidProgression {
		fields = append(
			fields,
			&discordgo.MessageEmbedField{
				Name:   strings.ReplaceAll(raid, "-", " "),
				Value:  progress.Summary,
				Inline: true,
			},
		)
	}

	embed := &discordgo.MessageEmbed{
		Title:  fmt.Sprintf("%s - %s", profile.Name, profile.Realm),
		URL:    profile.ProfileURL,
		Color:  embedColorDefault,
		Fields: fields,
	}

	embeds := []*discordgo.MessageEmbed{embed}
	if _, err = handler.Edit(
		ctx,
		&discordgo.WebhookEdit{Embeds: &embeds},
	); err != nil {
		logger.Error("error sending guild profile", tint.Err(err))
	}
}

func (f *Fusion) handlePing(
	ctx context.Context,
	handler InteractionHandler,
) {
	uptime := time.Since(f.startedAt).Round(time.Second)
	f.editText(ctx, handler, fmt.Sprintf("Pong! Up %s.", uptime))
}
