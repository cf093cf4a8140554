package fusion

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassColor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0x0070DD, classColor("Shaman"))
	assert.Equal(t, 0xC41E3A, classColor(" death knight "))
	assert.Equal(t, embedColorDefault, classColor("tinker"))
	assert.Equal(t, embedColorDefault, classColor(""))
}

func TestBuildWarcraftCharacterEmbed(t *testing.T) {
	t.Parallel()
	profile := &CharacterProfile{
		Name:              "Zappyboi",
		Level:             80,
		AverageItemLevel:  620,
		EquippedItemLevel: 618,
		Faction:           KeyedSummary{Type: "HORDE", Name: "Horde"},
		CharacterClass:    NamedSummary{ID: 7, Name: "Shaman"},
		ActiveSpec:        NamedSummary{ID: 262, Name: "Elemental"},
		Realm:             RealmSummary{Name: "Area 52", Slug: "area-52"},
		Guild:             &NamedSummary{Name: "Big Crits"},
		AchievementPoints: 15000,
		LastLoginUnixMs:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
	}

	embed := buildWarcraftCharacterEmbed(profile)
	assert.Equal(t, "Zappyboi - Area 52", embed.Title)
	assert.Equal(t, 0x0070DD, embed.Color)
	require.NotNil(t, embed.Footer)
	assert.Contains(t, embed.Footer.Text, "Last seen")

	fieldValues := map[string]string{}
	for _, field := range embed.Fields {
		fieldValues[field.Name] = field.Value
	}
	assert.Equal(t, "80", fieldValues["Level"])
	assert.Equal(t, "Shaman", fieldValues["Class"])
	assert.Equal(t, "Elemental", fieldValues["Spec"])
	assert.Equal(t, "618 equipped / 620 overall", fieldValues["Item Level"])
	assert.Equal(t, "Horde", fieldValues["Faction"])
	assert.Equal(t, "Big Crits", fieldValues["Guild"])
	assert.Equal(t, "15000", fieldValues["Achievement Points"])
}

func TestHandleWarcraftCharacterNotFound(t *testing.T) {
	t.Parallel()
	client, _ := warcraftTestClient(
		t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
	)
	f := commandFusion(t, nil)
	f.warcraft = client
	handler := &testInteractionHandler{
		t:           t,
		interaction: memberInteraction("555", 0),
	}

	f.handleWarcraftCharacter(
		context.Background(),
		handler,
		map[string]*discordgo.ApplicationCommandInteractionDataOption{
			characterOptionRealm: stringOption("Area 52"),
			characterOptionName:  stringOption("Nobody"),
		},
	)

	assert.Equal(
		t,
		"No character named **Nobody** found on **Area 52**.",
		handler.lastEditContent(),
	)
}

func TestHandleWarcraftCharacter(t *testing.T) {
	t.Parallel()
	client, _ := warcraftTestClient(
		t, func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(
				map[string]any{
					"name":            "Zappyboi",
					"level":           80,
					"character_class": map[string]any{"id": 7, "name": "Shaman"},
					"realm":           map[string]any{"name": "Area 52", "slug": "area-52"},
				},
			)
		},
	)
	f := commandFusion(t, nil)
	f.warcraft = client
	handler := &testInteractionHandler{
		t:           t,
		interaction: memberInteraction("555", 0),
	}

	f.handleWarcraftCharacter(
		context.Background(),
		handler,
		map[string]*discordgo.ApplicationCommandInteractionDataOption{
			characterOptionRealm: stringOption("Area 52"),
			characterOptionName:  stringOption("Zappyboi"),
		},
	)

	require.Len(t, handler.edits, 1)
	edit := handler.edits[0]
	require.NotNil(t, edit.Embeds)
	require.Len(t, *edit.Embeds, 1)
	assert.Equal(t, "Zappyboi - Area 52", (*edit.Embeds)[0].Title)
}

func TestHandleRaiderIOCharacterNotFound(t *testing.T) {
	t.Parallel()
	f := commandFusion(t, nil)
	f.raiderio = raiderioTestClient(
		t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
	)
	handler := &testInteractionHandler{
		t:           t,
		interaction: memberInteraction("555", 0),
	}

	f.handleRaiderIOCharacter(
		context.Background(),
		handler,
		map[string]*discordgo.ApplicationCommandInteractionDataOption{
			characterOptionServer: stringOption("area-52"),
			characterOptionName:   stringOption("Nobody"),
		},
	)

	assert.Equal(
		t,
		"No character named **Nobody** found on **area-52**.",
		handler.lastEditContent(),
	)
}

func TestHandleRaiderIOGuild(t *testing.T) {
	t.Parallel()
	f := commandFusion(t, nil)
	f.raiderio = raiderioTestClient(
		t, func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(
				map[string]any{
					"name":  "Big Crits",
					"realm": "Area 52",
					"raid_progression": map[string]any{
						"liberation-of-undermine": map[string]any{"summary": "8/8 M"},
					},
				},
			)
		},
	)
	handler := &testInteractionHandler{
		t:           t,
		interaction: memberInteraction("555", 0),
	}

	f.handleRaiderIOGuild(
		context.Background(),
		handler,
		map[string]*discordgo.ApplicationCommandInteractionDataOption{
			characterOptionRealm: stringOption("Area 52"),
			guildOptionName:      stringOption("Big Crits"),
		},
	)

	require.Len(t, handler.edits, 1)
	edit := handler.edits[0]
	require.NotNil(t, edit.Embeds)
	require.Len(t, *edit.Embeds, 1)
	embed := (*edit.Embeds)[0]
	assert.Equal(t, "Big Crits - Area 52", embed.Title)
	require.Len(t, embed.Fields, 1)
	assert.Equal(t, "liberation of undermine", embed.Fields[0].Name)
	assert.Equal(t, "8/8 M", embed.Fields[0].Value)
}

func TestHandlePing(t *testing.T) {
	t.Parallel()
	f := commandFusion(t, nil)
	f.startedAt = time.Now().Add(-90 * time.Second)
	handler := &testInteractionHandler{
		t:           t,
		interaction: memberInteraction("555", 0),
	}

	f.handlePing(context.Background(), handler)
	assert.Equal(t, "Pong! Up 1m30s.", handler.lastEditContent())
}
