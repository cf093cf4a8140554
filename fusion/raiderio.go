package fusion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

const (
	raiderioRequestTimeout = 15 * time.Second
	raiderioGuildFields    = "raid_progression"
	raiderioAPIKeyHeader   = "x-api-key"
)

// RaiderIOClient calls the public Raider.IO v1 API.
type RaiderIOClient struct {
	httpClient *http.Client
	config     *RaiderIOConfig
	logger     *slog.Logger
}

func NewRaiderIOClient(
	config *RaiderIOConfig,
	httpClient *http.Client,
	logger *slog.Logger,
) (*RaiderIOClient, error) {
	if config == nil {
		return nil, fmt.Errorf("nil raiderio config")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: raiderioRequestTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RaiderIOClient{
		httpClient: httpClient,
		config:     config,
		logger:     logger.With(loggerNameKey, "raiderio_client"),
	}, nil
}

// RaiderIOCharacterProfile is a character's Mythic+ profile.
type RaiderIOCharacterProfile struct {
	Name           string `json:"name"`
	Race           string `json:"race"`
	Class          string `json:"class"`
	ActiveSpecName string `json:"active_spec_name"`
	ActiveSpecRole string `json:"active_spec_role"`
	Faction        string `json:"faction"`
	Region         string `json:"region"`
	Realm          string `json:"realm"`
	ProfileURL     string `json:"profile_url"`
	ThumbnailURL   string `json:"thumbnail_url"`

	Gear *RaiderIOGear `json:"gear,omitempty"`

	MythicPlusScoresBySeason []RaiderIOSeasonScores `json:"mythic_plus_scores_by_season,omitempty"`
}

// CurrentScore returns the character's overall score for the first
// (most recent) season in the response, and whether one was present.
func (p RaiderIOCharacterProfile) CurrentScore() (float64, bool) {
	if len(p.MythicPlusScoresBySeason) == 0 {
		return 0, false
	}
	return p.MythicPlusScoresBySeason[0].Scores.All, true
}

type RaiderIOGear struct {
	ItemLevelEquipped float64 `json:"item_level_equipped"`
	ItemLevelTotal    float64 `json:"item_level_total"`
}

type RaiderIOSeasonScores struct {
	Season string         `json:"season"`
	Scores RaiderIOScores `json:"scores"`
}

type RaiderIOScores struct {
	All    float64 `json:"all"`
	DPS    float64 `json:"dps"`
	Healer float64 `json:"healer"`
	Tank   float64 `json:"tank"`
}

// RaiderIOGuildProfile is a guild's raid progression summary.
type RaiderIOGuildProfile struct {
	Name       string `json:"name"`
	Faction    string `json:"faction"`
	Region     string `json:"region"`
	Realm      string `json:"realm"`
	ProfileURL string `json:"profile_url"`

	RaidProgression map[string]RaiderIORaidProgress `json:"raid_progression,omitempty"`
}

type RaiderIORaidProgress struct {
	Summary            string `json:"summary"`
	TotalBosses        int    `json:"total_bosses"`
	NormalBossesKilled int    `json:"normal_bosses_killed"`
	HeroicBossesKilled int    `json:"heroic_bosses_killed"`
	MythicBossesKilled int    `json:"mythic_bosses_killed"`
}

// GetCharacter fetches a character's Mythic+ profile. A missing
// character returns (nil, nil).
func (c *RaiderIOClient) GetCharacter(
	ctx context.Context,
	region string,
	realm string,
	name string,
) (*RaiderIOCharacterProfile, error) {
	region = c.regionOrDefault(region)
	realm = strings.TrimSpace(realm)
	name = strings.TrimSpace(name)
	if realm == "" || name == "" {
		return nil, fmt.Errorf("%w: realm and name are required", ErrInvalidArgument)
	}

	query := url.Values{
		"region": {region},
		"realm":  {realm},
		"name":   {name},
	}
	if fields := c.config.DefaultFields; fields != "" {
		query.Set("fields", fields)
	}

	var profile RaiderIOCharacterProfile
	found, err := c.getJSON(ctx, "/characters/profile", query, &profile)
	if err != nil || !found {
		return nil, err
	}
	return &profile, nil
}

// GetGuild fetches a guild's raid progression. A missing guild
// returns (nil, nil).
func (c *RaiderIOClient) GetGuild(
	ctx context.Context,
	region string,
	realm string,
	name string,
) (*RaiderIOGuildProfile, error) {
	region = c.regionOrDefault(region)
	realm = strings.TrimSpace(realm)
	name = strings.TrimSpace(name)
	if realm == "" || name == "" {
		return nil, fmt.Errorf("%w: realm and name are required", ErrInvalidArgument)
	}

	query := url.Values{
		"region": {region},
		"realm":  {realm},
		"name":   {name},
		"fields": {raiderioGuildFields},
	}

	var profile RaiderIOGuildProfile
	found, err := c.getJSON(ctx, "/guilds/profile", query, &profile)
	if err != nil || !found {
		return nil, err
	}
	return &profile, nil
}

func (c *RaiderIOClient) getJSON(
	ctx context.Context,
	path string,
	query url.Values,
	out any,
) (bool, error) {
	baseURL := c.config.BaseURL
	if baseURL == "" {
		baseURL = DefaultRaiderIOBaseURL
	}
	requestURL := fmt.Sprintf(
		"%s%s?%s",
		strings.TrimSuffix(baseURL, "/"),
		path,
		query.Encode(),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return false, err
	}
	if c.config.APIKey != "" {
		req.Header.Set(raiderioAPIKeyHeader, c.config.APIKey)
	}

	rv, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("raiderio request failed", "path", path, tint.Err(err))
		return false, err
	}
	defer func() {
		_ = rv.Body.Close()
	}()

	switch {
	case rv.StatusCode == http.StatusNotFound:
		return false, nil
	case rv.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(rv.Body, 512))
		c.logger.Error(
			"unexpected raiderio response",
			"path", path,
			"status", rv.StatusCode,
			"body", string(body),
		)
		return false, fmt.Errorf("raiderio api returned status %d", rv.StatusCode)
	}

	if err = json.NewDecoder(rv.Body).Decode(out); err != nil {
		return false, fmt.Errorf("error decoding raiderio response: %w", err)
	}
	return true, nil
}

func (c *RaiderIOClient) regionOrDefault(region string) string {
	region = strings.ToLower(strings.TrimSpace(region))
	if region == "" {
		region = c.config.Region
	}
	if region == "" {
		region = DefaultRaiderIORegion
	}
	return region
}
