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
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
)

const (
	blizzardOAuthURLFormat = "https://%s.battle.net/oauth/token"
	blizzardAPIURLFormat   = "https://%s.api.blizzard.com"

	// tokenExpirySkew is subtracted from the advertised token lifetime
	// so a token is refreshed before Blizzard actually rejects it.
	tokenExpirySkew = 30 * time.Second

	warcraftRequestTimeout = 15 * time.Second
)

// blizzardRegions is the set of API regions Blizzard operates.
var blizzardRegions = map[string]bool{
	"us": true,
	"eu": true,
	"kr": true,
	"tw": true,
	"cn": true,
}

// NormalizeRegion lowercases and validates a Blizzard region code.
func NormalizeRegion(region string) (string, error) {
	region = strings.ToLower(strings.TrimSpace(region))
	if !blizzardRegions[region] {
		return "", fmt.Errorf("%w: unknown region %q", ErrInvalidArgument, region)
	}
	return region, nil
}

type accessToken struct {
	token     string
	expiresAt time.Time
}

func (t accessToken) valid() bool {
	return t.token != "" && time.Now().Before(t.expiresAt)
}

// WarcraftClient calls the Blizzard profile API using OAuth
// client-credentials tokens, cached per region.
type WarcraftClient struct {
	httpClient *http.Client
	config     *WarcraftConfig
	logger     *slog.Logger
	limiter    *rate.Limiter

	tokenMu sync.RWMutex
	tokens  map[string]accessToken

	// overridable in tests
	apiBaseOverride   string
	oauthBaseOverride string
}

// NewWarcraftClient returns a client for the Blizzard profile API, or
// an error when credentials are missing.
func NewWarcraftClient(
	config *WarcraftConfig,
	httpClient *http.Client,
	logger *slog.Logger,
) (*WarcraftClient, error) {
	if !config.Enabled() {
		return nil, fmt.Errorf("warcraft client requires client_id and client_secret")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: warcraftRequestTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	maxRPS := config.MaxRequestsPerSecond
	if maxRPS <= 0 {
		maxRPS = DefaultWarcraftMaxRequestsPerSecond
	}
	return &WarcraftClient{
		httpClient: httpClient,
		config:     config,
		logger:     logger.With(loggerNameKey, "warcraft_client"),
		limiter:    rate.NewLimiter(rate.Limit(maxRPS), maxRPS),
		tokens:     map[string]accessToken{},
	}, nil
}

// CharacterProfile is the subset of the Blizzard character profile
// response the bot renders.
type CharacterProfile struct {
	Name              string        `json:"name"`
	Level             int           `json:"level"`
	AverageItemLevel  int           `json:"average_item_level"`
	EquippedItemLevel int           `json:"equipped_item_level"`
	Faction           KeyedSummary  `json:"faction"`
	Race              NamedSummary  `json:"race"`
	CharacterClass    NamedSummary  `json:"character_class"`
	ActiveSpec        NamedSummary  `json:"active_spec"`
	Realm             RealmSummary  `json:"realm"`
	Guild             *NamedSummary `json:"guild,omitempty"`
	AchievementPoints int           `json:"achievement_points"`
	LastLoginUnixMs   int64         `json:"last_login_timestamp"`
}

// KeyedSummary is a Blizzard enum value (e.g. faction).
type KeyedSummary struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// NamedSummary is a named, ID-keyed Blizzard resource reference.
type NamedSummary struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// RealmSummary identifies a realm by name and slug.
type RealmSummary struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// GetCharacter fetches a character's profile summary. Realm and
// character names are slugified for the URL. A missing character
// returns (nil, nil).
func (c *WarcraftClient) GetCharacter(
	ctx context.Context,
	region string,
	realm string,
	character string,
) (*CharacterProfile, error) {
	region, err := NormalizeRegion(region)
	if err != nil {
		return nil, err
	}
	realmSlug := slugify(realm)
	characterSlug := slugify(character)
	if realmSlug == "" || characterSlug == "" {
		return nil, fmt.Errorf(
			"%w: realm and character are required",
			ErrInvalidArgument,
		)
	}

	token, err := c.getAccessToken(ctx, region)
	if err != nil {
		return nil, err
	}

	if err = c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	locale := c.config.Locale
	if locale == "" {
		locale = DefaultWarcraftLocale
	}
	requestURL := fmt.Sprintf(
		"%s/profile/wow/character/%s/%s?namespace=profile-%s&locale=%s",
		c.apiBase(region),
		url.PathEscape(realmSlug),
		url.PathEscape(characterSlug),
		region,
		url.QueryEscape(locale),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	rv, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("character request failed", tint.Err(err))
		return nil, err
	}
	defer func() {
		_ = rv.Body.Close()
	}()

	switch {
	case rv.StatusCode == http.StatusNotFound:
		return nil, nil
	case rv.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(rv.Body, 512))
		c.logger.Error(
			"unexpected character response",
			"status", rv.StatusCode,
			"body", string(body),
		)
		return nil, fmt.Errorf(
			"blizzard api returned status %d",
			rv.StatusCode,
		)
	}

	var profile CharacterProfile
	if err = json.NewDecoder(rv.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("error decoding character profile: %w", err)
	}
	return &profile, nil
}

// getAccessToken returns a cached token for the region, refreshing it
// with the client-credentials grant when missing or near expiry. The
// cache check runs under a read lock first so concurrent lookups don't
// serialize on the common path.
func (c *WarcraftClient) getAccessToken(
	ctx context.Context,
	region string,
) (string, error) {
	c.tokenMu.RLock()
	cached := c.tokens[region]
	c.tokenMu.RUnlock()
	if cached.valid() {
		return cached.token, nil
	}

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	// another goroutine may have refreshed while we waited
	if cached = c.tokens[region]; cached.valid() {
		return cached.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.oauthBase(region),
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.config.ClientID, c.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rv, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("token request failed", tint.Err(err))
		return "", err
	}
	defer func() {
		_ = rv.Body.Close()
	}()

	if rv.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oauth token request returned status %d", rv.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err = json.NewDecoder(rv.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("error decoding token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("oauth token response missing access_token")
	}

	token := accessToken{
		token: payload.AccessToken,
		expiresAt: time.Now().
			Add(time.Duration(payload.ExpiresIn) * time.Second).
			Add(-tokenExpirySkew),
	}
	c.tokens[region] = token
	c.logger.Info(
		"refreshed access token",
		"region", region,
		"expires_at", token.expiresAt,
	)
	return token.token, nil
}

func (c *WarcraftClient) apiBase(region string) string {
	if c.apiBaseOverride != "" {
		return c.apiBaseOverride
	}
	return fmt.Sprintf(blizzardAPIURLFormat, region)
}

func (c *WarcraftClient) oauthBase(region string) string {
	if c.oauthBaseOverride != "" {
		return c.oauthBaseOverride
	}
	return fmt.Sprintf(blizzardOAuthURLFormat, region)
}
