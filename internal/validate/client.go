package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"idgateway/internal/metrics"
	"idgateway/internal/pool"
	"idgateway/internal/shared/logger"
)

// Config carries the account-service credentials and base URLs. Base URLs
// default to the real Steam hosts when left empty, so tests can point them
// at a local httptest server.
type Config struct {
	AccountServiceAPIKey string
	PlayerServiceBaseURL string
	CommunityBaseURL     string
}

const (
	defaultPlayerServiceBaseURL = "https://api.steampowered.com"
	defaultCommunityBaseURL     = "https://steamcommunity.com"
)

// Client wraps the seven checks from spec.md §4.3, each a function
// (account_id) -> Outcome. It shares one rate gate and one connection pool
// across every check, matching the single process-wide limiter design.
type Client struct {
	pool *pool.Pool
	gate *gate
	cfg  Config
}

func New(p *pool.Pool, cfg Config) *Client {
	if cfg.PlayerServiceBaseURL == "" {
		cfg.PlayerServiceBaseURL = defaultPlayerServiceBaseURL
	}
	if cfg.CommunityBaseURL == "" {
		cfg.CommunityBaseURL = defaultCommunityBaseURL
	}
	return &Client{pool: p, gate: newGate(), cfg: cfg}
}

func (c *Client) playerServiceURL(path, accountID string) string {
	q := url.Values{}
	q.Set("key", c.cfg.AccountServiceAPIKey)
	q.Set("steamid", accountID)
	q.Set("format", "json")
	return strings.TrimRight(c.cfg.PlayerServiceBaseURL, "/") + path + "?" + q.Encode()
}

// fetchDirect issues a rate-gated GET over a plain (non-pool) client, for
// the five profile-asset checks (steam_level among them), none of which use
// the pool.
func (c *Client) fetchDirect(ctx context.Context, urlStr string) ([]byte, *http.Response, *Outcome) {
	if err := c.gate.wait(ctx); err != nil {
		o := Errored(err)
		return nil, nil, &o
	}

	client := &http.Client{Timeout: pool.EndpointTimeout(pool.EndpointOther)}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		o := Errored(fmt.Errorf("validate: build request: %w", err))
		return nil, nil, &o
	}
	req.Header.Set("User-Agent", pool.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		o := Errored(err)
		return nil, nil, &o
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		o := Errored(fmt.Errorf("validate: read response: %w", err))
		return nil, nil, &o
	}
	return body, resp, nil
}

// fetchThroughPool issues a rate-gated GET routed through the connection
// pool, for the two rate-limited checks. On a classified error it marks the
// current connection cooled and retries through the next available one, in
// an explicit loop bounded by the pool size (spec.md §9, converting the
// original's recursive retry into a stack-bounded loop). An uncategorized
// error is returned to the caller as a transient failure without touching
// the pool.
func (c *Client) fetchThroughPool(ctx context.Context, endpoint pool.Endpoint, urlStr string, extraHeaders map[string]string) ([]byte, *http.Response, *Outcome) {
	maxAttempts := c.pool.Size()
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	timeout := pool.EndpointTimeout(endpoint)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.gate.wait(ctx); err != nil {
			o := Errored(err)
			return nil, nil, &o
		}

		conn := c.pool.Current()
		httpClient, err := pool.NewClient(conn, timeout)
		if err != nil {
			o := Errored(fmt.Errorf("validate: build client: %w", err))
			return nil, nil, &o
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			o := Errored(fmt.Errorf("validate: build request: %w", err))
			return nil, nil, &o
		}
		req.Header.Set("User-Agent", pool.UserAgent)
		for k, v := range extraHeaders {
			req.Header.Set(k, v)
		}

		resp, doErr := httpClient.Do(req)
		cls := classifyError(resp, doErr)

		if doErr == nil && resp.StatusCode != http.StatusTooManyRequests {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				o := Errored(fmt.Errorf("validate: read response: %w", readErr))
				return nil, nil, &o
			}
			return body, resp, nil
		}
		if resp != nil {
			resp.Body.Close()
		}

		if !cls.categorized {
			o := Errored(doErr)
			if doErr == nil {
				o = Errored(fmt.Errorf("validate: unexpected status %d", resp.StatusCode))
			}
			return nil, nil, &o
		}

		errMsg := classifiedErrorMessage(resp, doErr)
		result := c.pool.MarkCurrentCooldown(cls.class, endpoint, errMsg)
		metrics.PoolCooldownsTotal.WithLabelValues(string(cls.class), string(endpoint)).Inc()
		vlog := logger.WithComponent("validate")
		vlog.Warn().
			Str("endpoint", string(endpoint)).
			Str("error_class", string(cls.class)).
			Msg("marked connection cooled, rotating")
		if result.AllInCooldown {
			o := Deferred(int64(time.Until(result.EarliestAvailableAt) / time.Millisecond))
			return nil, nil, &o
		}
		// Loop again; c.pool.Current() will pick up the rotated connection.
	}

	o := Errored(fmt.Errorf("validate: exhausted pool retries for %s", endpoint))
	return nil, nil, &o
}

func classifiedErrorMessage(resp *http.Response, err error) string {
	if err != nil {
		return err.Error()
	}
	if resp != nil {
		return fmt.Sprintf("http %d", resp.StatusCode)
	}
	return "unknown error"
}

type playerServiceEnvelope struct {
	Response map[string]json.RawMessage `json:"response"`
}

// fieldIsEmpty reports whether a raw JSON value represents "absent or
// empty": an empty string, an empty object, or an empty array.
func fieldIsEmpty(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s == ""
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		return len(obj) == 0
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		return len(arr) == 0
	}
	return false
}

func (c *Client) simplePlayerServiceCheck(ctx context.Context, path, accountID, field string) Outcome {
	body, _, outcome := c.fetchDirect(ctx, c.playerServiceURL(path, accountID))
	if outcome != nil {
		return *outcome
	}

	var env playerServiceEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Errored(fmt.Errorf("validate: parse %s response: %w", path, err))
	}

	raw, present := env.Response[field]
	if !present || fieldIsEmpty(raw) {
		return Passed(field+" absent or empty", false)
	}
	return Failed(field + " present")
}

func (c *Client) AnimatedAvatar(ctx context.Context, accountID string) Outcome {
	return c.simplePlayerServiceCheck(ctx, "/IPlayerService/GetAnimatedAvatar/v1/", accountID, "avatar")
}

func (c *Client) AvatarFrame(ctx context.Context, accountID string) Outcome {
	return c.simplePlayerServiceCheck(ctx, "/IPlayerService/GetAvatarFrame/v1/", accountID, "avatar_frame")
}

func (c *Client) MiniProfileBackground(ctx context.Context, accountID string) Outcome {
	return c.simplePlayerServiceCheck(ctx, "/IPlayerService/GetMiniProfileBackground/v1/", accountID, "profile_background")
}

func (c *Client) ProfileBackground(ctx context.Context, accountID string) Outcome {
	return c.simplePlayerServiceCheck(ctx, "/IPlayerService/GetProfileBackground/v1/", accountID, "profile_background")
}

type steamLevelEnvelope struct {
	Response struct {
		PlayerLevel *int `json:"player_level"`
	} `json:"response"`
}

// SteamLevel passes accounts at level 13 or below. A response without
// player_level (e.g. an empty "response" object) is itself a pass, and
// additionally arms the private-profile marker that the worker loop uses to
// short-circuit the two rate-limited checks. A body that is not JSON is
// reported as a transient error.
func (c *Client) SteamLevel(ctx context.Context, accountID string) Outcome {
	body, _, outcome := c.fetchDirect(ctx, c.playerServiceURL("/IPlayerService/GetSteamLevel/v1/", accountID))
	if outcome != nil {
		return *outcome
	}

	var env steamLevelEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Errored(fmt.Errorf("validate: parse steam_level response: %w", err))
	}
	if env.Response.PlayerLevel == nil {
		return Passed("empty response", true)
	}
	if *env.Response.PlayerLevel <= 13 {
		return Passed(fmt.Sprintf("player_level=%d", *env.Response.PlayerLevel), false)
	}
	return Failed(fmt.Sprintf("player_level=%d", *env.Response.PlayerLevel))
}

type friendsEnvelope struct {
	FriendsList struct {
		Friends []json.RawMessage `json:"friends"`
	} `json:"friendslist"`
}

func (c *Client) Friends(ctx context.Context, accountID string) Outcome {
	urlStr := c.playerServiceURL("/ISteamUser/GetFriendList/v0001/", accountID)
	body, resp, outcome := c.fetchThroughPool(ctx, pool.EndpointFriends, urlStr, nil)
	if outcome != nil {
		return *outcome
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return Passed("private", true)
	}

	var env friendsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Errored(fmt.Errorf("validate: parse friends response: %w", err))
	}
	count := len(env.FriendsList.Friends)
	if count <= 60 {
		return Passed(fmt.Sprintf("friends=%d", count), false)
	}
	return Failed(fmt.Sprintf("friends=%d", count))
}

type inventoryEnvelope struct {
	Assets []json.RawMessage `json:"assets"`
}

// CSGOInventory passes accounts whose inventory response is null, an empty
// object, or otherwise carries no assets field.
func (c *Client) CSGOInventory(ctx context.Context, accountID string) Outcome {
	urlStr := fmt.Sprintf("%s/inventory/%s/730/2?l=english&count=5000", strings.TrimRight(c.cfg.CommunityBaseURL, "/"), accountID)
	headers := map[string]string{
		"Sec-Fetch-Dest": "empty",
		"Sec-Fetch-Mode": "cors",
		"Sec-Fetch-Site": "same-origin",
	}
	body, resp, outcome := c.fetchThroughPool(ctx, pool.EndpointCSGOInventory, urlStr, headers)
	if outcome != nil {
		return *outcome
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Passed("private", true)
	}

	var env inventoryEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Errored(fmt.Errorf("validate: parse csgo_inventory response: %w", err))
	}
	if len(env.Assets) == 0 {
		return Passed("no assets", false)
	}
	return Failed(fmt.Sprintf("assets=%d", len(env.Assets)))
}
