// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jeranaias/chanterm/internal/model"
)

// historyPageLimit is the page size for channel listing and history.
const historyPageLimit = 200

// =============================================================================
// WIRE TYPES
// =============================================================================

// apiResponse is the envelope every Web API method returns. Response
// structs embed it; the embedded pointer method lets the call path pull
// the envelope out of any of them.
type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (r *apiResponse) envelope() *apiResponse { return r }

// enveloped is satisfied by every response struct via embedding.
type enveloped interface {
	envelope() *apiResponse
}

// Identity describes the authenticated bot identity.
type Identity struct {
	UserID string `json:"user_id"`
	User   string `json:"user"`
	Team   string `json:"team"`
}

type authTestResponse struct {
	apiResponse
	Identity
}

type listChannelsResponse struct {
	apiResponse
	Channels []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		IsMember bool   `json:"is_member"`
	} `json:"channels"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

type wireMessage struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	User    string `json:"user"`
	BotID   string `json:"bot_id"`
	Text    string `json:"text"`
	TS      string `json:"ts"`
}

type historyResponse struct {
	apiResponse
	Messages []wireMessage `json:"messages"`
	HasMore  bool          `json:"has_more"`
}

type postMessageResponse struct {
	apiResponse
	Channel string      `json:"channel"`
	TS      string      `json:"ts"`
	Message wireMessage `json:"message"`
}

type userInfoResponse struct {
	apiResponse
	User struct {
		Name     string `json:"name"`
		RealName string `json:"real_name"`
		Profile  struct {
			RealName    string `json:"real_name"`
			DisplayName string `json:"display_name"`
		} `json:"profile"`
	} `json:"user"`
}

type socketOpenResponse struct {
	apiResponse
	URL string `json:"url"`
}

// =============================================================================
// CORE CALL PATH
// =============================================================================

// call performs one Web API method with pacing and bounded retries.
// Application-level errors are mapped to the package error taxonomy.
func (c *Client) call(ctx context.Context, method, token string, params url.Values, out enveloped) error {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		// Apply backoff delay after first attempt.
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timeAfter(c.retryDelay(attempt-1, lastErr)):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := c.doCall(ctx, method, token, params, out)
		if err == nil {
			return nil
		}
		if !c.isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doCall performs a single request without retries.
func (c *Client) doCall(ctx context.Context, method, token string, params url.Values, out enveloped) error {
	if params == nil {
		params = url.Values{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/"+method, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "chanterm/0.1.0")

	resp, err := sharedHTTPClient.Do(req)

	// SECURITY: Clear Authorization header immediately after the request
	// so a logged request can never leak the token.
	req.Header.Del("Authorization")

	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return parseRetryAfter(resp)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: HTTP %d", ErrAuthFailed, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode}
	}

	body, err := readResponse(resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if env := out.envelope(); !env.OK {
		return mapAPIError(env.Error)
	}
	return nil
}

// mapAPIError converts application-level error codes to the taxonomy.
func mapAPIError(code string) error {
	switch code {
	case "invalid_auth", "not_authed", "account_inactive", "token_revoked", "token_expired":
		return fmt.Errorf("%w: %s", ErrAuthFailed, code)
	case "ratelimited", "rate_limited":
		return ErrRateLimited
	case "channel_not_found":
		return ErrChannelNotFound
	case "not_in_channel":
		return ErrNotInChannel
	default:
		return &APIError{Code: code, Status: http.StatusOK}
	}
}

// =============================================================================
// GATEWAY OPERATIONS
// =============================================================================

// AuthTest verifies the bot token and returns the authenticated identity.
func (c *Client) AuthTest(ctx context.Context) (Identity, error) {
	if !c.IsConfigured() {
		return Identity{}, ErrNotConfigured
	}
	var resp authTestResponse
	if err := c.call(ctx, "auth.test", c.botToken, nil, &resp); err != nil {
		return Identity{}, err
	}
	return resp.Identity, nil
}

// ListChannels enumerates the workspace's public channels, following
// pagination cursors until exhausted.
func (c *Client) ListChannels(ctx context.Context) ([]model.Channel, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	var channels []model.Channel
	cursor := ""
	for {
		params := url.Values{
			"types": {"public_channel"},
			"limit": {strconv.Itoa(historyPageLimit)},
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var resp listChannelsResponse
		if err := c.call(ctx, "conversations.list", c.botToken, params, &resp); err != nil {
			return channels, err
		}
		for _, ch := range resp.Channels {
			channels = append(channels, model.Channel{
				ID:       ch.ID,
				Name:     ch.Name,
				IsMember: ch.IsMember,
			})
		}

		cursor = resp.ResponseMetadata.NextCursor
		if cursor == "" {
			return channels, nil
		}
	}
}

// FetchHistory returns up to limit messages of a channel older than
// beforeTS (all recent messages when beforeTS is zero), plus whether
// more history remains. Non-user frames (joins, topic changes) are
// filtered out.
func (c *Client) FetchHistory(ctx context.Context, channelID string, beforeTS model.TS, limit int) ([]model.Message, bool, error) {
	if !c.IsConfigured() {
		return nil, false, ErrNotConfigured
	}
	if limit <= 0 || limit > historyPageLimit {
		limit = historyPageLimit
	}

	params := url.Values{
		"channel": {channelID},
		"limit":   {strconv.Itoa(limit)},
	}
	if !beforeTS.IsZero() {
		params.Set("latest", string(beforeTS))
		params.Set("inclusive", "false")
	}

	var resp historyResponse
	if err := c.call(ctx, "conversations.history", c.botToken, params, &resp); err != nil {
		return nil, false, err
	}

	msgs := make([]model.Message, 0, len(resp.Messages))
	for _, wm := range resp.Messages {
		if m, ok := messageFromWire(channelID, wm); ok {
			msgs = append(msgs, m)
		}
	}
	return msgs, resp.HasMore, nil
}

// PostMessage posts body to the channel and returns the authoritative
// confirmed copy with the server-assigned timestamp and author.
func (c *Client) PostMessage(ctx context.Context, channelID, body string) (model.Message, error) {
	if !c.IsConfigured() {
		return model.Message{}, ErrNotConfigured
	}

	params := url.Values{
		"channel": {channelID},
		"text":    {body},
	}
	var resp postMessageResponse
	if err := c.call(ctx, "chat.postMessage", c.botToken, params, &resp); err != nil {
		return model.Message{}, err
	}

	// Same author fallback as history decode: bot-authored messages
	// carry bot_id instead of user, and the confirmed copy must keep the
	// identity the stream and history will report for it.
	author := resp.Message.User
	if author == "" {
		author = resp.Message.BotID
	}

	m := model.Message{
		ChannelID:  resp.Channel,
		TS:         model.TS(resp.TS),
		Author:     author,
		Body:       resp.Message.Text,
		Provenance: model.Confirmed,
	}
	if m.ChannelID == "" {
		m.ChannelID = channelID
	}
	if m.Body == "" {
		m.Body = body
	}
	return m, nil
}

// JoinChannel joins the bot identity to a public channel.
func (c *Client) JoinChannel(ctx context.Context, channelID string) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}
	var resp struct{ apiResponse }
	params := url.Values{"channel": {channelID}}

	// conversations.join has no payload beyond the envelope.
	err := c.call(ctx, "conversations.join", c.botToken, params, &resp)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == "already_in_channel" {
		return nil
	}
	return err
}

// UserInfo resolves a user ID to a display name, caching results for the
// session. Failures fall back to the raw ID without caching it, so a
// later lookup can still resolve the name.
func (c *Client) UserInfo(ctx context.Context, userID string) string {
	if userID == "" {
		return ""
	}

	c.userMu.Lock()
	if name, ok := c.userNames[userID]; ok {
		c.userMu.Unlock()
		return name
	}
	c.userMu.Unlock()

	var resp userInfoResponse
	params := url.Values{"user": {userID}}
	if err := c.call(ctx, "users.info", c.botToken, params, &resp); err != nil {
		// Transient failure: leave the cache alone so a later lookup
		// can still resolve the name.
		return userID
	}

	name := userID
	switch {
	case resp.User.RealName != "":
		name = resp.User.RealName
	case resp.User.Profile.RealName != "":
		name = resp.User.Profile.RealName
	case resp.User.Profile.DisplayName != "":
		name = resp.User.Profile.DisplayName
	case resp.User.Name != "":
		name = resp.User.Name
	}

	c.userMu.Lock()
	c.userNames[userID] = name
	c.userMu.Unlock()
	return name
}

// UserNames returns a copy of the session's resolved name cache.
func (c *Client) UserNames() map[string]string {
	c.userMu.Lock()
	defer c.userMu.Unlock()
	out := make(map[string]string, len(c.userNames))
	for id, name := range c.userNames {
		out[id] = name
	}
	return out
}

// OpenSocketURL mints a fresh event-stream URL using the app-level
// token. Each URL is single-use; the stream client calls this on every
// connection attempt.
func (c *Client) OpenSocketURL(ctx context.Context) (string, error) {
	if c.appToken == "" {
		return "", fmt.Errorf("%w: app token missing", ErrNotConfigured)
	}
	var resp socketOpenResponse
	if err := c.call(ctx, "apps.connections.open", c.appToken, nil, &resp); err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", errors.New("apps.connections.open returned empty url")
	}
	return resp.URL, nil
}

// messageFromWire converts one history frame into a Message. Only plain
// user messages survive; join/topic/system subtypes are dropped.
func messageFromWire(channelID string, wm wireMessage) (model.Message, bool) {
	if wm.Type != "message" || wm.Subtype != "" || wm.TS == "" {
		return model.Message{}, false
	}
	author := wm.User
	if author == "" {
		author = wm.BotID
	}
	if author == "" {
		return model.Message{}, false
	}
	return model.Message{
		ChannelID:  channelID,
		TS:         model.TS(wm.TS),
		Author:     author,
		Body:       wm.Text,
		Provenance: model.Confirmed,
	}, true
}
