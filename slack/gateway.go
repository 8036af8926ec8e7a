// Package slack is the only component that talks to the Slack Web API.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	postMessageURL     = "https://slack.com/api/chat.postMessage"
	updateMessageURL   = "https://slack.com/api/chat.update"
	deleteMessageURL   = "https://slack.com/api/chat.delete"
	usersInfoURL       = "https://slack.com/api/users.info"
	usersProfileGetURL = "https://slack.com/api/users.profile.get"
)

// APIError is a failed Slack Web API call. Treated as transient: callers
// retry the same idempotent operation.
type APIError struct {
	Method string
	Reason string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s: %s", e.Method, e.Reason)
}

// Gateway is the chat-platform boundary consumed by the engine, publisher
// and drivers.
type Gateway interface {
	SendDirect(ctx context.Context, teamID, userID, text string) (string, error)
	PostChannel(ctx context.Context, teamID, channelID string, att Attachment) (string, error)
	UpdateChannel(ctx context.Context, teamID, channelID, messageID string, att Attachment) error
	DeleteChannel(ctx context.Context, teamID, channelID, messageID string) error
	FetchUserTimezone(ctx context.Context, teamID, userID string) (string, error)
	FetchDisplayIdentity(ctx context.Context, teamID, userID string) (DisplayIdentity, error)
}

// TokenSource yields a team's bot token.
type TokenSource interface {
	BotToken(teamID string) (string, error)
}

// Client implements Gateway over raw HTTP calls to the Slack Web API.
type Client struct {
	tokens TokenSource
	http   *http.Client
}

func NewClient(tokens TokenSource) *Client {
	return &Client{
		tokens: tokens,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

// SendDirect posts text to the participant's DM channel and returns the
// message timestamp.
func (c *Client) SendDirect(ctx context.Context, teamID, userID, text string) (string, error) {
	var resp apiResponse
	req := postMessageRequest{Channel: userID, Text: text}
	if err := c.call(ctx, teamID, postMessageURL, req, &resp); err != nil {
		return "", err
	}
	if !resp.Ok {
		return "", &APIError{Method: "chat.postMessage", Reason: resp.Error}
	}
	return resp.Ts, nil
}

func (c *Client) PostChannel(ctx context.Context, teamID, channelID string, att Attachment) (string, error) {
	var resp apiResponse
	req := postMessageRequest{Channel: channelID, Attachments: []Attachment{att}}
	if err := c.call(ctx, teamID, postMessageURL, req, &resp); err != nil {
		return "", err
	}
	if !resp.Ok {
		return "", &APIError{Method: "chat.postMessage", Reason: resp.Error}
	}
	return resp.Ts, nil
}

func (c *Client) UpdateChannel(ctx context.Context, teamID, channelID, messageID string, att Attachment) error {
	var resp apiResponse
	req := updateMessageRequest{Channel: channelID, Ts: messageID, Attachments: []Attachment{att}}
	if err := c.call(ctx, teamID, updateMessageURL, req, &resp); err != nil {
		return err
	}
	if !resp.Ok {
		return &APIError{Method: "chat.update", Reason: resp.Error}
	}
	return nil
}

func (c *Client) DeleteChannel(ctx context.Context, teamID, channelID, messageID string) error {
	var resp apiResponse
	req := deleteMessageRequest{Channel: channelID, Ts: messageID}
	if err := c.call(ctx, teamID, deleteMessageURL, req, &resp); err != nil {
		return err
	}
	if !resp.Ok {
		// Deleting an already-deleted message is a no-op for callers.
		if resp.Error == "message_not_found" {
			return nil
		}
		return &APIError{Method: "chat.delete", Reason: resp.Error}
	}
	return nil
}

func (c *Client) FetchUserTimezone(ctx context.Context, teamID, userID string) (string, error) {
	var resp usersInfoResponse
	if err := c.get(ctx, teamID, usersInfoURL, url.Values{"user": {userID}}, &resp); err != nil {
		return "", err
	}
	if !resp.Ok {
		return "", &APIError{Method: "users.info", Reason: resp.Error}
	}
	return resp.User.TZ, nil
}

func (c *Client) FetchDisplayIdentity(ctx context.Context, teamID, userID string) (DisplayIdentity, error) {
	var resp usersProfileResponse
	if err := c.get(ctx, teamID, usersProfileGetURL, url.Values{"user": {userID}}, &resp); err != nil {
		return DisplayIdentity{}, err
	}
	if !resp.Ok {
		return DisplayIdentity{}, &APIError{Method: "users.profile.get", Reason: resp.Error}
	}
	return DisplayIdentity{Name: resp.Profile.RealName, IconURL: resp.Profile.Image32}, nil
}

func (c *Client) call(ctx context.Context, teamID, endpoint string, payload, out any) error {
	token, err := c.tokens.BotToken(teamID)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	return c.do(req, endpoint, out)
}

func (c *Client) get(ctx context.Context, teamID, endpoint string, params url.Values, out any) error {
	token, err := c.tokens.BotToken(teamID)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	return c.do(req, endpoint, out)
}

func (c *Client) do(req *http.Request, endpoint string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Method: endpoint, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{Method: endpoint, Reason: resp.Status}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Method: endpoint, Reason: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}
