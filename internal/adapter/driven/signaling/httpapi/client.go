// Package httpapi implements the backend signaling surface as a stateless
// HTTP client: token minting, call placement and decline notices.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/callglue/callglue/internal/core/domain"
)

type Client struct {
	baseURL string
	csrf    string
	local   domain.UserID
	httpc   *http.Client
}

// New builds a client for the backend at baseURL. csrfToken, when set, is
// sent as X-CSRFToken on every request.
func New(baseURL, csrfToken string, localUser domain.UserID) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		csrf:    csrfToken,
		local:   localUser,
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

// RequestToken mints a media token for channel.
func (c *Client) RequestToken(ctx context.Context, channel string) (domain.MediaCredentials, error) {
	req := struct {
		ChannelName string `json:"channelName"`
	}{ChannelName: channel}

	var resp struct {
		AppID string `json:"appID"`
		Token string `json:"token"`
	}
	if err := c.post(ctx, "/token/", req, &resp); err != nil {
		return domain.MediaCredentials{}, err
	}
	return domain.MediaCredentials{AppID: resp.AppID, Token: resp.Token}, nil
}

// PlaceCall asks the backend to relay an invite notice to target.
func (c *Client) PlaceCall(ctx context.Context, target domain.UserID, channel string) error {
	req := struct {
		UserToCall  int64  `json:"user_to_call"`
		ChannelName string `json:"channel_name"`
		From        int64  `json:"from"`
	}{UserToCall: int64(target), ChannelName: channel, From: int64(c.local)}

	return c.post(ctx, "/call-user/", req, nil)
}

// DeclineCall asks the backend to relay a decline notice to the caller.
func (c *Client) DeclineCall(ctx context.Context, caller domain.UserID, channel string) error {
	req := struct {
		Caller      int64  `json:"caller"`
		ChannelName string `json:"channel_name"`
	}{Caller: int64(caller), ChannelName: channel}

	return c.post(ctx, "/decline-call/", req, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.csrf != "" {
		req.Header.Set("X-CSRFToken", c.csrf)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("POST %s: unexpected status %s", path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
