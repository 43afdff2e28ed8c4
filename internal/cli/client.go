package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"darkpool/internal/game"
)

type Client struct {
	BaseURL  string
	AdminKey string
	HTTP     *http.Client
}

func NewClient(baseURL, adminKey string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		AdminKey: adminKey,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type RegisterResult struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// ActionResult is the uniform action response: a status message plus the
// refreshed dashboard. Rejections come back the same shape.
type ActionResult struct {
	Message   string           `json:"message"`
	Dashboard *game.PlayerView `json:"dashboard,omitempty"`
}

func (c *Client) Register(ctx context.Context, email, displayName string) (RegisterResult, error) {
	var out RegisterResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/register", "", map[string]any{
		"email":        email,
		"display_name": displayName,
	}, &out)
	return out, err
}

func (c *Client) Dashboard(ctx context.Context, token string) (game.PlayerView, error) {
	var out game.PlayerView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/dashboard", token, nil, &out)
	return out, err
}

func (c *Client) Buy(ctx context.Context, token string, qty int64) (ActionResult, error) {
	return c.action(ctx, token, "/v1/actions/buy", map[string]any{"quantity": qty})
}

func (c *Client) Sell(ctx context.Context, token string, qty int64) (ActionResult, error) {
	return c.action(ctx, token, "/v1/actions/sell", map[string]any{"quantity": qty})
}

func (c *Client) Intel(ctx context.Context, token, direction string) (ActionResult, error) {
	return c.action(ctx, token, "/v1/actions/intel", map[string]any{"direction": direction})
}

func (c *Client) Loan(ctx context.Context, token string, amount int64) (ActionResult, error) {
	return c.action(ctx, token, "/v1/actions/loan", map[string]any{"amount": amount})
}

func (c *Client) Say(ctx context.Context, token, text string) (ActionResult, error) {
	return c.action(ctx, token, "/v1/messages", map[string]any{"text": text})
}

func (c *Client) AdminStart(ctx context.Context) (map[string]any, error) {
	return c.admin(ctx, http.MethodPost, "/v1/admin/start")
}

func (c *Client) AdminAdvance(ctx context.Context) (map[string]any, error) {
	return c.admin(ctx, http.MethodPost, "/v1/admin/advance")
}

func (c *Client) AdminFastForward(ctx context.Context) (map[string]any, error) {
	return c.admin(ctx, http.MethodPost, "/v1/admin/fast-forward")
}

func (c *Client) AdminReset(ctx context.Context) (map[string]any, error) {
	return c.admin(ctx, http.MethodPost, "/v1/admin/reset")
}

func (c *Client) AdminOverview(ctx context.Context) (game.AdminView, error) {
	var out game.AdminView
	err := c.request(ctx, http.MethodGet, "/v1/admin/overview", "", nil, &out, true, "")
	return out, err
}

// Action posts a raw player action. A non-empty idempotency key makes the
// call safe to replay from the offline queue.
func (c *Client) Action(ctx context.Context, token, path string, body map[string]any, idemKey string) (ActionResult, error) {
	var out ActionResult
	err := c.request(ctx, http.MethodPost, path, token, body, &out, false, idemKey)
	// Policy rejections arrive as non-2xx but still carry the result shape.
	if err != nil && out.Message != "" {
		return out, nil
	}
	return out, err
}

func (c *Client) action(ctx context.Context, token, path string, body map[string]any) (ActionResult, error) {
	return c.Action(ctx, token, path, body, "")
}

func (c *Client) admin(ctx context.Context, method, path string) (map[string]any, error) {
	var out map[string]any
	err := c.request(ctx, method, path, "", nil, &out, true, "")
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path, token string, body any, out any) error {
	return c.request(ctx, method, path, token, body, out, false, "")
}

func (c *Client) request(ctx context.Context, method, path, token string, body, out any, admin bool, idemKey string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if admin && c.AdminKey != "" {
		req.Header.Set("X-Admin-Key", c.AdminKey)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if out != nil && len(raw) > 0 {
		// Decode even on error statuses; action rejections carry a body.
		_ = json.Unmarshal(raw, out)
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		reason := apiErr.Error
		if reason == "" {
			reason = apiErr.Message
		}
		if reason == "" {
			reason = strings.TrimSpace(string(raw))
		}
		return fmt.Errorf("api status %d: %s", resp.StatusCode, reason)
	}
	return nil
}
