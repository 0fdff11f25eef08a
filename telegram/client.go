package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"inboxpilot/utils"
)

const apiBase = "https://api.telegram.org"

// ErrConflict is returned when another consumer holds the getUpdates
// session (HTTP 409). The poller treats it as a signal to back off rather
// than a failure.
var ErrConflict = errors.New("telegram: conflict, another getUpdates consumer is active")

// Update is one entry from getUpdates or a webhook delivery.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is the inbound chat message we care about.
type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
	From      *User  `json:"from"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

// Client is a minimal Bot API client covering the two calls this service
// needs: long-poll getUpdates and sendMessage.
type Client struct {
	token string
	base  string
	http  *http.Client
}

func NewClient(token string) *Client {
	return &Client{
		token: token,
		base:  apiBase,
		// Long polls hold the connection open for the poll timeout, so the
		// transport timeout has to sit above it.
		http: &http.Client{Timeout: 50 * time.Second},
	}
}

// Configured reports whether a bot token is set.
func (c *Client) Configured() bool {
	return c.token != ""
}

// GetUpdates long-polls for new updates at or after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]Update, error) {
	params := url.Values{}
	params.Set("timeout", strconv.Itoa(timeoutSeconds))
	if offset > 0 {
		params.Set("offset", strconv.FormatInt(offset, 10))
	}

	raw, err := c.call(ctx, "getUpdates", params)
	if err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, utils.NewUpstreamError("telegram: bad getUpdates payload", err)
	}
	return updates, nil
}

// SendMessage delivers text to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	body, err := json.Marshal(map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.base, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return utils.NewUpstreamError("telegram: sendMessage request failed", err)
	}
	defer resp.Body.Close()
	return c.checkResponse(resp, nil)
}

func (c *Client) call(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s?%s", c.base, c.token, method, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, utils.NewUpstreamError("telegram: "+method+" request failed", err)
	}
	defer resp.Body.Close()

	var result json.RawMessage
	if err := c.checkResponse(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) checkResponse(resp *http.Response, result *json.RawMessage) error {
	if resp.StatusCode == http.StatusConflict {
		io.Copy(io.Discard, resp.Body)
		return ErrConflict
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return utils.NewUpstreamError("telegram: failed to read response", err)
	}

	var api apiResponse
	if err := json.Unmarshal(body, &api); err != nil {
		return utils.NewUpstreamError("telegram: bad response body", err)
	}
	if !api.OK {
		if api.ErrorCode == http.StatusConflict {
			return ErrConflict
		}
		return utils.NewUpstreamError(fmt.Sprintf("telegram: api error %d: %s", api.ErrorCode, api.Description), nil)
	}
	if result != nil {
		*result = api.Result
	}
	return nil
}
