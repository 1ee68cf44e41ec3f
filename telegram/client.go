// Package telegram is the outbound adapter for the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"rssbus/domain"
)

const defaultBaseURL = "https://api.telegram.org"

// ParseModeHTML is the minimal markup flag used for article posts.
const ParseModeHTML = "HTML"

type Client struct {
	httpClient *http.Client
	baseURL    string
	botToken   string
	logger     *slog.Logger
}

func NewClient(botToken string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
		botToken:   botToken,
		logger:     logger,
	}
}

// NewClientWithBaseURL is used by tests to point the client at a stub
// server.
func NewClientWithBaseURL(botToken, baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	c := NewClient(botToken, timeout, logger)
	c.baseURL = baseURL
	return c
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	MessageThreadID       int    `json:"message_thread_id,omitempty"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
	Result json.RawMessage `json:"result"`
}

// SendMessage posts one message. threadID of zero means the chat's
// default thread. Outcomes: nil on success, *domain.ThrottleError on
// 429 with the server-advertised wait, domain.ErrUnknownThread when the
// topic does not exist, *domain.ChatError otherwise. The caller owns the
// sleep-and-retry policy so per-channel ordering is preserved.
func (c *Client) SendMessage(ctx context.Context, chatID string, threadID int, text, parseMode string) error {
	payload := sendMessageRequest{
		ChatID:                chatID,
		MessageThreadID:       threadID,
		Text:                  text,
		ParseMode:             parseMode,
		DisableWebPagePreview: true,
	}

	_, err := c.call(ctx, "sendMessage", payload)
	return err
}

// GetMe validates the bot credential and returns the bot's username.
func (c *Client) GetMe(ctx context.Context) (string, error) {
	resp, err := c.call(ctx, "getMe", struct{}{})
	if err != nil {
		return "", err
	}

	var result struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", fmt.Errorf("decode getMe result: %w", err)
	}
	return result.Username, nil
}

func (c *Client) call(ctx context.Context, method string, payload any) (*apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.ChatError{Description: err.Error()}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &domain.ChatError{StatusCode: httpResp.StatusCode, Description: err.Error()}
	}

	var resp apiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &domain.ChatError{
			StatusCode:  httpResp.StatusCode,
			Description: fmt.Sprintf("undecodable response: %.200s", respBody),
		}
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		wait := resp.Parameters.RetryAfter
		if wait <= 0 {
			wait = 10
		}
		return nil, &domain.ThrottleError{RetryAfter: time.Duration(wait) * time.Second}
	}

	if httpResp.StatusCode >= 400 || !resp.OK {
		if strings.Contains(strings.ToLower(resp.Description), "message thread not found") {
			return nil, domain.ErrUnknownThread
		}
		return nil, &domain.ChatError{StatusCode: httpResp.StatusCode, Description: resp.Description}
	}

	return &resp, nil
}
