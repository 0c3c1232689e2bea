package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// TelegramConfig holds the bot credentials and target channel.
type TelegramConfig struct {
	BotToken string
	ChatID   string
	BaseURL  string // override for tests; defaults to the public API
}

type telegramSendRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramEditRequest struct {
	ChatID    string `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// TelegramClient implements ChatAPI against the Telegram bot API. The
// retryable client absorbs transient network blips; a definitive API
// rejection (e.g. "message to edit not found") surfaces immediately so
// the caller's fallback branch can run.
type TelegramClient struct {
	httpClient *retryablehttp.Client
	cfg        TelegramConfig
}

// NewTelegramClient creates a TelegramClient with sane retry defaults.
func NewTelegramClient(cfg TelegramConfig) *TelegramClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil

	return &TelegramClient{httpClient: client, cfg: cfg}
}

// SendMessage posts a new message to the configured chat.
func (t *TelegramClient) SendMessage(ctx context.Context, text string) (string, error) {
	resp, err := t.call(ctx, "sendMessage", telegramSendRequest{
		ChatID: t.cfg.ChatID,
		Text:   text,
	})
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(resp.Result.MessageID, 10), nil
}

// EditMessage rewrites an existing message in place.
func (t *TelegramClient) EditMessage(ctx context.Context, messageID, text string) error {
	id, err := strconv.ParseInt(messageID, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed chat message id %q: %w", messageID, err)
	}

	_, err = t.call(ctx, "editMessageText", telegramEditRequest{
		ChatID:    t.cfg.ChatID,
		MessageID: id,
		Text:      text,
	})
	return err
}

func (t *TelegramClient) call(ctx context.Context, method string, payload any) (*telegramResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/bot%s/%s", t.cfg.BaseURL, t.cfg.BotToken, method)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	var parsed telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("telegram %s: %s", method, parsed.Description)
	}
	return &parsed, nil
}

// Ensure TelegramClient implements ChatAPI.
var _ ChatAPI = (*TelegramClient)(nil)
