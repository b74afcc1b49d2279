// Package telegram is a small Bot API client covering the calls the file
// service makes: caption edits used as a metadata read, file path
// resolution, payload download, message sending and webhook management.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/tgfilestream/internal/common"
	"github.com/dmitrijs2005/tgfilestream/internal/logging"
	"github.com/dmitrijs2005/tgfilestream/internal/netx"
	"github.com/dmitrijs2005/tgfilestream/internal/rangex"
	"github.com/dmitrijs2005/tgfilestream/internal/server/models"
	"github.com/google/uuid"
)

// Response is the Bot API reply envelope.
type Response struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// File is the reply of getFile.
type File struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileSize     int64  `json:"file_size,omitempty"`
	FilePath     string `json:"file_path,omitempty"`
}

// Client talks to one bot through the Bot API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	fileClient *http.Client
	logger     logging.Logger
	newCaption func() string
}

func NewClient(baseURL, token string, timeout time.Duration, logger logging.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		fileClient: netx.NewStreamClient(timeout),
		logger:     logger.With("module", "telegram"),
		newCaption: uuid.NewString,
	}
}

// Do calls method with form-encoded params and decodes the envelope. Only
// transport and decoding failures are returned as errors; an API-level
// failure comes back as a Response with OK unset.
func (c *Client) Do(ctx context.Context, method string, params url.Values) (*Response, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrBackendUnavailable, method, netx.StripURL(err))
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %s: decode reply (status %d): %v", common.ErrBackendUnavailable, method, resp.StatusCode, err)
	}
	if !out.OK && out.ErrorCode == 0 {
		out.ErrorCode = resp.StatusCode
	}

	return &out, nil
}

func (c *Client) call(ctx context.Context, method string, params url.Values, result any) error {
	resp, err := c.Do(ctx, method, params)
	if err != nil {
		return err
	}
	if !resp.OK {
		c.logger.Debug(ctx, "bot api error", "method", method, "code", resp.ErrorCode, "description", resp.Description)
		return &common.BackendError{Code: resp.ErrorCode, Description: resp.Description}
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("%w: %s: decode result: %v", common.ErrBackendUnavailable, method, err)
	}
	return nil
}

// FetchMessage reads a channel message. The Bot API has no plain read, so
// the message caption is replaced with a fresh random value and the edited
// message is returned. The caption is overwritten on every call.
func (c *Client) FetchMessage(ctx context.Context, chatID, messageID int64) (*models.Message, error) {
	return c.EditCaption(ctx, chatID, messageID, c.newCaption())
}

func (c *Client) EditCaption(ctx context.Context, chatID, messageID int64, caption string) (*models.Message, error) {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("message_id", strconv.FormatInt(messageID, 10))
	params.Set("caption", caption)

	var msg models.Message
	if err := c.call(ctx, "editMessageCaption", params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ResolveFile turns a file id into a download path.
func (c *Client) ResolveFile(ctx context.Context, fileID string) (string, error) {
	params := url.Values{}
	params.Set("file_id", fileID)

	var f File
	if err := c.call(ctx, "getFile", params, &f); err != nil {
		return "", err
	}
	if f.FilePath == "" {
		return "", fmt.Errorf("%w: getFile returned no path for %s", common.ErrBackendUnavailable, fileID)
	}
	return f.FilePath, nil
}

// FetchFile downloads path, limited to window when set.
func (c *Client) FetchFile(ctx context.Context, path string, window *rangex.Window) (io.ReadCloser, error) {
	return netx.FetchRange(ctx, c.fileClient, c.fileURL(path), window)
}

func (c *Client) fileURL(path string) string {
	return fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, strings.TrimLeft(path, "/"))
}

// StoreMessage copies an already uploaded payload into chatID by file id.
// Photos are re-sent as photos, everything else as a document.
func (c *Client) StoreMessage(ctx context.Context, chatID int64, kind models.FileKind) (*models.Message, error) {
	switch k := kind.(type) {
	case models.Photo:
		return c.SendPhoto(ctx, chatID, k.FileID)
	case models.Document:
		return c.SendDocument(ctx, chatID, k.FileID)
	case models.Audio:
		return c.SendDocument(ctx, chatID, k.FileID)
	case models.Video:
		return c.SendDocument(ctx, chatID, k.FileID)
	default:
		return nil, fmt.Errorf("%w: %T", common.ErrUnsupportedFileKind, kind)
	}
}

func (c *Client) SendDocument(ctx context.Context, chatID int64, fileID string) (*models.Message, error) {
	return c.sendFile(ctx, "sendDocument", "document", chatID, fileID)
}

func (c *Client) SendPhoto(ctx context.Context, chatID int64, fileID string) (*models.Message, error) {
	return c.sendFile(ctx, "sendPhoto", "photo", chatID, fileID)
}

func (c *Client) sendFile(ctx context.Context, method, field string, chatID int64, fileID string) (*models.Message, error) {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set(field, fileID)

	var msg models.Message
	if err := c.call(ctx, method, params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Button is one inline keyboard button. Exactly one of URL and CallbackData
// should be set.
type Button struct {
	Text         string `json:"text"`
	URL          string `json:"url,omitempty"`
	CallbackData string `json:"callback_data,omitempty"`
}

// SendMessage sends Markdown text, optionally as a reply and with an inline
// keyboard given as rows of buttons.
func (c *Client) SendMessage(ctx context.Context, chatID, replyTo int64, text string, keyboard [][]Button) (*models.Message, error) {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("text", text)
	params.Set("parse_mode", "Markdown")
	if replyTo != 0 {
		params.Set("reply_to_message_id", strconv.FormatInt(replyTo, 10))
	}
	if len(keyboard) > 0 {
		markup, err := json.Marshal(map[string]any{"inline_keyboard": keyboard})
		if err != nil {
			return nil, err
		}
		params.Set("reply_markup", string(markup))
	}

	var msg models.Message
	if err := c.call(ctx, "sendMessage", params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("message_id", strconv.FormatInt(messageID, 10))
	return c.call(ctx, "deleteMessage", params, nil)
}

func (c *Client) GetMe(ctx context.Context) (*models.User, error) {
	var u models.User
	if err := c.call(ctx, "getMe", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SetWebhook points the bot at webhookURL. An empty URL removes the webhook.
// The raw envelope is returned for passthrough to the caller.
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) (*Response, error) {
	params := url.Values{}
	params.Set("url", webhookURL)
	if secret != "" {
		params.Set("secret_token", secret)
	}
	return c.Do(ctx, "setWebhook", params)
}
