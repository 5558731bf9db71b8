// Package telegram is a thin Bot API client covering the calls the bot
// needs: long polling, text messages, grouped media and document sends,
// and chat administration lookups.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// APIError is a non-ok Bot API response.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %d %s", e.Code, e.Description)
}

// Client talks to one bot token on one API server.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// New creates a client. apiURL is the server root, normally
// https://api.telegram.org.
func New(apiURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(apiURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func (c *Client) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

// call posts a JSON payload to a method and decodes the result envelope
// into out. out may be nil when only success matters.
func (c *Client) call(ctx context.Context, method string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method, out)
}

func (c *Client) do(req *http.Request, method string, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		OK          bool            `json:"ok"`
		Result      json.RawMessage `json:"result"`
		ErrorCode   int             `json:"error_code"`
		Description string          `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("telegram %s: decoding response: %w", method, err)
	}
	if !envelope.OK {
		return &APIError{Code: envelope.ErrorCode, Description: envelope.Description}
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decoding result: %w", method, err)
		}
	}
	return nil
}

// GetMe returns the bot's own account.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var user User
	if err := c.call(ctx, "getMe", struct{}{}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUpdates long-polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         timeout,
		"allowed_updates": []string{"message", "channel_post"},
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage sends an HTML-formatted text message. replyTo of 0 means no
// reply threading.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) (*Message, error) {
	payload := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
		"link_preview_options": map[string]any{
			"is_disabled": true,
		},
	}
	if replyTo != 0 {
		payload["reply_to_message_id"] = replyTo
	}
	var msg Message
	if err := c.call(ctx, "sendMessage", payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessageText replaces a sent message's text, keeping HTML formatting.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
		"parse_mode": "HTML",
		"link_preview_options": map[string]any{
			"is_disabled": true,
		},
	}
	return c.call(ctx, "editMessageText", payload, nil)
}

// DeleteMessage removes a message the bot may delete.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}
	return c.call(ctx, "deleteMessage", payload, nil)
}

// SendChatAction shows a transient status like "upload_photo".
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	payload := map[string]any{
		"chat_id": chatID,
		"action":  action,
	}
	return c.call(ctx, "sendChatAction", payload, nil)
}

// GetChatAdministrators lists the administrators of a group or channel.
func (c *Client) GetChatAdministrators(ctx context.Context, chatID int64) ([]ChatMember, error) {
	payload := map[string]any{"chat_id": chatID}
	var members []ChatMember
	if err := c.call(ctx, "getChatAdministrators", payload, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// MediaItem is one element of a grouped send. Exactly one of FileID and
// Path is set: FileID reuses bytes the server already has, Path uploads a
// local file.
type MediaItem struct {
	FileID  string
	Path    string
	Spoiler bool
}

type inputMedia struct {
	Type       string `json:"type"`
	Media      string `json:"media"`
	Caption    string `json:"caption,omitempty"`
	ParseMode  string `json:"parse_mode,omitempty"`
	HasSpoiler bool   `json:"has_spoiler,omitempty"`
}

// SendMediaGroup sends up to 10 photos as one album. The caption is
// attached to the first item only, per API convention.
func (c *Client) SendMediaGroup(ctx context.Context, chatID int64, items []MediaItem, caption string, silent bool, replyTo int64) ([]Message, error) {
	return c.sendGroup(ctx, "photo", chatID, items, caption, silent, replyTo)
}

// SendDocumentGroup sends up to 10 uncompressed files as one album.
func (c *Client) SendDocumentGroup(ctx context.Context, chatID int64, items []MediaItem, replyTo int64) ([]Message, error) {
	return c.sendGroup(ctx, "document", chatID, items, "", true, replyTo)
}

func (c *Client) sendGroup(ctx context.Context, mediaType string, chatID int64, items []MediaItem, caption string, silent bool, replyTo int64) ([]Message, error) {
	if len(items) == 0 || len(items) > 10 {
		return nil, fmt.Errorf("telegram sendMediaGroup: group size %d out of range", len(items))
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	media := make([]inputMedia, len(items))
	uploads := make(map[string]string)
	for i, item := range items {
		media[i] = inputMedia{
			Type:       mediaType,
			HasSpoiler: item.Spoiler,
		}
		if item.FileID != "" {
			media[i].Media = item.FileID
		} else {
			name := "file" + strconv.Itoa(i)
			media[i].Media = "attach://" + name
			uploads[name] = item.Path
		}
		if i == 0 && caption != "" {
			media[i].Caption = caption
			media[i].ParseMode = "HTML"
		}
	}

	mediaJSON, err := json.Marshal(media)
	if err != nil {
		return nil, fmt.Errorf("telegram sendMediaGroup: %w", err)
	}
	form.WriteField("chat_id", strconv.FormatInt(chatID, 10))
	form.WriteField("media", string(mediaJSON))
	form.WriteField("disable_notification", strconv.FormatBool(silent))
	if replyTo != 0 {
		form.WriteField("reply_to_message_id", strconv.FormatInt(replyTo, 10))
	}

	for name, path := range uploads {
		if err := attachFile(form, name, path); err != nil {
			return nil, fmt.Errorf("telegram sendMediaGroup: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("telegram sendMediaGroup: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("sendMediaGroup"), &body)
	if err != nil {
		return nil, fmt.Errorf("telegram sendMediaGroup: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var messages []Message
	if err := c.do(req, "sendMediaGroup", &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func attachFile(form *multipart.Writer, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := form.CreateFormFile(name, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// MessageLink builds the public t.me link for a channel post. Private
// channels use the /c/ form with the -100 prefix stripped.
func MessageLink(username string, chatID, messageID int64) string {
	if username != "" {
		return fmt.Sprintf("https://t.me/%s/%d", strings.TrimPrefix(username, "@"), messageID)
	}
	id := strconv.FormatInt(chatID, 10)
	id = strings.TrimPrefix(id, "-100")
	return fmt.Sprintf("https://t.me/c/%s/%d", id, messageID)
}
