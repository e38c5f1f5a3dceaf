package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/viktor/chat-storage-gateway/internal/config"
)

// Telegram implements Remote over the Bot API. Uploads are sendDocument
// multipart posts against the configured chat; the remote id is the returned
// document file_id. Downloads are two calls: getFile to resolve the file_id
// to a server-side path, then a plain GET against the file-serving endpoint.
//
// The Bot API has no delete primitive, which is why the store above never
// removes remote payloads.
type Telegram struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

// NewTelegram creates a Bot API remote from config.
func NewTelegram(cfg *config.TelegramConfig) *Telegram {
	apiBase := strings.TrimSuffix(cfg.APIBase, "/")
	if apiBase == "" {
		apiBase = "https://api.telegram.org"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Telegram{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		apiBase:  apiBase,
		client:   &http.Client{Timeout: timeout},
	}
}

// apiResponse is the Bot API envelope shared by all methods.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type documentResult struct {
	Document struct {
		FileID string `json:"file_id"`
	} `json:"document"`
}

type fileResult struct {
	FilePath string `json:"file_path"`
}

// Upload posts data as a document to the configured chat and returns the
// assigned file_id.
func (t *Telegram) Upload(ctx context.Context, data []byte, name string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("chat_id", t.chatID); err != nil {
		return "", NewTransportError("upload", fmt.Errorf("failed to build request: %w", err))
	}
	if err := writer.WriteField("caption", name); err != nil {
		return "", NewTransportError("upload", fmt.Errorf("failed to build request: %w", err))
	}
	part, err := writer.CreateFormFile("document", name)
	if err != nil {
		return "", NewTransportError("upload", fmt.Errorf("failed to build request: %w", err))
	}
	if _, err := part.Write(data); err != nil {
		return "", NewTransportError("upload", fmt.Errorf("failed to build request: %w", err))
	}
	if err := writer.Close(); err != nil {
		return "", NewTransportError("upload", fmt.Errorf("failed to build request: %w", err))
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendDocument", t.apiBase, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", NewTransportError("upload", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result documentResult
	if err := t.call(req, &result); err != nil {
		return "", NewTransportError("upload", err)
	}
	if result.Document.FileID == "" {
		return "", NewTransportError("upload", fmt.Errorf("response carries no document file_id"))
	}
	return result.Document.FileID, nil
}

// Download resolves remoteID via getFile and fetches the payload from the
// file-serving endpoint.
func (t *Telegram) Download(ctx context.Context, remoteID string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/bot%s/getFile?file_id=%s", t.apiBase, t.botToken, url.QueryEscape(remoteID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, NewTransportError("download", err)
	}

	var result fileResult
	if err := t.call(req, &result); err != nil {
		return nil, NewTransportError("download", err)
	}
	if result.FilePath == "" {
		return nil, NewTransportError("download", fmt.Errorf("file id %s resolved to no file path", remoteID))
	}

	fileURL := fmt.Sprintf("%s/file/bot%s/%s", t.apiBase, t.botToken, result.FilePath)
	fileReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, NewTransportError("download", err)
	}

	resp, err := t.client.Do(fileReq)
	if err != nil {
		return nil, NewTransportError("download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, NewTransportError("download", fmt.Errorf("file endpoint returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewTransportError("download", fmt.Errorf("failed to read file body: %w", err))
	}
	return data, nil
}

// call executes a Bot API request and unmarshals the result envelope.
func (t *Telegram) call(req *http.Request, result any) error {
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	if !envelope.OK {
		if envelope.Description != "" {
			return fmt.Errorf("api error (status %d): %s", resp.StatusCode, envelope.Description)
		}
		return fmt.Errorf("api error: status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return fmt.Errorf("failed to parse result: %w", err)
	}
	return nil
}
