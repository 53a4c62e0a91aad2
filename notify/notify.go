// Package notify posts cycle outcomes to a chat webhook. The payload is the
// DingTalk robot text message, which most chat bridges accept as well.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Notifier interface {
	Notify(ctx context.Context, content string) error
}

type Content struct {
	Content string `json:"content"`
}

type At struct {
	IsAtAll bool `json:"isAtAll"`
}

type Message struct {
	MsgType string  `json:"msgtype"`
	Text    Content `json:"text"`
	At      At      `json:"at"`
}

type Result struct {
	ErrCode int64  `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *Webhook) Notify(ctx context.Context, content string) error {
	body, err := json.Marshal(&Message{
		MsgType: "text",
		Text:    Content{Content: content},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("response status code: %d", resp.StatusCode)
	}
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	result := Result{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		// plain text acknowledgements are fine
		return nil
	}
	if result.ErrCode != 0 {
		return fmt.Errorf("code: %d, err: %s", result.ErrCode, result.ErrMsg)
	}
	return nil
}

// Nop drops every message; used when no webhook is configured.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }
