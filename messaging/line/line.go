// Package line implements messaging.Client against the LINE Messaging
// API's reply, content, and profile endpoints. Grounded on the teacher's
// outbound-call texture (logrus.WithFields per request/response,
// context-bounded HTTP) though the wire client itself is plain
// net/http — no LINE SDK appears anywhere in the retrieved corpus, so
// there is no third-party client to adopt for this one transport leaf.
package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/coursebot/assistant/messaging"
)

const (
	replyEndpoint   = "https://api.line.me/v2/bot/message/reply"
	contentEndpoint = "https://api-data.line.me/v2/bot/message/%s/content"
	profileEndpoint = "https://api.line.me/v2/bot/profile/%s"
)

// Client is the real LINE-backed messaging.Client.
type Client struct {
	accessToken string
	httpClient  *http.Client
}

func New(accessToken string) *Client {
	return &Client{accessToken: accessToken, httpClient: &http.Client{}}
}

type wireQuickReplyItem struct {
	Type   string `json:"type"`
	Action struct {
		Type  string `json:"type"`
		Label string `json:"label"`
		Data  string `json:"data"`
	} `json:"action"`
}

type wireQuickReply struct {
	Items []wireQuickReplyItem `json:"items"`
}

type wireMessage struct {
	Type       string          `json:"type"`
	Text       string          `json:"text"`
	QuickReply *wireQuickReply `json:"quickReply,omitempty"`
}

type replyPayload struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []wireMessage `json:"messages"`
}

func (c *Client) Reply(ctx context.Context, replyToken string, messages ...messaging.Message) error {
	wireMessages := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{Type: "text", Text: m.Text}
		if qr := messaging.NormalizeQuickReply(m.QuickReply); qr != nil {
			wireQR := &wireQuickReply{}
			for _, item := range qr.Items {
				wi := wireQuickReplyItem{Type: "action"}
				wi.Action.Type = "postback"
				wi.Action.Label = item.Label
				wi.Action.Data = item.Data
				wireQR.Items = append(wireQR.Items, wi)
			}
			wm.QuickReply = wireQR
		}
		wireMessages = append(wireMessages, wm)
	}

	body, err := json.Marshal(replyPayload{ReplyToken: replyToken, Messages: wireMessages})
	if err != nil {
		return fmt.Errorf("line: encode reply payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, replyEndpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logrus.WithError(err).Error("[MESSAGING_LINE] reply request failed")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		logrus.WithFields(logrus.Fields{"status": resp.StatusCode, "body": string(payload)}).
			Error("[MESSAGING_LINE] reply rejected")
		return fmt.Errorf("line: reply failed with status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) GetMessageContent(ctx context.Context, messageID string) ([]byte, error) {
	url := fmt.Sprintf(contentEndpoint, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("line: get message content failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

type wireProfile struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

func (c *Client) GetUserProfile(ctx context.Context, userID string) (messaging.Profile, error) {
	url := fmt.Sprintf(profileEndpoint, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return messaging.Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return messaging.Profile{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return messaging.Profile{}, fmt.Errorf("line: get profile failed with status %d", resp.StatusCode)
	}

	var wp wireProfile
	if err := json.NewDecoder(resp.Body).Decode(&wp); err != nil {
		return messaging.Profile{}, fmt.Errorf("line: decode profile: %w", err)
	}
	return messaging.Profile{UserID: wp.UserID, DisplayName: wp.DisplayName}, nil
}
