// Package mock implements messaging.Client in-memory, for the
// U_test_-prefixed user IDs and ALLOW_TEST_WEBHOOK paths §4.9 routes
// away from the real LINE client.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/coursebot/assistant/messaging"
)

// SentReply records one Reply call, for test assertions.
type SentReply struct {
	ReplyToken string
	Messages   []messaging.Message
}

// Client is a capturing, in-memory messaging.Client.
type Client struct {
	mu      sync.Mutex
	replies []SentReply
}

func New() *Client {
	return &Client{}
}

func (c *Client) Reply(ctx context.Context, replyToken string, messages ...messaging.Message) error {
	normalized := make([]messaging.Message, len(messages))
	for i, m := range messages {
		normalized[i] = messaging.Message{Text: m.Text, QuickReply: messaging.NormalizeQuickReply(m.QuickReply)}
	}
	c.mu.Lock()
	c.replies = append(c.replies, SentReply{ReplyToken: replyToken, Messages: normalized})
	c.mu.Unlock()
	return nil
}

func (c *Client) GetMessageContent(ctx context.Context, messageID string) ([]byte, error) {
	return []byte(fmt.Sprintf("mock-content:%s", messageID)), nil
}

func (c *Client) GetUserProfile(ctx context.Context, userID string) (messaging.Profile, error) {
	return messaging.Profile{UserID: userID, DisplayName: "Test User"}, nil
}

// Replies returns a snapshot of every Reply call recorded so far.
func (c *Client) Replies() []SentReply {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SentReply, len(c.replies))
	copy(out, c.replies)
	return out
}
