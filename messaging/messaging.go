// Package messaging declares the outbound chat boundary (MessagingClient).
// messaging/mock and messaging/line provide the two concrete clients the
// webhook chooses between per-request, per §4.9's dynamic service
// selection rule.
package messaging

import "context"

const (
	// MaxQuickReplyItems caps a quick reply's item count, per §6.
	MaxQuickReplyItems = 13
	// MaxQuickReplyLabel truncates each quick-reply label, per §6.
	MaxQuickReplyLabel = 20
)

// QuickReplyAction is one tappable quick-reply button.
type QuickReplyAction struct {
	Label string
	Data  string
}

// QuickReply is attached to an outbound text message.
type QuickReply struct {
	Items []QuickReplyAction
}

// Message is either plain text or a richer text-with-quick-reply payload;
// Client.Reply accepts a mix of both forms.
type Message struct {
	Text       string
	QuickReply *QuickReply
}

// Text builds a plain-text Message, the "message is a string" form in §6.
func Text(s string) Message { return Message{Text: s} }

// Profile is what getUserProfile returns.
type Profile struct {
	UserID      string
	DisplayName string
}

// Client is the MessagingClient capability: reply, getMessageContent,
// getUserProfile. Every call is timeout-bounded by the caller (15s, per
// §5's suspension-point table).
type Client interface {
	Reply(ctx context.Context, replyToken string, messages ...Message) error
	GetMessageContent(ctx context.Context, messageID string) ([]byte, error)
	GetUserProfile(ctx context.Context, userID string) (Profile, error)
}

// NormalizeQuickReply enforces the §6 bounds: item cap and per-label
// truncation, applied once at the messaging boundary regardless of which
// Client implementation sends the payload.
func NormalizeQuickReply(qr *QuickReply) *QuickReply {
	if qr == nil {
		return nil
	}
	items := qr.Items
	if len(items) > MaxQuickReplyItems {
		items = items[:MaxQuickReplyItems]
	}
	out := make([]QuickReplyAction, len(items))
	for i, item := range items {
		label := item.Label
		if len(label) > MaxQuickReplyLabel {
			runes := []rune(label)
			if len(runes) > MaxQuickReplyLabel {
				label = string(runes[:MaxQuickReplyLabel])
			}
		}
		out[i] = QuickReplyAction{Label: label, Data: item.Data}
	}
	return &QuickReply{Items: out}
}
