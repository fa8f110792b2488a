package domain

import "context"

// CopyRequest copies one message from the source chat to the target chat.
// A nil Caption keeps the original caption.
type CopyRequest struct {
	TargetChatID int64
	FromChatID   int64
	MessageID    int
	Caption      *string
	ReplyMarkup  any
}

// TextRequest sends a new text message.
type TextRequest struct {
	TargetChatID int64
	Text         string
	ReplyMarkup  any
}

// OutboundMedia is one element of an outgoing media group.
type OutboundMedia struct {
	Media   Media
	Caption string
}

// MediaGroupRequest sends an album in a single call.
type MediaGroupRequest struct {
	TargetChatID int64
	Media        []OutboundMedia
}

// Publisher is the outbound side of the feed transport.
type Publisher interface {
	CopyMessage(ctx context.Context, req CopyRequest) error
	SendText(ctx context.Context, req TextRequest) error
	SendMediaGroup(ctx context.Context, req MediaGroupRequest) error
}
