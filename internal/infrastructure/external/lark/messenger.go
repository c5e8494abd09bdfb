package lark

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/inspector-vouchers/internal/application/port"
)

// MessageSender is the part of MessageAPI the messenger needs
type MessageSender interface {
	SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error)
}

// Messenger implements port.Notifier over Lark rich-text messages
type Messenger struct {
	sender MessageSender
	locale string
	logger *zap.Logger
}

// NewMessenger creates a new Lark notifier
func NewMessenger(sender MessageSender, logger *zap.Logger) *Messenger {
	return &Messenger{
		sender: sender,
		locale: "en_us",
		logger: logger,
	}
}

type postElement struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

type postBody struct {
	Title   string          `json:"title"`
	Content [][]postElement `json:"content"`
}

// Notify sends msg as a post message to the recipient's open_id. People
// without a Lark identity are skipped.
func (m *Messenger) Notify(ctx context.Context, msg port.Message) error {
	if msg.Handle == "" {
		m.logger.Warn("Recipient has no Lark open_id, message skipped",
			zap.Int64("person_id", msg.RecipientID),
			zap.String("title", msg.Title))
		return nil
	}

	content, err := json.Marshal(map[string]postBody{
		m.locale: {
			Title:   msg.Title,
			Content: [][]postElement{{{Tag: "text", Text: msg.Body}}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message content: %w", err)
	}

	if _, err := m.sender.SendMessage(ctx, ReceiveIDTypeOpenID, msg.Handle, "post", string(content)); err != nil {
		return fmt.Errorf("failed to notify person %d: %w", msg.RecipientID, err)
	}

	m.logger.Info("Lark notification sent",
		zap.Int64("person_id", msg.RecipientID),
		zap.String("title", msg.Title))
	return nil
}

var _ port.Notifier = (*Messenger)(nil)
