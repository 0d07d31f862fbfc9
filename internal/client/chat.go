package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/liliang-cn/moviechat/internal/domain"
)

// SendMessage posts a message to the assistant endpoint. Every failure is
// reported as domain.ErrAssistantRequestFailed.
func (c *Client) SendMessage(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	var resp domain.ChatResponse
	err := c.do(ctx, request{method: http.MethodPost, path: "/chat/message/", body: req}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAssistantRequestFailed, err)
	}
	return &resp, nil
}

// ListConversations returns the server-side conversation summaries
func (c *Client) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	data, err := c.raw(ctx, request{method: http.MethodGet, path: "/chat/conversations/"})
	if err != nil {
		return nil, err
	}
	var conversations []domain.Conversation
	if err := decodeList(data, &conversations); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}
	return conversations, nil
}

// GetConversation returns one conversation with its messages
func (c *Client) GetConversation(ctx context.Context, id int64) (*domain.Conversation, error) {
	var conversation domain.Conversation
	path := fmt.Sprintf("/chat/conversation_detail/%d/", id)
	if err := c.do(ctx, request{method: http.MethodGet, path: path}, &conversation); err != nil {
		return nil, err
	}
	return &conversation, nil
}
