package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	stderrors "notifyhub/internal/common/errors"
	"notifyhub/internal/common/httpclient"
	"notifyhub/internal/models"
)

// ChatAdapter posts messages to the chat system's inbound webhook. The
// contact value is the recipient's chat id; the webhook routes on it.
type ChatAdapter struct {
	client     *httpclient.Client
	webhookURL string
}

func NewChatAdapter(client *httpclient.Client, webhookURL string) *ChatAdapter {
	return &ChatAdapter{client: client, webhookURL: webhookURL}
}

func (a *ChatAdapter) Channel() models.Channel {
	return models.ChannelChat
}

type chatPayload struct {
	ChatID     string `json:"chatId"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	Priority   string `json:"priority"`
	ActionURL  string `json:"actionUrl,omitempty"`
	ActionText string `json:"actionText,omitempty"`
}

type chatResponse struct {
	MessageID string `json:"messageId"`
}

func (a *ChatAdapter) Send(ctx context.Context, contact string, msg Message) (string, error) {
	body, err := json.Marshal(chatPayload{
		ChatID:     contact,
		Title:      msg.Title,
		Text:       msg.Content,
		Priority:   string(msg.Priority),
		ActionURL:  msg.ActionURL,
		ActionText: msg.ActionText,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, a.webhookURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := a.client.DoWithContext(ctx, req)
	if err != nil {
		return "", stderrors.NewChannelSendFailedError(string(models.ChannelChat), err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", stderrors.NewChannelSendFailedError(string(models.ChannelChat),
			fmt.Errorf("webhook returned %d", res.StatusCode))
	}

	var cr chatResponse
	if err := json.NewDecoder(res.Body).Decode(&cr); err != nil {
		// The webhook acknowledged the send; a missing message id is not
		// a delivery failure.
		return "", nil
	}
	return cr.MessageID, nil
}
