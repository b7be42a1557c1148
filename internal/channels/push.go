package channels

import (
	"context"
	"encoding/json"
	"fmt"

	stderrors "notifyhub/internal/common/errors"
	"notifyhub/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// PushAdapter publishes mobile push notifications through SNS platform
// endpoints. The contact value is the recipient's endpoint ARN.
type PushAdapter struct {
	client SNSService
}

func NewPushAdapter(client SNSService) *PushAdapter {
	return &PushAdapter{client: client}
}

func (a *PushAdapter) Channel() models.Channel {
	return models.ChannelPush
}

func (a *PushAdapter) Send(ctx context.Context, contact string, msg Message) (string, error) {
	payload := map[string]interface{}{
		"title":    msg.Title,
		"body":     msg.Content,
		"priority": string(msg.Priority),
	}
	if msg.ActionURL != "" {
		payload["actionUrl"] = msg.ActionURL
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal push payload: %w", err)
	}

	out, err := a.client.Publish(ctx, &sns.PublishInput{
		TargetArn: aws.String(contact),
		Message:   aws.String(string(body)),
	})
	if err != nil {
		return "", stderrors.NewChannelSendFailedError(string(models.ChannelPush), err)
	}
	return aws.ToString(out.MessageId), nil
}
