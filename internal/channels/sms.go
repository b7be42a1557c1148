package channels

import (
	"context"
	"fmt"

	stderrors "notifyhub/internal/common/errors"
	"notifyhub/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"golang.org/x/time/rate"
)

// SNSService is the slice of the SNS client used for publishing, extracted
// for mocking.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

const smsMaxLength = 160

// SMSAdapter publishes text messages through SNS directly to a phone number.
type SMSAdapter struct {
	client   SNSService
	senderID string
	limiter  *rate.Limiter
}

func NewSMSAdapter(client SNSService, senderID string, publishesPerSecond int) *SMSAdapter {
	if publishesPerSecond <= 0 {
		publishesPerSecond = 10
	}
	return &SMSAdapter{
		client:   client,
		senderID: senderID,
		limiter:  rate.NewLimiter(rate.Limit(publishesPerSecond), publishesPerSecond),
	}
}

func (a *SMSAdapter) Channel() models.Channel {
	return models.ChannelSMS
}

func (a *SMSAdapter) Send(ctx context.Context, contact string, msg Message) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	// SMS carries only the body, truncated to a single segment. Truncation
	// counts runes so a multibyte character is never split.
	text := msg.Content
	if runes := []rune(text); len(runes) > smsMaxLength {
		text = string(runes[:smsMaxLength-3]) + "..."
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(contact),
		Message:     aws.String(text),
	}
	if a.senderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(a.senderID),
			},
		}
	}
	if msg.Priority == models.PriorityUrgent || msg.Priority == models.PriorityHigh {
		input.MessageAttributes = withSMSType(input.MessageAttributes, "Transactional")
	}

	out, err := a.client.Publish(ctx, input)
	if err != nil {
		return "", stderrors.NewChannelSendFailedError(string(models.ChannelSMS), err)
	}
	return aws.ToString(out.MessageId), nil
}

func withSMSType(attrs map[string]snstypes.MessageAttributeValue, smsType string) map[string]snstypes.MessageAttributeValue {
	if attrs == nil {
		attrs = map[string]snstypes.MessageAttributeValue{}
	}
	attrs["AWS.SNS.SMS.SMSType"] = snstypes.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(smsType),
	}
	return attrs
}
