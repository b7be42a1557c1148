package channels

import (
	"context"
	"fmt"

	stderrors "notifyhub/internal/common/errors"
	"notifyhub/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"golang.org/x/time/rate"
)

// SESService is the slice of the SES client used for sending, extracted for
// mocking.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailAdapter sends notification emails through SES. A token-bucket limiter
// keeps the adapter inside the account's per-second send quota.
type EmailAdapter struct {
	client    SESService
	fromEmail string
	limiter   *rate.Limiter
}

func NewEmailAdapter(client SESService, fromEmail string, sendsPerSecond int) *EmailAdapter {
	if sendsPerSecond <= 0 {
		sendsPerSecond = 10
	}
	return &EmailAdapter{
		client:    client,
		fromEmail: fromEmail,
		limiter:   rate.NewLimiter(rate.Limit(sendsPerSecond), sendsPerSecond),
	}
}

func (a *EmailAdapter) Channel() models.Channel {
	return models.ChannelEmail
}

func (a *EmailAdapter) Send(ctx context.Context, contact string, msg Message) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	body := msg.Content
	if msg.ActionURL != "" {
		body = fmt.Sprintf("%s\n\n%s: %s", body, actionLabel(msg), msg.ActionURL)
	}

	out, err := a.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{contact},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Title)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(a.fromEmail),
	})
	if err != nil {
		return "", stderrors.NewChannelSendFailedError(string(models.ChannelEmail), err)
	}
	return aws.ToString(out.MessageId), nil
}

func actionLabel(msg Message) string {
	if msg.ActionText != "" {
		return msg.ActionText
	}
	return "Open"
}
