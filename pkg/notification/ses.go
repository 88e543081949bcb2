package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAPI is the subset of *ses.Client used by SESSender.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESSender sends messages with Amazon SES.
type SESSender struct {
	client SESAPI
	from   string
}

func NewSESSender(client SESAPI, from string) *SESSender {
	return &SESSender{client: client, from: from}
}

func (s *SESSender) Send(ctx context.Context, m Message) error {
	body := &types.Body{}
	if m.Text != "" {
		body.Text = &types.Content{
			Data:    aws.String(m.Text),
			Charset: aws.String("UTF-8"),
		}
	}
	if m.HTML != "" {
		body.Html = &types.Content{
			Data:    aws.String(m.HTML),
			Charset: aws.String("UTF-8"),
		}
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{m.To},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(m.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: body,
		},
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send to %s: %w", m.To, err)
	}
	slog.Info("Email sent via SES", "to", m.To, "message_id", aws.ToString(out.MessageId))
	return nil
}
