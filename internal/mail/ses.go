package mail

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

const charSet = "UTF-8"

type SESMailer struct {
	client    *sesv2.Client
	sender    string
	recipient string
}

var _ Mailer = (*SESMailer)(nil)

func NewSESMailer(ctx context.Context, region, sender, recipient string) (*SESMailer, error) {
	awsCfg, err := aws_config.LoadDefaultConfig(ctx, aws_config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESMailer{
		client:    sesv2.NewFromConfig(awsCfg),
		sender:    sender,
		recipient: recipient,
	}, nil
}

func (m *SESMailer) Send(ctx context.Context, subject, body string) error {
	_, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.sender),
		Destination: &types.Destination{
			ToAddresses: []string{m.recipient},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String(charSet)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String(charSet)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", m.recipient, err)
	}

	return nil
}
