package mailer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/infocapsule/digest/internal/pkg/logger"
)

// SESAPI is the subset of the SESv2 client used by the mailer.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Config holds SES credentials and sender identity.
type Config struct {
	Region    string
	AccessKey string
	SecretKey string
	FromName  string
	FromEmail string
}

// SESMailer sends digest emails via AWS SES.
type SESMailer struct {
	client    SESAPI
	fromName  string
	fromEmail string
	layout    *Layout
}

// NewSESMailer creates an SES mailer. Static credentials are used when
// provided; otherwise the default AWS credential chain applies.
func NewSESMailer(ctx context.Context, config Config) (*SESMailer, error) {
	region := config.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if config.AccessKey != "" && config.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKey, config.SecretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	layout, err := NewLayout()
	if err != nil {
		return nil, err
	}

	return &SESMailer{
		client:    sesv2.NewFromConfig(cfg),
		fromName:  config.FromName,
		fromEmail: config.FromEmail,
		layout:    layout,
	}, nil
}

// NewSESMailerWithClient wires a prebuilt SES client (useful for testing).
func NewSESMailerWithClient(client SESAPI, fromName, fromEmail string) (*SESMailer, error) {
	layout, err := NewLayout()
	if err != nil {
		return nil, err
	}
	return &SESMailer{
		client:    client,
		fromName:  fromName,
		fromEmail: fromEmail,
		layout:    layout,
	}, nil
}

// SendDigest wraps content in the email layout and delivers it to the
// recipient. Returns the SES message ID.
func (m *SESMailer) SendDigest(ctx context.Context, recipient, subject, content string) (string, error) {
	htmlBody, err := m.layout.Render(subject, content)
	if err != nil {
		return "", err
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", m.fromName, m.fromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{recipient}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(htmlBody), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	result, err := m.client.SendEmail(ctx, input)
	if err != nil {
		return "", fmt.Errorf("SES send failed: %w", err)
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}

	logger.Info("Digest email sent",
		"recipient", recipient,
		"subject", subject,
		"message_id", messageID)

	return messageID, nil
}
