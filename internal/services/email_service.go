package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/tmcarvalho/gatehouse/pkg/logger"
)

// EmailSender defines the interface for sending login verification codes
type EmailSender interface {
	SendVerificationCode(ctx context.Context, email, code string, expiresAt time.Time) error
}

// LogEmailSender writes codes to the log instead of sending mail. Used in
// development when no SES sender is configured.
type LogEmailSender struct {
	logger *slog.Logger
}

// NewLogEmailSender creates a log-only sender
func NewLogEmailSender(log *slog.Logger) *LogEmailSender {
	return &LogEmailSender{logger: log}
}

func (s *LogEmailSender) SendVerificationCode(_ context.Context, email, code string, expiresAt time.Time) error {
	s.logger.Info("verification code issued (email disabled)",
		slog.String("email", logger.SanitizedEmail(email)),
		slog.String("code", code),
		slog.Time("expires_at", expiresAt))
	return nil
}

// AWSSESEmailSender sends verification codes using AWS SES
type AWSSESEmailSender struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailSender creates a new AWS SES email sender
func NewAWSSESEmailSender(region, fromAddress string, log *slog.Logger) (*AWSSESEmailSender, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailSender{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      log,
	}, nil
}

// SendVerificationCode emails the one-time login code to the user
func (s *AWSSESEmailSender) SendVerificationCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	expiresIn := int(time.Until(expiresAt).Round(time.Minute).Minutes())
	if expiresIn < 1 {
		expiresIn = 1
	}

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: bold; text-align: center; padding: 16px; background-color: #f1f3f5; border-radius: 4px; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
        .warning { background-color: #fff3cd; padding: 10px; border-left: 4px solid #ffc107; margin: 10px 0; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Your Login Code</h1>
        </div>
        <p>Someone signed in to your account with your password. Enter this code to finish logging in:</p>
        <div class="code">%s</div>
        <div class="warning">
            <strong>Security Notice:</strong> This code will expire in %d minutes. Never share it with anyone.
        </div>
        <p><strong>Didn't try to log in?</strong><br>
        If this wasn't you, someone else knows your password. Change it now.</p>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, code, expiresIn)

	textBody := fmt.Sprintf(`Your Login Code

Someone signed in to your account with your password. Enter this code to finish logging in:

%s

Security Notice: This code will expire in %d minutes. Never share it with anyone.

Didn't try to log in?
If this wasn't you, someone else knows your password. Change it now.

This is an automated message. Please do not reply to this email.
`, code, expiresIn)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Your login verification code"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send verification code via SES",
			slog.String("email", logger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("verification code sent",
		slog.String("email", logger.SanitizedEmail(email)),
		slog.String("message_id", *result.MessageId))

	return nil
}
