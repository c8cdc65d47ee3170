package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/staffgate/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// LockoutNotifier tells an account owner that their account was temporarily locked
type LockoutNotifier interface {
	NotifyLocked(ctx context.Context, email string, until time.Time) error
}

// sesAPI is the subset of the SES client used here
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESLockoutNotifier sends lockout notices through AWS SES
type SESLockoutNotifier struct {
	client      sesAPI
	fromAddress string
	logger      *slog.Logger
}

// NewSESLockoutNotifier loads the default AWS credential chain for region
func NewSESLockoutNotifier(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESLockoutNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESLockoutNotifier{
		client:      ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// NotifyLocked sends the lockout notice
func (s *SESLockoutNotifier) NotifyLocked(ctx context.Context, email string, until time.Time) error {
	untilText := until.UTC().Format("15:04 MST on Jan 2, 2006")

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .warning { background-color: #fff3cd; padding: 10px; border-left: 4px solid #ffc107; margin: 10px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Your account was temporarily locked</h1>
        <p>We received several unsuccessful sign-in attempts for your account and have locked it until <strong>%s</strong>.</p>
        <div class="warning">
            If these attempts were not you, contact your administrator and change your password once the lock expires.
        </div>
        <p>No action is needed if you simply mistyped your password. You can sign in again after the lock expires.</p>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, untilText)

	textBody := fmt.Sprintf(`Your account was temporarily locked

We received several unsuccessful sign-in attempts for your account and have locked it until %s.

If these attempts were not you, contact your administrator and change your password once the lock expires.
No action is needed if you simply mistyped your password. You can sign in again after the lock expires.

This is an automated message. Please do not reply to this email.
`, untilText)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Your account was temporarily locked"),
			},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send lockout email via SES",
			slog.String("email", logger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("lockout email sent",
		slog.String("email", logger.SanitizedEmail(email)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

// NoopLockoutNotifier is used when email delivery is disabled
type NoopLockoutNotifier struct{}

func (NoopLockoutNotifier) NotifyLocked(ctx context.Context, email string, until time.Time) error {
	return nil
}
