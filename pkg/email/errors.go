package email

import "errors"

var (
	ErrFailedToSendEmail = errors.New("failed to send email")
	ErrInvalidConfig     = errors.New("invalid email config")
	ErrInvalidParams     = errors.New("invalid email params")
	ErrNoAddress         = errors.New("recipient has no email address")
	ErrUnknownWebhook    = errors.New("unsupported postmark webhook record")
)
